package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/docstore"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const documentsTable = "documents"

// PostgresBackend stores every collection in one JSONB table keyed by (namespace, collection, id).
// Equality filters are evaluated with JSONB containment.
type PostgresBackend struct {
	db     database.DB
	logger ectologger.Logger
}

func NewPostgresBackend(db database.DB, logger ectologger.Logger) *PostgresBackend {
	return &PostgresBackend{db: db, logger: logger}
}

// classify separates server verdicts (pq errors) from connection failures.
func (b *PostgresBackend) classify(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return err
	}
	return unavailableErr(err)
}

func scope(b database.Binder, namespace string, collection docstore.Kind) []string {
	return database.Equals(b, map[string]any{"namespace": namespace, "collection": string(collection)})
}

func (b *PostgresBackend) Ping(ctx context.Context, _ string) error {
	return b.classify(b.db.PingContext(ctx))
}

func (b *PostgresBackend) Find(ctx context.Context, namespace string, collection docstore.Kind, filter docstore.Filter) ([]docstore.Document, error) {
	ctx, span := tracing.StartSpan(ctx, "PostgresBackend.Find")
	defer span.End()

	return b.find(ctx, namespace, collection, filter, 0)
}

func (b *PostgresBackend) find(ctx context.Context, namespace string, collection docstore.Kind, filter docstore.Filter, limit int) ([]docstore.Document, error) {
	sb := database.NewSelectBuilder()
	sb.Select("body").From(documentsTable).Where(scope(sb, namespace, collection)...)
	if len(filter) > 0 {
		cond, err := database.Contains(sb, "body", filter)
		if err != nil {
			return nil, err
		}
		sb.Where(cond)
	}
	sb.OrderBy("id")
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()
	var rows []database.JSONB[docstore.Document]
	if err := b.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, b.classify(err)
	}

	docs := make([]docstore.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, row.GetValue())
	}
	return docs, nil
}

func (b *PostgresBackend) InsertOne(ctx context.Context, namespace string, collection docstore.Kind, doc docstore.Document) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "PostgresBackend.InsertOne")
	defer span.End()

	if doc.ID() == "" {
		doc["id"] = uuid.NewString()
	}
	ib := database.NewInsertBuilder()
	ib.InsertInto(documentsTable).
		Cols("namespace", "collection", "id", "body").
		Values(namespace, string(collection), doc.ID(), database.JSONB[docstore.Document]{Data: doc})
	ib.OnConflictDoNothing()

	query, args := ib.Build()
	res, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		return "", b.classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", fmt.Errorf("duplicate id %q in %s", doc.ID(), collection)
	}
	return doc.ID(), nil
}

func (b *PostgresBackend) UpdateOne(ctx context.Context, namespace string, collection docstore.Kind, filter docstore.Filter, set docstore.Document, upsert bool) (UpdateResult, error) {
	ctx, span := tracing.StartSpan(ctx, "PostgresBackend.UpdateOne")
	defer span.End()

	id := resolveID(filter, set)
	if id == "" {
		return UpdateResult{}, ErrMissingID
	}
	body := docstore.Document{"id": id}
	for k, v := range set {
		body[k] = v
	}
	payload := database.JSONB[docstore.Document]{Data: body}

	if upsert {
		existing, err := b.find(ctx, namespace, collection, docstore.ByID(id), 1)
		if err != nil {
			return UpdateResult{}, err
		}

		ib := database.NewInsertBuilder()
		ib.InsertInto(documentsTable).
			Cols("namespace", "collection", "id", "body").
			Values(namespace, string(collection), id, payload)
		ub := ib.OnConflict("namespace", "collection", "id")
		ub.Set(
			ub.Assign("body", database.MergeExcluded(documentsTable, "body")),
			ub.Assign("updated_at", database.Now()),
		)

		query, args := ib.Build()
		if _, err := b.db.ExecContext(ctx, query, args...); err != nil {
			return UpdateResult{}, b.classify(err)
		}
		if len(existing) == 0 {
			return UpdateResult{Upserted: 1}, nil
		}
		return UpdateResult{Matched: 1, Modified: 1}, nil
	}

	ub := database.NewUpdateBuilder()
	ub.Update(documentsTable).
		Set(
			fmt.Sprintf("body = body || %s::jsonb", ub.Var(payload)),
			ub.Assign("updated_at", database.Now()),
		).
		Where(append(scope(ub, namespace, collection), ub.Equal("id", id))...)
	if len(filter) > 0 {
		cond, err := database.Contains(ub, "body", filter)
		if err != nil {
			return UpdateResult{}, err
		}
		ub.Where(cond)
	}

	query, args := ub.Build()
	res, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		return UpdateResult{}, b.classify(err)
	}
	n, _ := res.RowsAffected()
	return UpdateResult{Matched: n, Modified: n}, nil
}

func (b *PostgresBackend) DeleteOne(ctx context.Context, namespace string, collection docstore.Kind, filter docstore.Filter) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "PostgresBackend.DeleteOne")
	defer span.End()

	id, _ := filter["id"].(string)
	if id == "" {
		docs, err := b.find(ctx, namespace, collection, filter, 1)
		if err != nil || len(docs) == 0 {
			return 0, err
		}
		id = docs[0].ID()
	}
	return b.delete(ctx, namespace, collection, docstore.Filter{"id": id}, id)
}

func (b *PostgresBackend) DeleteMany(ctx context.Context, namespace string, collection docstore.Kind, filter docstore.Filter) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "PostgresBackend.DeleteMany")
	defer span.End()

	return b.delete(ctx, namespace, collection, filter, "")
}

func (b *PostgresBackend) delete(ctx context.Context, namespace string, collection docstore.Kind, filter docstore.Filter, id string) (int64, error) {
	dlb := database.NewDeleteBuilder()
	dlb.DeleteFrom(documentsTable).Where(scope(dlb, namespace, collection)...)
	if id != "" {
		dlb.Where(dlb.Equal("id", id))
	} else if len(filter) > 0 {
		cond, err := database.Contains(dlb, "body", filter)
		if err != nil {
			return 0, err
		}
		dlb.Where(cond)
	}

	query, args := dlb.Build()
	res, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, b.classify(err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (b *PostgresBackend) Close(context.Context) error {
	return b.db.Close()
}
