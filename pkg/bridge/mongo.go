package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/pkg/docstore"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoBackend forwards actions to a MongoDB deployment, one database per namespace.
type MongoBackend struct {
	client *mongo.Client
	logger ectologger.Logger
}

// NewMongoBackend connects with the given URI. Connect and server selection share the timeout.
func NewMongoBackend(ctx context.Context, uri string, timeout time.Duration, logger ectologger.Logger) (*MongoBackend, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	return &MongoBackend{client: client, logger: logger}, nil
}

func (b *MongoBackend) collection(namespace string, collection docstore.Kind) *mongo.Collection {
	return b.client.Database(namespace).Collection(string(collection))
}

func (b *MongoBackend) classify(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) ||
		errors.Is(err, mongo.ErrClientDisconnected) || errors.Is(err, context.DeadlineExceeded) {
		return unavailableErr(err)
	}
	return err
}

func toBSON(filter docstore.Filter) bson.M {
	if filter == nil {
		return bson.M{}
	}
	return bson.M(filter)
}

// fromBSON converts a raw mongo document into a JSON-shaped Document, dropping _id.
func fromBSON(raw bson.M) (docstore.Document, error) {
	delete(raw, "_id")
	b, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return nil, err
	}
	var doc docstore.Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (b *MongoBackend) Ping(ctx context.Context, namespace string) error {
	return b.classify(b.client.Database(namespace).RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err())
}

func (b *MongoBackend) Find(ctx context.Context, namespace string, collection docstore.Kind, filter docstore.Filter) ([]docstore.Document, error) {
	ctx, span := tracing.StartSpan(ctx, "MongoBackend.Find")
	defer span.End()

	cur, err := b.collection(namespace, collection).Find(ctx, toBSON(filter), options.Find().SetSort(bson.D{{Key: "id", Value: 1}}))
	if err != nil {
		return nil, b.classify(err)
	}
	var raws []bson.M
	if err := cur.All(ctx, &raws); err != nil {
		return nil, b.classify(err)
	}

	docs := make([]docstore.Document, 0, len(raws))
	for _, raw := range raws {
		doc, err := fromBSON(raw)
		if err != nil {
			b.logger.WithContext(ctx).WithError(err).Warnf("skipping unreadable %s document", collection)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (b *MongoBackend) InsertOne(ctx context.Context, namespace string, collection docstore.Kind, doc docstore.Document) (string, error) {
	if doc.ID() == "" {
		doc["id"] = uuid.NewString()
	}
	if _, err := b.collection(namespace, collection).InsertOne(ctx, bson.M(doc)); err != nil {
		return "", b.classify(err)
	}
	return doc.ID(), nil
}

func (b *MongoBackend) UpdateOne(ctx context.Context, namespace string, collection docstore.Kind, filter docstore.Filter, set docstore.Document, upsert bool) (UpdateResult, error) {
	ctx, span := tracing.StartSpan(ctx, "MongoBackend.UpdateOne")
	defer span.End()

	id := resolveID(filter, set)
	if id == "" {
		return UpdateResult{}, ErrMissingID
	}
	if len(filter) == 0 {
		filter = docstore.ByID(id)
	}

	res, err := b.collection(namespace, collection).UpdateOne(ctx, toBSON(filter), bson.M{"$set": bson.M(set)}, options.Update().SetUpsert(upsert))
	if err != nil {
		return UpdateResult{}, b.classify(err)
	}
	return UpdateResult{Matched: res.MatchedCount, Modified: res.ModifiedCount, Upserted: res.UpsertedCount}, nil
}

func (b *MongoBackend) DeleteOne(ctx context.Context, namespace string, collection docstore.Kind, filter docstore.Filter) (int64, error) {
	res, err := b.collection(namespace, collection).DeleteOne(ctx, toBSON(filter))
	if err != nil {
		return 0, b.classify(err)
	}
	return res.DeletedCount, nil
}

func (b *MongoBackend) DeleteMany(ctx context.Context, namespace string, collection docstore.Kind, filter docstore.Filter) (int64, error) {
	res, err := b.collection(namespace, collection).DeleteMany(ctx, toBSON(filter))
	if err != nil {
		return 0, b.classify(err)
	}
	return res.DeletedCount, nil
}

func (b *MongoBackend) Close(ctx context.Context) error {
	return b.client.Disconnect(ctx)
}
