// Package bridge serves the document store wire contract over HTTP and forwards each request to
// a pluggable storage backend.
package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/Ramsey-B/clover/pkg/docstore"
)

// ErrUnavailable marks backend failures where the underlying store could not be reached.
var ErrUnavailable = errors.New("backing store unavailable")

// ErrMissingID is returned when an update names no document id.
var ErrMissingID = errors.New("Persistence Denied: Missing Unique ID")

// UpdateResult mirrors the counters the wire contract reports for updateOne.
type UpdateResult struct {
	Matched  int64
	Modified int64
	Upserted int64
}

// Backend executes bridge actions against one storage engine. The namespace selects the
// database (dbName); collections map to docstore kinds.
type Backend interface {
	Ping(ctx context.Context, namespace string) error
	Find(ctx context.Context, namespace string, collection docstore.Kind, filter docstore.Filter) ([]docstore.Document, error)
	InsertOne(ctx context.Context, namespace string, collection docstore.Kind, doc docstore.Document) (string, error)
	UpdateOne(ctx context.Context, namespace string, collection docstore.Kind, filter docstore.Filter, set docstore.Document, upsert bool) (UpdateResult, error)
	DeleteOne(ctx context.Context, namespace string, collection docstore.Kind, filter docstore.Filter) (int64, error)
	DeleteMany(ctx context.Context, namespace string, collection docstore.Kind, filter docstore.Filter) (int64, error)
	Close(ctx context.Context) error
}

func unavailableErr(err error) error {
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// resolveID picks the document id for an update from the filter, falling back to the $set body.
func resolveID(filter docstore.Filter, set docstore.Document) string {
	if id, ok := filter["id"].(string); ok && id != "" {
		return id
	}
	return set.ID()
}
