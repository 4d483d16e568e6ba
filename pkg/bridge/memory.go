package bridge

import (
	"context"
	"sync"

	"github.com/Ramsey-B/clover/pkg/docstore"
	"github.com/google/uuid"
)

// MemoryBackend keeps one in-process store per namespace. It backs local development and tests.
type MemoryBackend struct {
	mu     sync.Mutex
	stores map[string]*docstore.Memory
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{stores: make(map[string]*docstore.Memory)}
}

func (b *MemoryBackend) store(namespace string) *docstore.Memory {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.stores[namespace]
	if !ok {
		s = docstore.NewMemory()
		b.stores[namespace] = s
	}
	return s
}

func (b *MemoryBackend) Ping(ctx context.Context, namespace string) error {
	if !b.store(namespace).Ping(ctx) {
		return ErrUnavailable
	}
	return nil
}

func (b *MemoryBackend) Find(ctx context.Context, namespace string, collection docstore.Kind, filter docstore.Filter) ([]docstore.Document, error) {
	return b.store(namespace).List(ctx, collection, filter)
}

func (b *MemoryBackend) InsertOne(ctx context.Context, namespace string, collection docstore.Kind, doc docstore.Document) (string, error) {
	if doc.ID() == "" {
		doc["id"] = uuid.NewString()
	}
	if err := b.store(namespace).Upsert(ctx, collection, doc); err != nil {
		return "", err
	}
	return doc.ID(), nil
}

func (b *MemoryBackend) UpdateOne(ctx context.Context, namespace string, collection docstore.Kind, filter docstore.Filter, set docstore.Document, upsert bool) (UpdateResult, error) {
	id := resolveID(filter, set)
	if id == "" {
		return UpdateResult{}, ErrMissingID
	}
	s := b.store(namespace)

	existing, err := s.List(ctx, collection, filter)
	if err != nil {
		return UpdateResult{}, err
	}
	if len(existing) == 0 && !upsert {
		return UpdateResult{}, nil
	}

	doc := docstore.Document{"id": id}
	for k, v := range set {
		doc[k] = v
	}
	if err := s.Upsert(ctx, collection, doc); err != nil {
		return UpdateResult{}, err
	}
	if len(existing) == 0 {
		return UpdateResult{Upserted: 1}, nil
	}
	return UpdateResult{Matched: 1, Modified: 1}, nil
}

func (b *MemoryBackend) DeleteOne(ctx context.Context, namespace string, collection docstore.Kind, filter docstore.Filter) (int64, error) {
	s := b.store(namespace)
	docs, err := s.List(ctx, collection, filter)
	if err != nil || len(docs) == 0 {
		return 0, err
	}
	return 1, s.DeleteOne(ctx, collection, docs[0].ID())
}

func (b *MemoryBackend) DeleteMany(ctx context.Context, namespace string, collection docstore.Kind, filter docstore.Filter) (int64, error) {
	s := b.store(namespace)
	if len(filter) == 0 {
		n := int64(s.Count(collection))
		return n, s.ClearAll(ctx, collection)
	}
	docs, err := s.List(ctx, collection, filter)
	if err != nil {
		return 0, err
	}
	for _, doc := range docs {
		if err := s.DeleteOne(ctx, collection, doc.ID()); err != nil {
			return 0, err
		}
	}
	return int64(len(docs)), nil
}

func (b *MemoryBackend) Close(context.Context) error { return nil }
