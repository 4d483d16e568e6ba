package docstore

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/pkg/models"
)

// Collection is a typed view over one document kind. Entities are validated before they are
// written and after they are read; stored documents that fail validation are skipped.
type Collection[T models.Entity] struct {
	gateway Gateway
	kind    Kind
	logger  ectologger.Logger
}

// NewCollection binds T to one kind on the gateway.
func NewCollection[T models.Entity](gateway Gateway, kind Kind, logger ectologger.Logger) *Collection[T] {
	return &Collection[T]{gateway: gateway, kind: kind, logger: logger}
}

func (c *Collection[T]) Kind() Kind { return c.kind }

func (c *Collection[T]) List(ctx context.Context, filter Filter) ([]T, error) {
	docs, err := c.gateway.List(ctx, c.kind, filter)
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := Decode(doc, &v); err != nil {
			c.logger.WithContext(ctx).WithError(err).WithField("id", doc.ID()).Warnf("skipping undecodable %s document", c.kind)
			continue
		}
		if err := models.Validate(v); err != nil {
			c.logger.WithContext(ctx).WithError(err).WithField("id", doc.ID()).Warnf("skipping invalid %s document", c.kind)
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// Get returns the entity with the given id, or false when absent.
func (c *Collection[T]) Get(ctx context.Context, id string) (T, bool, error) {
	var zero T
	items, err := c.List(ctx, ByID(id))
	if err != nil || len(items) == 0 {
		return zero, false, err
	}
	return items[0], true, nil
}

func (c *Collection[T]) Upsert(ctx context.Context, v T) error {
	if err := models.Validate(v); err != nil {
		return rejected(ActionUpdateOne, c.kind, 0, err.Error(), "fix the entity fields before saving")
	}
	doc, err := Encode(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s %s: %w", c.kind, v.GetID(), err)
	}
	return c.gateway.Upsert(ctx, c.kind, doc)
}

func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	return c.gateway.DeleteOne(ctx, c.kind, id)
}

func (c *Collection[T]) Clear(ctx context.Context) error {
	return c.gateway.ClearAll(ctx, c.kind)
}
