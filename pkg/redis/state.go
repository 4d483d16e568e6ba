package redis

import (
	"context"
	"errors"

	goredis "github.com/redis/go-redis/v9"
)

// StateStore keeps small JSON blobs (session, preferences) under prefixed keys with no expiry.
type StateStore struct {
	client    *Client
	keyPrefix string
}

func NewStateStore(client *Client, keyPrefix string) *StateStore {
	if keyPrefix == "" {
		keyPrefix = "state:"
	}
	return &StateStore{client: client, keyPrefix: keyPrefix}
}

// Load returns nil, nil when the key is absent.
func (s *StateStore) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.rdb.Get(ctx, s.keyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	return data, err
}

func (s *StateStore) Save(ctx context.Context, key string, data []byte) error {
	return s.client.rdb.Set(ctx, s.keyPrefix+key, data, 0).Err()
}

func (s *StateStore) Delete(ctx context.Context, key string) error {
	return s.client.rdb.Del(ctx, s.keyPrefix+key).Err()
}
