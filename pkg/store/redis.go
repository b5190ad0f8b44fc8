package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/edoloughlin/nasc/pkg/engine"
)

// RedisStore persists instance state as JSON values under
// "<prefix><type>:<id>" keys. SET is atomic per key, so writes for one
// instance serialize at the server.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisStoreOption configures RedisStore behavior.
type RedisStoreOption func(*RedisStore)

// WithRedisKeyPrefix sets the key prefix. Default: "nasc:".
func WithRedisKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore creates a Redis-backed store over an existing client. The
// caller owns the client's lifecycle.
func NewRedisStore(client *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{client: client, prefix: "nasc:"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns the last persisted state for (typ, id), or nil.
func (s *RedisStore) Load(ctx context.Context, typ, id string) (engine.State, error) {
	raw, err := s.client.Get(ctx, s.key(typ, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis load %s:%s: %w", typ, id, err)
	}
	var state engine.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("redis decode %s:%s: %w", typ, id, err)
	}
	return state, nil
}

// Persist replaces the stored state for (typ, id) with full.
func (s *RedisStore) Persist(ctx context.Context, typ, id string, _, full engine.State) error {
	data, err := json.Marshal(full)
	if err != nil {
		return fmt.Errorf("redis marshal %s:%s: %w", typ, id, err)
	}
	if err := s.client.Set(ctx, s.key(typ, id), data, 0).Err(); err != nil {
		return fmt.Errorf("redis persist %s:%s: %w", typ, id, err)
	}
	return nil
}

func (s *RedisStore) key(typ, id string) string {
	return s.prefix + typ + ":" + id
}
