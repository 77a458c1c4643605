package memcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps JSON encoded values in redis under a common prefix.
type RedisStore[V any] struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore builds a RedisStore whose entries expire after ttl.
func NewRedisStore[V any](client *redis.Client, prefix string, ttl time.Duration) *RedisStore[V] {
	return &RedisStore[V]{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore[V]) key(k string) string {
	return s.prefix + ":" + k
}

// Get decodes the stored value. A missing key is a miss, not an error.
func (s *RedisStore[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var out V
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return out, false, nil
	}
	if err != nil {
		return out, false, fmt.Errorf("memcache: get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false, fmt.Errorf("memcache: decode %s: %w", key, err)
	}
	return out, true, nil
}

// Set encodes and stores value with the store TTL.
func (s *RedisStore[V]) Set(ctx context.Context, key string, value V) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("memcache: encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, s.key(key), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("memcache: set %s: %w", key, err)
	}
	return nil
}

// Evict deletes key.
func (s *RedisStore[V]) Evict(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}
