package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces session hashes.
const DefaultRedisPrefix = "warden:session:"

// RedisBackend stores each session as a Redis hash whose TTL slides on
// every write.
type RedisBackend struct {
	client redis.UniversalClient
	prefix string
}

var _ Backend = (*RedisBackend)(nil)

func NewRedisBackend(client redis.UniversalClient, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisBackend{client: client, prefix: prefix}
}

func (r *RedisBackend) key(id string) string { return r.prefix + id }

func (r *RedisBackend) Get(ctx context.Context, id, key string) (string, bool, error) {
	v, err := r.client.HGet(ctx, r.key(id), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("session: redis hget: %w", err)
	}
	return v, true, nil
}

func (r *RedisBackend) Put(ctx context.Context, id, key, value string, ttl time.Duration) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.key(id), key, value)
		if ttl > 0 {
			pipe.Expire(ctx, r.key(id), ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("session: redis hset: %w", err)
	}
	return nil
}

func (r *RedisBackend) Forget(ctx context.Context, id, key string) error {
	if err := r.client.HDel(ctx, r.key(id), key).Err(); err != nil {
		return fmt.Errorf("session: redis hdel: %w", err)
	}
	return nil
}

func (r *RedisBackend) Destroy(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("session: redis del: %w", err)
	}
	return nil
}
