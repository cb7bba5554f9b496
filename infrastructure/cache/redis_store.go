package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ahrav/go-bomcheck/internal/ports"
)

const clearBatchSize = 500

// RedisStore keeps cache entries in Redis under a key prefix so several
// runs, or several machines, share provider results and quota.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ ports.CacheStore = (*RedisStore)(nil)

// NewRedisStore wraps an existing client. Keys are stored as prefix+key.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// DialRedis connects to addr and verifies the connection with PING.
func DialRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, ports.NewCacheError(addr, "ping", err)
	}
	return client, nil
}

// Get returns the value stored under key.
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, ports.NewCacheError(key, "get", err)
	}
	return v, true, nil
}

// Set stores value with the given expiration. Zero keeps it indefinitely.
func (r *RedisStore) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+key, value, expiration).Err(); err != nil {
		return ports.NewCacheError(key, "set", err)
	}
	return nil
}

// Delete removes key.
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return ports.NewCacheError(key, "delete", err)
	}
	return nil
}

// Clear removes every key under the store's prefix. It scans rather than
// flushing so other data in the same database is untouched.
func (r *RedisStore) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", clearBatchSize).Iterator()
	batch := make([]string, 0, clearBatchSize)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == clearBatchSize {
			if err := r.client.Del(ctx, batch...).Err(); err != nil {
				return ports.NewCacheError(r.prefix+"*", "clear", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return ports.NewCacheError(r.prefix+"*", "clear", err)
	}
	if len(batch) > 0 {
		if err := r.client.Del(ctx, batch...).Err(); err != nil {
			return ports.NewCacheError(r.prefix+"*", "clear", err)
		}
	}
	return nil
}
