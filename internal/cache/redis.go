package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis implements Store against the shared KV dependency. Scan uses
// cursor-based SCAN rather than a blocking KEYS call, so iterating the
// cache never stalls other callers sharing the same Redis instance.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps an existing Redis client for metric-cache use.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Get retrieves a value by key.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return val, true
}

// Set stores a value with the given TTL via SET ... EX.
func (r *Redis) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, val, ttl).Err()
}

// Delete removes a value.
func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Scan enumerates keys matching prefix+"*" using cursor-based SCAN in pages
// of pageSize, fetching values with MGET per page.
func (r *Redis) Scan(ctx context.Context, prefix string, pageSize int, fn func(vals [][]byte) bool) error {
	var cursor uint64
	pattern := prefix + "*"
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, int64(pageSize)).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			raw, err := r.client.MGet(ctx, keys...).Result()
			if err != nil {
				return err
			}
			vals := make([][]byte, 0, len(raw))
			for _, v := range raw {
				s, ok := v.(string)
				if !ok {
					continue
				}
				vals = append(vals, []byte(s))
			}
			if len(vals) > 0 && !fn(vals) {
				return nil
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// ErrNotFound is available to callers wrapping Get's bool return into an
// error-returning signature.
var ErrNotFound = errors.New("cache: key not found")
