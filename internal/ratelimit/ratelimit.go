// Package ratelimit implements the per-client sliding-minute request
// counter the gateway's rate-limit filter consults. The counter store is an
// external KV dependency; on any store error the limiter fails open.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const window = 60 * time.Second

// Store is the narrow interface the limiter needs from the shared KV cache:
// increment a counter, setting ttl only on the first increment of a window.
type Store interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RedisStore implements Store with a single INCR, EXPIRE-on-first-increment
// pair -- simpler than a sorted-set sliding window since the per-client
// rate limit only needs an integer counter with a 60s TTL.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client for rate-limit counters.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Incr increments key and returns the new value, setting ttl the first time
// the key is created in the current window.
func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Result is the outcome of a rate-limit check, carrying the header values
// the filter attaches to 429 responses.
type Result struct {
	Allowed   bool
	Limit     int64
	Remaining int64
}

// Limiter enforces a fixed requests-per-minute cap per client, backed by
// Store. A limit <= 0 disables limiting entirely.
type Limiter struct {
	store Store
	limit int64
}

// New returns a Limiter with the given per-client limit. Pass limit <= 0 to
// disable rate limiting (Allow always returns Allowed: true).
func New(store Store, limit int64) *Limiter {
	return &Limiter{store: store, limit: limit}
}

// Allow increments the counter for clientID and reports whether the request
// is within the per-minute limit. On store error it fails open: the request
// is allowed and the error is logged, never surfaced to the caller.
func (l *Limiter) Allow(ctx context.Context, clientID string) Result {
	if l.limit <= 0 {
		return Result{Allowed: true}
	}
	key := "rate_limit:" + clientID
	n, err := l.store.Incr(ctx, key, window)
	if err != nil {
		slog.LogAttrs(ctx, slog.LevelWarn, "rate limit store error, failing open",
			slog.String("client_id", clientID),
			slog.String("error", err.Error()),
		)
		return Result{Allowed: true}
	}
	remaining := l.limit - n
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: n <= l.limit, Limit: l.limit, Remaining: remaining}
}
