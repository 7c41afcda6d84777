// Package cache provides the byte-level key-value Store underneath the
// metric cache (package metriccache does the WindowAggregate JSON encoding
// and chooses the TTL). Full enumeration uses cursor-based scanning in
// pages, never a blocking "list all keys" call.
package cache

import (
	"context"
	"time"
)

// Store is the interface the metric engine writes aggregates through and
// the query handlers read them back from. Implementations: Memory (otter,
// tests) and Redis (go-redis/v9, production).
type Store interface {
	// Get retrieves a cached value by key.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores a value with the given TTL.
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	// Delete removes a cached value.
	Delete(ctx context.Context, key string) error
	// Scan enumerates all keys matching prefix in pages of pageSize,
	// invoking fn with each page's values. fn returning false stops the scan.
	Scan(ctx context.Context, prefix string, pageSize int, fn func(vals [][]byte) bool) error
}
