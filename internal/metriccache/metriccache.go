// Package metriccache implements JSON (de)serialization of
// record.WindowAggregate on top of the generic cache.Store abstraction,
// with a "metrics:{path}:{METHOD}" key scheme.
package metriccache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"signalgate/internal/cache"
	"signalgate/internal/record"
)

// TTL is the fixed cache lifetime for a computed aggregate.
const TTL = 5 * time.Minute

const keyPrefix = "metrics:"

// Cache serves the metric engine's writes and the query handlers' reads of
// per-key aggregates.
type Cache struct {
	store cache.Store
}

// New wraps a cache.Store (Redis in production, Memory in tests) as a
// metric cache.
func New(store cache.Store) *Cache {
	return &Cache{store: store}
}

func keyOf(k record.AggregationKey) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, k.Path, k.Method)
}

// Put serializes agg and writes it synchronously: the post-compute store
// is on the critical path, so a synchronous write ensures dashboard reads
// reflect the newest aggregate.
func (c *Cache) Put(ctx context.Context, k record.AggregationKey, agg record.WindowAggregate) error {
	data, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("marshal aggregate: %w", err)
	}
	if err := c.store.Set(ctx, keyOf(k), data, TTL); err != nil {
		return fmt.Errorf("%w: %w", record.ErrCacheUnavailable, err)
	}
	return nil
}

// Get returns the cached aggregate for k, or (zero, false) on a miss or
// deserialization error.
func (c *Cache) Get(ctx context.Context, k record.AggregationKey) (record.WindowAggregate, bool) {
	data, ok := c.store.Get(ctx, keyOf(k))
	if !ok {
		return record.WindowAggregate{}, false
	}
	var agg record.WindowAggregate
	if err := json.Unmarshal(data, &agg); err != nil {
		slog.LogAttrs(ctx, slog.LevelWarn, "corrupt cached aggregate",
			slog.String("key", k.String()), slog.String("error", err.Error()))
		return record.WindowAggregate{}, false
	}
	return agg, true
}

// All enumerates every cached aggregate via cursor-based scanning in pages
// of 100. On a store error it logs and returns what it has so far rather
// than failing the caller, so a cache outage degrades to an empty or
// partial result instead of crashing the query handlers.
func (c *Cache) All(ctx context.Context) []record.WindowAggregate {
	var out []record.WindowAggregate
	err := c.store.Scan(ctx, keyPrefix, 100, func(vals [][]byte) bool {
		for _, v := range vals {
			var agg record.WindowAggregate
			if err := json.Unmarshal(v, &agg); err != nil {
				continue
			}
			out = append(out, agg)
		}
		return true
	})
	if err != nil {
		slog.LogAttrs(ctx, slog.LevelWarn, "metric cache scan failed",
			slog.String("error", err.Error()))
	}
	return out
}

// Delete removes the cached aggregate for k.
func (c *Cache) Delete(ctx context.Context, k record.AggregationKey) error {
	return c.store.Delete(ctx, keyOf(k))
}
