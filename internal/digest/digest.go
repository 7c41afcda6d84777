// Package digest implements the percentile digest registry: one streaming
// t-digest per aggregation key, sharded 16 ways by FNV hash of the key so
// write contention scales with core count instead of serializing through a
// single global reader-writer lock.
package digest

import (
	"hash/fnv"
	"sync"

	"github.com/caio/go-tdigest/v4"

	"signalgate/internal/record"
)

const (
	shardCount  = 16
	compression = 100
)

// Registry holds one t-digest per key, created lazily on first observation.
type Registry struct {
	shards [shardCount]shard
}

type shard struct {
	mu      sync.Mutex
	digests map[record.AggregationKey]*tdigest.TDigest
}

// New returns an empty registry.
func New() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].digests = make(map[record.AggregationKey]*tdigest.TDigest)
	}
	return r
}

func (r *Registry) shardFor(k record.AggregationKey) *shard {
	h := fnv.New32a()
	h.Write([]byte(k.Method))
	h.Write([]byte(k.Path))
	return &r.shards[h.Sum32()%shardCount]
}

// Add records a latency observation for k, creating the digest on first use.
// Create and add both run under the owning shard's mutex: TDigest.Add is not
// safe for concurrent callers on the same instance, so the lock must cover
// the add itself, not just the map lookup.
func (r *Registry) Add(k record.AggregationKey, latencyMs float64) error {
	s := r.shardFor(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	td, ok := s.digests[k]
	if !ok {
		var err error
		td, err = tdigest.New(tdigest.Compression(compression))
		if err != nil {
			return err
		}
		s.digests[k] = td
	}
	return td.Add(latencyMs)
}

// Quantile returns the q-quantile (0..1) for k, or (0, false) if no digest
// exists yet for that key.
func (r *Registry) Quantile(k record.AggregationKey, q float64) (float64, bool) {
	s := r.shardFor(k)
	s.mu.Lock()
	td, ok := s.digests[k]
	s.mu.Unlock()
	if !ok {
		return 0, false
	}
	return td.Quantile(q), true
}

// Drop removes the digest for k, called when the event buffer for that key
// empties during aging.
func (r *Registry) Drop(k record.AggregationKey) {
	s := r.shardFor(k)
	s.mu.Lock()
	delete(s.digests, k)
	s.mu.Unlock()
}

// Has reports whether a digest exists for k, without allocating one.
func (r *Registry) Has(k record.AggregationKey) bool {
	s := r.shardFor(k)
	s.mu.Lock()
	_, ok := s.digests[k]
	s.mu.Unlock()
	return ok
}
