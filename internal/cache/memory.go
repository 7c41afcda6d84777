package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/maypok86/otter/v2"
)

// entry wraps a cached value with its expiration time.
type entry struct {
	data      []byte
	expiresAt time.Time
}

// Memory is an in-memory W-TinyLFU cache backed by otter, used in tests; the
// analytics service always uses the Redis store. otter does not expose
// enumeration, so a side-table of live keys backs Scan.
type Memory struct {
	cache *otter.Cache[string, entry]

	mu   sync.Mutex
	keys map[string]struct{}
}

// NewMemory creates an in-memory cache with the given max entry count and
// default TTL. otter expires every entry defaultTTL after its write, so a
// per-Set TTL only takes effect when it is shorter than defaultTTL.
func NewMemory(maxSize int, defaultTTL time.Duration) (*Memory, error) {
	c, err := otter.New[string, entry](&otter.Options[string, entry]{
		MaximumSize:      maxSize,
		ExpiryCalculator: otter.ExpiryWriting[string, entry](defaultTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return &Memory{cache: c, keys: make(map[string]struct{})}, nil
}

// Get retrieves a value from the cache if present and not expired.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	e, ok := m.cache.GetIfPresent(key)
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		m.cache.Invalidate(key)
		m.forget(key)
		return nil, false
	}
	return e.data, true
}

// Set stores a value with per-entry TTL.
func (m *Memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	m.cache.Set(key, entry{data: val, expiresAt: time.Now().Add(ttl)})
	m.remember(key)
	return nil
}

// Delete removes a value from the cache.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.cache.Invalidate(key)
	m.forget(key)
	return nil
}

// Scan enumerates known keys sharing prefix in pages of pageSize. Expired
// entries are skipped and pruned as encountered.
func (m *Memory) Scan(ctx context.Context, prefix string, pageSize int, fn func(vals [][]byte) bool) error {
	m.mu.Lock()
	snapshot := make([]string, 0, len(m.keys))
	for k := range m.keys {
		if len(prefix) == 0 || (len(k) >= len(prefix) && k[:len(prefix)] == prefix) {
			snapshot = append(snapshot, k)
		}
	}
	m.mu.Unlock()

	page := make([][]byte, 0, pageSize)
	for _, k := range snapshot {
		if v, ok := m.Get(ctx, k); ok {
			page = append(page, v)
		}
		if len(page) >= pageSize {
			if !fn(page) {
				return nil
			}
			page = page[:0]
		}
	}
	if len(page) > 0 {
		fn(page)
	}
	return nil
}

func (m *Memory) remember(key string) {
	m.mu.Lock()
	m.keys[key] = struct{}{}
	m.mu.Unlock()
}

func (m *Memory) forget(key string) {
	m.mu.Lock()
	delete(m.keys, key)
	m.mu.Unlock()
}
