package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryGetSetDelete(t *testing.T) {
	t.Parallel()
	m, err := NewMemory(100, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	_, ok := m.Get(ctx, "missing")
	require.False(t, ok)

	require.NoError(t, m.Set(ctx, "k1", []byte("v1"), time.Minute))
	val, ok := m.Get(ctx, "k1")
	require.True(t, ok)
	require.Equal(t, "v1", string(val))

	require.NoError(t, m.Delete(ctx, "k1"))
	_, ok = m.Get(ctx, "k1")
	require.False(t, ok)
}

func TestMemoryTTLExpiry(t *testing.T) {
	t.Parallel()
	m, err := NewMemory(100, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "expiring", []byte("data"), 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	_, ok := m.Get(ctx, "expiring")
	require.False(t, ok, "entry should be expired")
}

func TestMemoryScan(t *testing.T) {
	t.Parallel()
	m, err := NewMemory(100, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "metrics:/a:GET", []byte("1"), time.Minute))
	require.NoError(t, m.Set(ctx, "metrics:/b:GET", []byte("2"), time.Minute))
	require.NoError(t, m.Set(ctx, "other:x", []byte("3"), time.Minute))

	var seen [][]byte
	err = m.Scan(ctx, "metrics:", 1, func(vals [][]byte) bool {
		seen = append(seen, vals...)
		return true
	})
	require.NoError(t, err)
	require.Len(t, seen, 2)
}
