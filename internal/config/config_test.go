package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, int64(600), cfg.Gateway.RateLimit.DefaultRequestsPerMinute)
	require.Equal(t, 1_000_000, cfg.Gateway.Telemetry.QueueCapacity)
	require.Equal(t, 60, cfg.Analytics.Metrics.WindowSeconds)
	require.Equal(t, 8, cfg.Analytics.Workers)
}

func TestLoadFileOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
analytics:
  workers: 16
gateway:
  rate-limit:
    default-requests-per-minute: 120
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 16, cfg.Analytics.Workers)
	require.Equal(t, int64(120), cfg.Gateway.RateLimit.DefaultRequestsPerMinute)
}

func TestZeroCapacityFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
analytics:
  queue:
    capacity: 0
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 1_000_000, cfg.Analytics.Queue.Capacity)
}
