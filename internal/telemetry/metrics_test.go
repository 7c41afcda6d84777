package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	m := NewMetrics(reg)

	require.NotNil(t, m.RequestsTotal)
	require.NotNil(t, m.RequestDuration)
	require.NotNil(t, m.ActiveRequests)
	require.NotNil(t, m.CacheHits)
	require.NotNil(t, m.CacheMisses)
	require.NotNil(t, m.RateLimitRejects)
	require.NotNil(t, m.CircuitBreakerState)
	require.NotNil(t, m.CircuitBreakerRejects)
	require.NotNil(t, m.TelemetryQueueDepth)
	require.NotNil(t, m.TelemetryDropsTotal)
	require.NotNil(t, m.ComputeDuration)
	require.NotNil(t, m.IngestBatchSize)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestNewMetricsIncrement(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	m := NewMetrics(reg)

	m.RequestsTotal.WithLabelValues("POST", "/api/v1/telemetry/ingest", "202").Inc()
	m.CacheHits.Inc()
	m.CacheMisses.Inc()
	m.ActiveRequests.Set(5)
	m.TelemetryQueueDepth.Set(42)
	m.TelemetryDropsTotal.WithLabelValues("emitter").Inc()
	m.ComputeDuration.Observe(0.01)
	m.IngestBatchSize.Observe(100)
	m.RequestDuration.WithLabelValues("POST", "/api/v1/telemetry/ingest").Observe(0.123)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}

	want := []string{
		"signalgate_requests_total",
		"signalgate_cache_hits_total",
		"signalgate_cache_misses_total",
		"signalgate_active_requests",
		"signalgate_request_duration_seconds",
		"signalgate_telemetry_queue_depth",
		"signalgate_telemetry_drops_total",
		"signalgate_metric_compute_duration_seconds",
		"signalgate_ingest_batch_size",
	}
	for _, name := range want {
		require.True(t, names[name], "missing metric %q in gathered families", name)
	}
}

// SetupTracing is not unit-tested because it requires a gRPC connection to
// an OTLP collector, which is integration-test territory.
