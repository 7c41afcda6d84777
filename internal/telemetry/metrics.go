// Package telemetry provides observability primitives for signalgate.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors shared by the gateway and
// analytics binaries. Both register against their own prometheus.Registry,
// so the same struct shape serves either process.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ActiveRequests   prometheus.Gauge
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	RateLimitRejects *prometheus.CounterVec

	CircuitBreakerState   *prometheus.GaugeVec   // labels: route
	CircuitBreakerRejects *prometheus.CounterVec // labels: route

	// Analytics pipeline gauges/counters.
	TelemetryQueueDepth  prometheus.Gauge      // emitter/raw-sink queue occupancy
	TelemetryDropsTotal  *prometheus.CounterVec // labels: stage (emitter|ingest)
	ComputeDuration      prometheus.Histogram   // metric compute-task latency
	IngestBatchSize      prometheus.Histogram   // accepted ingest batch sizes
}

// NewMetrics creates and registers all collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "signalgate",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "signalgate",
			Name:                            "request_duration_seconds",
			Help:                            "HTTP request duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "signalgate",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),

		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "signalgate",
			Name:      "cache_hits_total",
			Help:      "Total metric cache hits.",
		}),

		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "signalgate",
			Name:      "cache_misses_total",
			Help:      "Total metric cache misses.",
		}),

		RateLimitRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "signalgate",
			Name:      "ratelimit_rejects_total",
			Help:      "Total rate limit rejections.",
		}, []string{"type"}),

		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "signalgate",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per route (0=closed, 1=open, 2=half_open).",
		}, []string{"route"}),

		CircuitBreakerRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "signalgate",
			Name:      "circuit_breaker_rejects_total",
			Help:      "Total requests rejected by circuit breaker.",
		}, []string{"route"}),

		TelemetryQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "signalgate",
			Name:      "telemetry_queue_depth",
			Help:      "Current occupancy of a bounded telemetry queue.",
		}),

		TelemetryDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "signalgate",
			Name:      "telemetry_drops_total",
			Help:      "Total telemetry records dropped, by pipeline stage.",
		}, []string{"stage"}),

		ComputeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "signalgate",
			Name:      "metric_compute_duration_seconds",
			Help:      "Duration of a single per-key aggregate compute task.",
			Buckets:   prometheus.DefBuckets,
		}),

		IngestBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "signalgate",
			Name:      "ingest_batch_size",
			Help:      "Size of accepted telemetry ingest batches.",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000},
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ActiveRequests,
		m.CacheHits,
		m.CacheMisses,
		m.RateLimitRejects,
		m.CircuitBreakerState,
		m.CircuitBreakerRejects,
		m.TelemetryQueueDepth,
		m.TelemetryDropsTotal,
		m.ComputeDuration,
		m.IngestBatchSize,
	)

	return m
}
