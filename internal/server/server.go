// Package server implements the HTTP transport layer for both signalgate
// binaries: the gateway (filter chain + upstream forwarding) and the
// analytics service (ingest + query endpoints). Each gets its own
// constructor since their route tables and dependencies don't overlap;
// they share the ambient middleware stack (security headers, recovery,
// request ID, logging, metrics, tracing) and the /healthz, /readyz, /metrics
// system endpoints.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"

	"signalgate/internal/telemetry"
)

// ReadyChecker reports whether the system is ready to serve traffic.
type ReadyChecker func(ctx context.Context) error

// mountSystemRoutes registers the endpoints common to both binaries:
// health/readiness checks and, if metricsHandler is set, Prometheus scrape.
func mountSystemRoutes(r chi.Router, check ReadyChecker, metricsHandler http.Handler) {
	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(check))
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}
}

// mountGlobalMiddleware registers the middleware both binaries apply to
// every request, including system endpoints.
func mountGlobalMiddleware(r chi.Router, metrics *telemetry.Metrics, tracer trace.Tracer) {
	r.Use(securityHeaders)
	r.Use(recovery)
	r.Use(requestID)
	r.Use(logging)
	if metrics != nil {
		r.Use(metricsMiddleware(metrics))
	}
	if tracer != nil {
		r.Use(tracingMiddleware(tracer))
	}
}
