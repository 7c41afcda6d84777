package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"

	"signalgate/internal/telemetry"
)

// Mounter is implemented by internal/ingest.Handler and
// internal/queryapi.Handler: each registers its own routes on a chi.Router.
type Mounter interface {
	Mount(r chi.Router)
}

// AnalyticsDeps holds the two analytics-facing route groups: the ingest
// endpoints and the query endpoints. Both read/write through the raw
// store, metric cache, and compute engine, which are wired by the caller
// before constructing these handlers.
type AnalyticsDeps struct {
	Ingest Mounter
	Query  Mounter

	Metrics        *telemetry.Metrics
	MetricsHandler http.Handler
	Tracer         trace.Tracer
	ReadyCheck     ReadyChecker
}

// NewAnalytics builds the analytics service's http.Handler: ingest and
// query routes, with no authentication -- the analytics service is only
// reachable from the gateway's emitter and the dashboard poller on the
// internal network.
func NewAnalytics(deps AnalyticsDeps) http.Handler {
	r := chi.NewRouter()
	mountGlobalMiddleware(r, deps.Metrics, deps.Tracer)
	mountSystemRoutes(r, deps.ReadyCheck, deps.MetricsHandler)

	if deps.Ingest != nil {
		deps.Ingest.Mount(r)
	}
	if deps.Query != nil {
		deps.Query.Mount(r)
	}

	return r
}
