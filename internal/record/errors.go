package record

import "errors"

// Sentinel error taxonomy, wrapped with %w at each layer so callers can
// errors.Is against the taxonomy regardless of which component raised it.
var (
	// ErrClientAuth marks a missing or malformed credential. Respond 401.
	ErrClientAuth = errors.New("client auth error")
	// ErrRateLimited marks a client over its per-minute request budget.
	// Respond 429; the request is not routed, but the outer telemetry
	// capture step still emits its record.
	ErrRateLimited = errors.New("rate limited")
	// ErrRouteNotFound marks a path with no matching configured prefix.
	// Respond 404.
	ErrRouteNotFound = errors.New("route not found")
	// ErrUpstream marks a connection failure, timeout, or 5xx from the
	// routed backend. Respond 5xx, telemetry carries the tag.
	ErrUpstream = errors.New("upstream error")
	// ErrTelemetryDropped marks a telemetry record dropped by the emitter
	// (queue full or flush retries exhausted). Never surfaced to the client.
	ErrTelemetryDropped = errors.New("telemetry dropped")
	// ErrIngestDropped marks a record dropped by the raw-event sink (queue
	// full, storage unavailable, duplicate request ID).
	ErrIngestDropped = errors.New("ingest dropped")
	// ErrCacheUnavailable marks a metric-cache operation failure. The query
	// endpoint logs and returns an empty aggregate set rather than failing.
	ErrCacheUnavailable = errors.New("cache unavailable")
	// ErrConfig marks a fatal configuration problem at startup.
	ErrConfig = errors.New("config error")
)
