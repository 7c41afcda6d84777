// Package record is the dependency-root of signalgate: the TelemetryRecord /
// AggregationKey / WindowAggregate types that cross the gateway/analytics
// boundary, plus the per-request context plumbing the gateway filter chain
// shares between middleware. record imports nothing project-local.
package record

import (
	"strings"
	"time"
)

// TelemetryRecord is the only entity crossing the gateway/analytics boundary.
// It is built once per request by the gateway's capture filter and consumed
// by the analytics ingest endpoint.
type TelemetryRecord struct {
	RequestID       string    `json:"requestId"`
	Path            string    `json:"path"`
	Method          string    `json:"method"`
	StatusCode      int       `json:"statusCode"`
	LatencyMs       int64     `json:"latencyMs"`
	ClientID        string    `json:"clientId"`
	APIKey          string    `json:"apiKey,omitempty"`
	UpstreamService string    `json:"upstreamService,omitempty"`
	RouteID         string    `json:"routeId,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	ErrorType       string    `json:"errorType,omitempty"`
	UserAgent       string    `json:"userAgent,omitempty"`
	IPAddress       string    `json:"ipAddress,omitempty"`
}

// IsError reports whether the record represents an error response.
func (r TelemetryRecord) IsError() bool { return r.StatusCode >= 400 }

// Valid reports whether r carries the minimum fields the ingest endpoint
// requires to accept a record: path, method, requestId.
func (r TelemetryRecord) Valid() bool {
	return r.Path != "" && r.Method != "" && r.RequestID != ""
}

// AggregationKey buckets records by (normalized path, uppercase method).
// The same key must be produced by both the event-buffer path and the
// percentile-digest path for a given record.
type AggregationKey struct {
	Path   string
	Method string
}

// String renders the key as "METHOD /path", used for cache keys and logs.
func (k AggregationKey) String() string { return k.Method + " " + k.Path }

// KeyFor derives the AggregationKey for a record's path and method,
// applying the same normalization rules producer and consumer share.
func KeyFor(path, method string) AggregationKey {
	return AggregationKey{Path: NormalizePath(path), Method: strings.ToUpper(method)}
}

// KeyOf returns r's aggregation key.
func (r TelemetryRecord) KeyOf() AggregationKey {
	return KeyFor(r.Path, r.Method)
}

// NormalizePath canonicalizes a URI path: ensures a leading slash, collapses
// repeated slashes, and strips a trailing slash except for the root path.
// normalize(normalize(p)) == normalize(p) for any p.
func NormalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}

	var b strings.Builder
	b.Grow(len(p))
	prevSlash := false
	for i := 0; i < len(p); i++ {
		c := p[i]
		if c == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteByte(c)
	}
	out := b.String()
	if len(out) > 1 && out[len(out)-1] == '/' {
		out = out[:len(out)-1]
	}
	if out == "" {
		out = "/"
	}
	return out
}

// WindowAggregate is the per-key computed metric snapshot, cached with a
// 5-minute TTL and served verbatim to the dashboard.
type WindowAggregate struct {
	Endpoint        string    `json:"endpoint"`
	Method          string    `json:"method"`
	WindowStart     time.Time `json:"windowStart"`
	WindowEnd       time.Time `json:"windowEnd"`
	RequestCount    int64     `json:"requestCount"`
	RPS             float64   `json:"rps"`
	P50LatencyMs    float64   `json:"p50LatencyMs"`
	P90LatencyMs    float64   `json:"p90LatencyMs"`
	P99LatencyMs    float64   `json:"p99LatencyMs"`
	MinLatencyMs    int64     `json:"minLatencyMs"`
	MaxLatencyMs    int64     `json:"maxLatencyMs"`
	ErrorRate       float64   `json:"errorRate"`
	ErrorCount      int64     `json:"errorCount"`
	SuccessCount    int64     `json:"successCount"`
	UpstreamService string    `json:"upstreamService,omitempty"`
}
