package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"

	"signalgate/internal/httpx"
	"signalgate/internal/ratelimit"
	"signalgate/internal/record"
	"signalgate/internal/route"
	"signalgate/internal/telemetry"
)

// TelemetryEmitter is the subset of emitter.Emitter the gateway's capture
// step depends on.
type TelemetryEmitter interface {
	Emit(r record.TelemetryRecord)
}

// GatewayDeps holds everything the gateway's filter chain needs: stateless
// auth, the rate limiter, the route table and forwarding executor, and the
// telemetry emitter.
type GatewayDeps struct {
	Auth        record.Authenticator
	RateLimiter *ratelimit.Limiter
	Routes      *route.Table
	Executor    *route.Executor
	Emitter     TelemetryEmitter

	// SkipPaths lists request paths that bypass both authenticate and
	// rateLimit, e.g. an operator-exposed health probe mounted inside the
	// proxied route space rather than via mountSystemRoutes.
	SkipPaths []string

	Metrics        *telemetry.Metrics
	MetricsHandler http.Handler
	Tracer         trace.Tracer
	ReadyCheck     ReadyChecker
}

type gatewayServer struct {
	deps      GatewayDeps
	skipPaths map[string]struct{}
}

func (s *gatewayServer) skipFilters(path string) bool {
	_, ok := s.skipPaths[path]
	return ok
}

// NewGateway builds the gateway's http.Handler: telemetry capture wraps
// authenticate -> rate-limit -> route, so every request reaching the
// authenticated group produces exactly one TelemetryRecord regardless of
// which step short-circuits it.
func NewGateway(deps GatewayDeps) http.Handler {
	skipPaths := make(map[string]struct{}, len(deps.SkipPaths))
	for _, p := range deps.SkipPaths {
		skipPaths[p] = struct{}{}
	}
	s := &gatewayServer{deps: deps, skipPaths: skipPaths}

	r := chi.NewRouter()
	mountGlobalMiddleware(r, deps.Metrics, deps.Tracer)
	mountSystemRoutes(r, deps.ReadyCheck, deps.MetricsHandler)

	r.Group(func(r chi.Router) {
		r.Use(s.captureTelemetry)
		r.Use(s.authenticate)
		r.Use(s.rateLimit)
		r.HandleFunc("/*", s.handleProxy)
	})

	return r
}

// captureTelemetry is the outermost step in the authenticated group: it
// times the whole chain, captures the final status code, and emits one
// TelemetryRecord per request once the chain returns -- whether it returned
// via a 401 from authenticate, a 429 from rateLimit, or a routed response
// from handleProxy. Each of those steps records its own outcome
// (route/error type) into the request context; this is the single place
// that reads it back and emits. A panic in the chain is recorded as a 500
// with errorType "panic" and then re-raised for the recovery middleware.
func (s *gatewayServer) captureTelemetry(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		sw := statusWriterPool.Get().(*statusWriter)
		sw.ResponseWriter = w
		sw.status = http.StatusOK
		sw.wroteHeader = false

		defer func() {
			if rec := recover(); rec != nil {
				r = r.WithContext(record.ContextWithErrorType(r.Context(), "panic"))
				s.emit(r, http.StatusInternalServerError, start)
				panic(rec)
			}
		}()

		next.ServeHTTP(sw, r)

		status := sw.status
		sw.ResponseWriter = nil
		statusWriterPool.Put(sw)

		s.emit(r, status, start)
	})
}

// authenticate validates the caller's API key and stores the derived
// client ID in context for downstream steps (rate-limit, telemetry capture).
func (s *gatewayServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.skipFilters(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		clientID, apiKey, err := s.deps.Auth.Authenticate(r)
		if err != nil {
			record.ContextWithErrorType(r.Context(), "auth_failed")
			httpx.WriteJSON(w, http.StatusUnauthorized, httpx.ErrorResponse("invalid or missing API key"))
			return
		}
		ctx := record.ContextWithCredential(r.Context(), clientID, apiKey)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rateLimit enforces the per-client requests-per-minute cap.
func (s *gatewayServer) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.RateLimiter == nil || s.skipFilters(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		clientID := record.ClientIDFromContext(r.Context())
		result := s.deps.RateLimiter.Allow(r.Context(), clientID)
		if !result.Allowed {
			if s.deps.Metrics != nil {
				s.deps.Metrics.RateLimitRejects.WithLabelValues("rpm").Inc()
			}
			record.ContextWithErrorType(r.Context(), "rate_limited")
			writeRateLimitError(w, result)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeRateLimitError(w http.ResponseWriter, r ratelimit.Result) {
	if r.Limit > 0 {
		w.Header()["X-Ratelimit-Limit"] = []string{strconv.FormatInt(r.Limit, 10)}
		w.Header()["X-Ratelimit-Remaining"] = []string{strconv.FormatInt(r.Remaining, 10)}
	}
	httpx.WriteJSON(w, http.StatusTooManyRequests, httpx.ErrorResponse("rate limit exceeded"))
}

// handleProxy matches the configured route table and forwards the request.
// Status capture and telemetry emission happen one layer out, in
// captureTelemetry, so this only needs to record the outcome classification
// for that outer step to read back.
func (s *gatewayServer) handleProxy(w http.ResponseWriter, r *http.Request) {
	rt, stripped, ok := s.deps.Routes.Match(r.URL.Path)
	if !ok {
		record.ContextWithErrorType(r.Context(), "route_not_found")
		httpx.WriteJSON(w, http.StatusNotFound, httpx.ErrorResponse("no route matches this path"))
		return
	}

	record.ContextWithRouteOutcome(r.Context(), rt.ID, rt.Service)

	if err := s.deps.Executor.Forward(r.Context(), rt, stripped, w, r); err != nil {
		record.ContextWithErrorType(r.Context(), "upstream_error")
	}
}

// emit builds and dispatches the single TelemetryRecord for a request,
// reading everything the chain recorded (credential, route match, outcome
// classification) back out of the request context.
func (s *gatewayServer) emit(r *http.Request, status int, start time.Time) {
	if s.deps.Emitter == nil {
		return
	}
	ctx := r.Context()
	routeID, upstreamService := record.RouteOutcomeFromContext(ctx)
	s.deps.Emitter.Emit(record.TelemetryRecord{
		RequestID:       record.RequestIDFromContext(ctx),
		Path:            record.NormalizePath(r.URL.Path),
		Method:          r.Method,
		StatusCode:      status,
		LatencyMs:       time.Since(start).Milliseconds(),
		ClientID:        record.ClientIDFromContext(ctx),
		UpstreamService: upstreamService,
		RouteID:         routeID,
		Timestamp:       start,
		ErrorType:       record.ErrorTypeFromContext(ctx),
		UserAgent:       r.UserAgent(),
		IPAddress:       clientIP(r),
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
