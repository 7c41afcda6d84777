package record

import (
	"context"
	"net/http"
)

type ctxKey int

const ctxKeyMeta ctxKey = iota

// requestMeta bundles per-request values into a single context allocation.
// ClientID, APIKey, and the telemetry outcome fields are set later by
// downstream filters via mutation of the same pointer, avoiding a second
// context.WithValue + Request.WithContext on the hot path.
type requestMeta struct {
	RequestID string
	ClientID  string
	APIKey    string

	RouteID         string
	UpstreamService string
	ErrorType       string
}

func metaFromContext(ctx context.Context) *requestMeta {
	m, _ := ctx.Value(ctxKeyMeta).(*requestMeta)
	return m
}

// ContextWithRequestID returns a context carrying a fresh requestMeta with
// the given request ID. Called once, by the outermost capture filter.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{RequestID: id})
}

// RequestIDFromContext extracts the per-request ID, or "" if none was set.
func RequestIDFromContext(ctx context.Context) string {
	if m := metaFromContext(ctx); m != nil {
		return m.RequestID
	}
	return ""
}

// ContextWithCredential stores clientID/apiKey in the existing requestMeta if
// present, avoiding a new context allocation. Falls back to creating fresh
// metadata if none exists (e.g. in tests that skip the requestID filter).
func ContextWithCredential(ctx context.Context, clientID, apiKey string) context.Context {
	if m := metaFromContext(ctx); m != nil {
		m.ClientID = clientID
		m.APIKey = apiKey
		return ctx
	}
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{ClientID: clientID, APIKey: apiKey})
}

// ClientIDFromContext extracts the authenticated caller's client ID, or ""
// if the request carried no credential.
func ClientIDFromContext(ctx context.Context) string {
	if m := metaFromContext(ctx); m != nil {
		return m.ClientID
	}
	return ""
}

// APIKeyFromContext extracts the raw credential string attached by the
// authenticate filter, or "" if none.
func APIKeyFromContext(ctx context.Context) string {
	if m := metaFromContext(ctx); m != nil {
		return m.APIKey
	}
	return ""
}

// ContextWithRouteOutcome records which route a request matched, so the
// outermost telemetry capture step can read it after the handler chain
// returns. Mutates the existing requestMeta in place when present.
func ContextWithRouteOutcome(ctx context.Context, routeID, upstreamService string) context.Context {
	if m := metaFromContext(ctx); m != nil {
		m.RouteID = routeID
		m.UpstreamService = upstreamService
		return ctx
	}
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{RouteID: routeID, UpstreamService: upstreamService})
}

// RouteOutcomeFromContext extracts the route ID and upstream service a
// request matched, or "", "" if none was recorded.
func RouteOutcomeFromContext(ctx context.Context) (routeID, upstreamService string) {
	if m := metaFromContext(ctx); m != nil {
		return m.RouteID, m.UpstreamService
	}
	return "", ""
}

// ContextWithErrorType records the outcome classification (e.g.
// "auth_failed", "rate_limited", "route_not_found", "upstream_error") any
// short-circuiting filter assigns, read back by the telemetry capture step.
// Mutates the existing requestMeta in place when present.
func ContextWithErrorType(ctx context.Context, errorType string) context.Context {
	if m := metaFromContext(ctx); m != nil {
		m.ErrorType = errorType
		return ctx
	}
	return context.WithValue(ctx, ctxKeyMeta, &requestMeta{ErrorType: errorType})
}

// ErrorTypeFromContext extracts the recorded outcome classification, or ""
// if the request completed without one.
func ErrorTypeFromContext(ctx context.Context) string {
	if m := metaFromContext(ctx); m != nil {
		return m.ErrorType
	}
	return ""
}

// Authenticator validates a request's credential and returns the derived
// clientID. Implementations never touch a backing store: authorization
// beyond opaque-key recognition is out of scope here.
type Authenticator interface {
	Authenticate(r *http.Request) (clientID, apiKey string, err error)
}
