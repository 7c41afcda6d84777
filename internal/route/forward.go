package route

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"signalgate/internal/circuitbreaker"
	"signalgate/internal/record"
)

// hopByHopHeaders must not be forwarded between client and upstream.
var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// upstreamError wraps a 5xx upstream response with its status code, so
// circuitbreaker.ClassifyError can weight it without the forwarder knowing
// about circuit breaking.
type upstreamError struct {
	status int
}

func (e *upstreamError) Error() string  { return fmt.Sprintf("upstream responded %d", e.status) }
func (e *upstreamError) HTTPStatus() int { return e.status }

// Executor forwards requests to configured upstreams, guarding each target
// with its own circuit breaker.
type Executor struct {
	client   *http.Client
	breakers *circuitbreaker.Registry
}

// NewExecutor builds an Executor using client for upstream calls and
// breakers (nil disables circuit breaking) keyed by route ID.
func NewExecutor(client *http.Client, breakers *circuitbreaker.Registry) *Executor {
	return &Executor{client: client, breakers: breakers}
}

// Forward proxies r to route's target, stripping the matched prefix
// (already done by Table.Match -- strippedPath is what remains) and hop-by-
// hop headers, streaming the response back with flush-on-read for SSE/
// NDJSON. Returns record.ErrUpstream wrapping the failure on any transport
// or 5xx outcome, after recording it against the route's circuit breaker.
func (ex *Executor) Forward(ctx context.Context, rt Route, strippedPath string, w http.ResponseWriter, r *http.Request) error {
	if ex.breakers != nil {
		if cb := ex.breakers.Get(rt.ID); cb != nil && !cb.Allow() {
			return fmt.Errorf("%w: circuit breaker open for route %s", record.ErrUpstream, rt.ID)
		}
	}

	err := ex.doForward(ctx, rt, strippedPath, w, r)
	ex.record(rt.ID, err)
	if err != nil {
		return fmt.Errorf("%w: %w", record.ErrUpstream, err)
	}
	return nil
}

func (ex *Executor) record(routeID string, err error) {
	if ex.breakers == nil {
		return
	}
	if err == nil {
		ex.breakers.GetOrCreate(routeID).RecordSuccess()
		return
	}
	if weight := circuitbreaker.ClassifyError(err); weight > 0 {
		ex.breakers.GetOrCreate(routeID).RecordError(weight)
	}
}

func (ex *Executor) doForward(ctx context.Context, rt Route, strippedPath string, w http.ResponseWriter, r *http.Request) error {
	targetURL := rt.Target + strippedPath
	if r.URL.RawQuery != "" {
		targetURL += "?" + r.URL.RawQuery
	}

	outReq, err := http.NewRequestWithContext(ctx, r.Method, targetURL, r.Body)
	if err != nil {
		return fmt.Errorf("build upstream request: %w", err)
	}
	for key, vals := range r.Header {
		if _, hop := hopByHopHeaders[key]; hop {
			continue
		}
		outReq.Header[key] = vals
	}

	resp, err := ex.client.Do(outReq)
	if err != nil {
		return fmt.Errorf("do upstream request: %w", err)
	}
	defer resp.Body.Close()

	for key, vals := range resp.Header {
		if _, hop := hopByHopHeaders[key]; hop {
			continue
		}
		for _, v := range vals {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	if err := streamBody(w, resp); err != nil {
		return err
	}
	if resp.StatusCode >= 500 {
		return &upstreamError{status: resp.StatusCode}
	}
	return nil
}

// streamBody copies resp.Body to w, flushing after every read for
// streaming content types (SSE/NDJSON), and otherwise bulk-copying with a
// 32MB cap to bound memory use against a misbehaving upstream.
func streamBody(w http.ResponseWriter, resp *http.Response) error {
	flusher, canFlush := w.(http.Flusher)
	ct := resp.Header.Get("Content-Type")
	needsFlush := canFlush && (strings.Contains(ct, "text/event-stream") ||
		strings.Contains(ct, "application/x-ndjson") ||
		strings.Contains(ct, "application/stream+json"))

	if needsFlush {
		buf := make([]byte, 32*1024)
		for {
			n, readErr := resp.Body.Read(buf)
			if n > 0 {
				if _, writeErr := w.Write(buf[:n]); writeErr != nil {
					return fmt.Errorf("write streamed response: %w", writeErr)
				}
				flusher.Flush()
			}
			if readErr != nil {
				if readErr == io.EOF {
					return nil
				}
				return fmt.Errorf("read streamed response: %w", readErr)
			}
		}
	}

	const maxResponseBody = 32 << 20
	if _, err := io.Copy(w, io.LimitReader(resp.Body, maxResponseBody)); err != nil {
		return fmt.Errorf("copy response body: %w", err)
	}
	return nil
}
