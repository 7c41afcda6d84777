// Package queryapi implements the dashboard-facing read endpoints over the
// cached aggregates and, for rps/top-endpoints, direct raw-store queries
// independent of the in-memory engine so the dashboard degrades gracefully
// during a cache or compute outage.
package queryapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"signalgate/internal/httpx"
	"signalgate/internal/rawstore"
	"signalgate/internal/record"
)

// rpsWindow is the fixed lookback for GET /metrics/rps.
const rpsWindow = 60 * time.Second

const defaultTopEndpointsLimit = 10

// MetricCache is the subset of metriccache.Cache the query endpoints read.
type MetricCache interface {
	Get(ctx context.Context, k record.AggregationKey) (record.WindowAggregate, bool)
	All(ctx context.Context) []record.WindowAggregate
}

// RawQuerier is the subset of rawstore.Store backing the raw-count
// endpoints (rps, top-endpoints).
type RawQuerier interface {
	CountSince(ctx context.Context, since time.Time) (int64, error)
	TopEndpoints(ctx context.Context, since time.Time, limit int) ([]rawstore.EndpointVolume, error)
}

// Handler serves the metrics query endpoints.
type Handler struct {
	cache MetricCache
	raw   RawQuerier
}

// New builds a Handler over cache and raw, narrowed to the interfaces
// above so tests can substitute fakes for *metriccache.Cache / *rawstore.Store.
func New(cache MetricCache, raw RawQuerier) *Handler {
	return &Handler{cache: cache, raw: raw}
}

// Mount registers the query routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/api/v1/metrics/aggregated", h.handleAggregated)
	r.Get("/api/v1/metrics/endpoint/*", h.handleEndpoint)
	r.Get("/api/v1/metrics/rps", h.handleRPS)
	r.Get("/api/v1/metrics/top-endpoints", h.handleTopEndpoints)
}

func (h *Handler) handleAggregated(w http.ResponseWriter, r *http.Request) {
	aggs := h.cache.All(r.Context())
	if aggs == nil {
		aggs = []record.WindowAggregate{}
	}
	httpx.WriteJSON(w, http.StatusOK, aggs)
}

func (h *Handler) handleEndpoint(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")
	if path == "" {
		httpx.WriteJSON(w, http.StatusBadRequest, httpx.ErrorResponse("path is required"))
		return
	}
	method := r.URL.Query().Get("method")
	if method == "" {
		httpx.WriteJSON(w, http.StatusBadRequest, httpx.ErrorResponse("method query param is required"))
		return
	}

	k := record.KeyFor("/"+path, method)
	agg, ok := h.cache.Get(r.Context(), k)
	if !ok {
		httpx.WriteJSON(w, http.StatusNotFound, httpx.ErrorResponse("no aggregate for endpoint"))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, agg)
}

func (h *Handler) handleRPS(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-rpsWindow)
	count, err := h.raw.CountSince(r.Context(), since)
	if err != nil {
		// Raw storage unreachable: degrade to rps=0 rather than failing the
		// dashboard poll.
		httpx.WriteJSON(w, http.StatusOK, rpsResponse{RPS: 0, WindowSeconds: int(rpsWindow.Seconds())})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rpsResponse{
		RPS:           float64(count) / rpsWindow.Seconds(),
		WindowSeconds: int(rpsWindow.Seconds()),
	})
}

type rpsResponse struct {
	RPS           float64 `json:"rps"`
	WindowSeconds int     `json:"window_seconds"`
}

func (h *Handler) handleTopEndpoints(w http.ResponseWriter, r *http.Request) {
	limit := defaultTopEndpointsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	since := time.Now().Add(-rpsWindow)
	volumes, err := h.raw.TopEndpoints(r.Context(), since, limit)
	if err != nil {
		httpx.WriteJSON(w, http.StatusOK, []topEndpoint{})
		return
	}

	out := make([]topEndpoint, len(volumes))
	for i, v := range volumes {
		out[i] = topEndpoint{
			Endpoint: strings.ToUpper(v.Method) + " " + v.Path,
			Count:    v.RequestCount,
		}
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

type topEndpoint struct {
	Endpoint string `json:"endpoint"`
	Count    int64  `json:"count"`
}
