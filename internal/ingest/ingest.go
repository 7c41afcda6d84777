// Package ingest implements the analytics service's telemetry ingest
// endpoint. It validates incoming records, fans each one out to the raw
// sink and the metric engine, and triggers an immediate recompute for
// every distinct key the batch touched.
package ingest

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"signalgate/internal/engine"
	"signalgate/internal/httpx"
	"signalgate/internal/rawstore"
	"signalgate/internal/record"
	"signalgate/internal/telemetry"
)

// parallelThreshold is the batch size above which per-record fan-out runs
// concurrently for batches over 100 records.
const parallelThreshold = 100

// Sink is the subset of rawstore.Sink ingest depends on.
type Sink interface {
	Enqueue(r record.TelemetryRecord)
}

// Engine is the subset of engine.Engine ingest depends on.
type Engine interface {
	Ingest(r record.TelemetryRecord)
	TriggerImmediate(k record.AggregationKey)
}

// Handler serves the telemetry ingest endpoints.
type Handler struct {
	sink    Sink
	engine  Engine
	metrics *telemetry.Metrics
}

// New builds a Handler. sink and eng are narrowed to the interfaces above
// so tests can substitute fakes for *rawstore.Sink / *engine.Engine.
func New(sink Sink, eng Engine, metrics *telemetry.Metrics) *Handler {
	return &Handler{sink: sink, engine: eng, metrics: metrics}
}

// Mount registers the ingest routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/api/v1/telemetry/ingest", h.handleSingle)
	r.Post("/api/v1/telemetry/ingest/batch", h.handleBatch)
}

func (h *Handler) handleSingle(w http.ResponseWriter, r *http.Request) {
	var rec record.TelemetryRecord
	if !httpx.DecodeJSON(w, r, &rec) {
		return
	}
	if !rec.Valid() {
		httpx.WriteJSON(w, http.StatusBadRequest, httpx.ErrorResponse("record missing path, method, or requestId"))
		return
	}

	h.accept(r.Context(), []record.TelemetryRecord{rec})
	httpx.WriteJSON(w, http.StatusAccepted, struct {
		Accepted int `json:"accepted"`
	}{Accepted: 1})
}

func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	var recs []record.TelemetryRecord
	if !httpx.DecodeJSON(w, r, &recs) {
		return
	}
	if len(recs) == 0 {
		httpx.WriteJSON(w, http.StatusBadRequest, httpx.ErrorResponse("batch is empty"))
		return
	}

	valid := make([]record.TelemetryRecord, 0, len(recs))
	for _, rec := range recs {
		if rec.Valid() {
			valid = append(valid, rec)
		}
	}
	if len(valid) == 0 {
		httpx.WriteJSON(w, http.StatusBadRequest, httpx.ErrorResponse("every record in the batch is invalid"))
		return
	}

	dropped := len(recs) - len(valid)
	if dropped > 0 && h.metrics != nil {
		h.metrics.TelemetryDropsTotal.WithLabelValues("ingest").Add(float64(dropped))
	}
	if h.metrics != nil {
		h.metrics.IngestBatchSize.Observe(float64(len(valid)))
	}

	h.accept(r.Context(), valid)
	httpx.WriteJSON(w, http.StatusAccepted, struct {
		Accepted int `json:"accepted"`
		Dropped  int `json:"dropped"`
	}{Accepted: len(valid), Dropped: dropped})
}

// accept normalizes and fans out records, then triggers an immediate
// recompute for every distinct key the batch touched. It never returns an
// error: fan-out onto bounded queues cannot fail from the caller's
// perspective, only drop under backpressure, which the queues themselves
// count.
func (h *Handler) accept(ctx context.Context, recs []record.TelemetryRecord) {
	keys := make(map[record.AggregationKey]struct{}, len(recs))

	fanOut := func(rec record.TelemetryRecord) {
		rec.Path = record.NormalizePath(rec.Path)
		if rec.Timestamp.IsZero() {
			rec.Timestamp = time.Now()
		}
		h.sink.Enqueue(rec)
		h.engine.Ingest(rec)
	}

	if len(recs) > parallelThreshold {
		g, _ := errgroup.WithContext(ctx)
		for _, rec := range recs {
			rec := rec
			g.Go(func() error {
				fanOut(rec)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for _, rec := range recs {
			fanOut(rec)
		}
	}

	for _, rec := range recs {
		keys[record.KeyFor(rec.Path, rec.Method)] = struct{}{}
	}
	for k := range keys {
		h.engine.TriggerImmediate(k)
	}
}
