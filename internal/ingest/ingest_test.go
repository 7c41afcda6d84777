package ingest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"signalgate/internal/record"
)

type fakeSink struct {
	mu      sync.Mutex
	records []record.TelemetryRecord
}

func (f *fakeSink) Enqueue(r record.TelemetryRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, r)
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

type fakeEngine struct {
	mu        sync.Mutex
	ingested  []record.TelemetryRecord
	triggered []record.AggregationKey
}

func (f *fakeEngine) Ingest(r record.TelemetryRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ingested = append(f.ingested, r)
}

func (f *fakeEngine) TriggerImmediate(k record.AggregationKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggered = append(f.triggered, k)
}

func (f *fakeEngine) triggerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.triggered)
}

func newTestHandler() (*Handler, *fakeSink, *fakeEngine) {
	sink := &fakeSink{}
	eng := &fakeEngine{}
	return New(sink, eng, nil), sink, eng
}

func mux(h *Handler) http.Handler {
	r := chi.NewRouter()
	h.Mount(r)
	return r
}

func TestHandleSingleValidAccepted(t *testing.T) {
	h, sink, eng := newTestHandler()

	rec := record.TelemetryRecord{RequestID: "r1", Path: "/api/users", Method: "GET", StatusCode: 200, Timestamp: time.Now()}
	body, _ := json.Marshal(rec)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/telemetry/ingest", bytes.NewReader(body))
	rec2 := httptest.NewRecorder()

	mux(h).ServeHTTP(rec2, req)

	require.Equal(t, http.StatusAccepted, rec2.Code)
	require.Equal(t, 1, sink.count())
	require.Equal(t, 1, eng.triggerCount())
}

func TestHandleSingleInvalidRejected(t *testing.T) {
	h, _, _ := newTestHandler()

	rec := record.TelemetryRecord{Path: "/api/users"} // missing method, requestId
	body, _ := json.Marshal(rec)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/telemetry/ingest", bytes.NewReader(body))
	w := httptest.NewRecorder()

	mux(h).ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleBatchPartiallyInvalidStillAccepted(t *testing.T) {
	h, sink, _ := newTestHandler()

	recs := []record.TelemetryRecord{
		{RequestID: "r1", Path: "/api/users", Method: "GET"},
		{Path: "missing-fields"},
	}
	body, _ := json.Marshal(recs)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/telemetry/ingest/batch", bytes.NewReader(body))
	w := httptest.NewRecorder()

	mux(h).ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Equal(t, 1, sink.count())

	var resp struct {
		Accepted int `json:"accepted"`
		Dropped  int `json:"dropped"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Accepted)
	require.Equal(t, 1, resp.Dropped)
}

func TestHandleBatchEmptyRejected(t *testing.T) {
	h, _, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/telemetry/ingest/batch", bytes.NewReader([]byte("[]")))
	w := httptest.NewRecorder()

	mux(h).ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleBatchAllInvalidRejected(t *testing.T) {
	h, _, _ := newTestHandler()

	recs := []record.TelemetryRecord{{Path: "/a"}, {Method: "GET"}}
	body, _ := json.Marshal(recs)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/telemetry/ingest/batch", bytes.NewReader(body))
	w := httptest.NewRecorder()

	mux(h).ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleBatchNormalizesPathBeforeKeying(t *testing.T) {
	h, _, eng := newTestHandler()

	recs := []record.TelemetryRecord{
		{RequestID: "r1", Path: "/api//users/", Method: "get"},
	}
	body, _ := json.Marshal(recs)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/telemetry/ingest/batch", bytes.NewReader(body))
	w := httptest.NewRecorder()

	mux(h).ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, eng.triggered, 1)
	require.Equal(t, "/api/users", eng.triggered[0].Path)
}

func TestHandleBatchLargeBatchFansOutInParallel(t *testing.T) {
	h, sink, _ := newTestHandler()

	recs := make([]record.TelemetryRecord, 250)
	for i := range recs {
		recs[i] = record.TelemetryRecord{RequestID: "r", Path: "/api/x", Method: "GET"}
	}
	body, _ := json.Marshal(recs)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/telemetry/ingest/batch", bytes.NewReader(body))
	w := httptest.NewRecorder()

	mux(h).ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Equal(t, 250, sink.count())
}
