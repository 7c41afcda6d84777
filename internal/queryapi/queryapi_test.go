package queryapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"signalgate/internal/rawstore"
	"signalgate/internal/record"
)

type fakeCache struct {
	byKey map[record.AggregationKey]record.WindowAggregate
}

func (f *fakeCache) Get(ctx context.Context, k record.AggregationKey) (record.WindowAggregate, bool) {
	agg, ok := f.byKey[k]
	return agg, ok
}

func (f *fakeCache) All(ctx context.Context) []record.WindowAggregate {
	out := make([]record.WindowAggregate, 0, len(f.byKey))
	for _, agg := range f.byKey {
		out = append(out, agg)
	}
	return out
}

type fakeRaw struct {
	count     int64
	countErr  error
	endpoints []rawstore.EndpointVolume
	topErr    error
}

func (f *fakeRaw) CountSince(ctx context.Context, since time.Time) (int64, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.count, nil
}

func (f *fakeRaw) TopEndpoints(ctx context.Context, since time.Time, limit int) ([]rawstore.EndpointVolume, error) {
	if f.topErr != nil {
		return nil, f.topErr
	}
	if limit < len(f.endpoints) {
		return f.endpoints[:limit], nil
	}
	return f.endpoints, nil
}

func mux(h *Handler) http.Handler {
	r := chi.NewRouter()
	h.Mount(r)
	return r
}

func TestHandleAggregatedEmptyReturnsEmptyArray(t *testing.T) {
	h := New(&fakeCache{byKey: map[record.AggregationKey]record.WindowAggregate{}}, &fakeRaw{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics/aggregated", nil)
	w := httptest.NewRecorder()
	mux(h).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, "[]", w.Body.String())
}

func TestHandleEndpointFound(t *testing.T) {
	k := record.AggregationKey{Path: "/api/users", Method: "GET"}
	h := New(&fakeCache{byKey: map[record.AggregationKey]record.WindowAggregate{
		k: {Endpoint: "/api/users", Method: "GET", RequestCount: 5},
	}}, &fakeRaw{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics/endpoint/api/users?method=GET", nil)
	w := httptest.NewRecorder()
	mux(h).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var got record.WindowAggregate
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Equal(t, int64(5), got.RequestCount)
}

func TestHandleEndpointNotFound(t *testing.T) {
	h := New(&fakeCache{byKey: map[record.AggregationKey]record.WindowAggregate{}}, &fakeRaw{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics/endpoint/api/ghost?method=GET", nil)
	w := httptest.NewRecorder()
	mux(h).ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleEndpointMissingMethodRejected(t *testing.T) {
	h := New(&fakeCache{byKey: map[record.AggregationKey]record.WindowAggregate{}}, &fakeRaw{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics/endpoint/api/users", nil)
	w := httptest.NewRecorder()
	mux(h).ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleRPSComputesFromRawCount(t *testing.T) {
	h := New(&fakeCache{byKey: map[record.AggregationKey]record.WindowAggregate{}}, &fakeRaw{count: 120})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics/rps", nil)
	w := httptest.NewRecorder()
	mux(h).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var got rpsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Equal(t, 60, got.WindowSeconds)
	require.InDelta(t, 2.0, got.RPS, 0.001)
}

func TestHandleRPSDegradesToZeroOnStorageError(t *testing.T) {
	h := New(&fakeCache{byKey: map[record.AggregationKey]record.WindowAggregate{}}, &fakeRaw{countErr: errors.New("db down")})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics/rps", nil)
	w := httptest.NewRecorder()
	mux(h).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var got rpsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Equal(t, 0.0, got.RPS)
}

func TestHandleTopEndpointsRespectsLimit(t *testing.T) {
	h := New(&fakeCache{byKey: map[record.AggregationKey]record.WindowAggregate{}}, &fakeRaw{
		endpoints: []rawstore.EndpointVolume{
			{Path: "/api/users", Method: "GET", RequestCount: 100},
			{Path: "/api/orders", Method: "POST", RequestCount: 50},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics/top-endpoints?limit=1", nil)
	w := httptest.NewRecorder()
	mux(h).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var got []topEndpoint
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	require.Equal(t, "GET /api/users", got[0].Endpoint)
	require.Equal(t, int64(100), got[0].Count)
}
