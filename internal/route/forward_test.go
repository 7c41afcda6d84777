package route

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"signalgate/internal/circuitbreaker"
)

func TestForwardProxiesRequestAndResponse(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/456", r.URL.Path)
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer upstream.Close()

	ex := NewExecutor(upstream.Client(), nil)
	rt := Route{ID: "orders", Target: upstream.URL}

	req := httptest.NewRequest(http.MethodGet, "http://gateway/api/orders/456", nil)
	rec := httptest.NewRecorder()

	err := ex.Forward(context.Background(), rt, "/456", rec, req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "yes", rec.Header().Get("X-Upstream"))
	require.Equal(t, "ok", rec.Body.String())
}

func TestForwardOpensBreakerAfterRepeatedFailures(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer upstream.Close()

	breakers := circuitbreaker.NewRegistry(circuitbreaker.Config{
		ErrorThreshold: 0.1, MinSamples: 2, WindowSeconds: 60, OpenTimeout: time.Minute,
	})
	ex := NewExecutor(upstream.Client(), breakers)
	rt := Route{ID: "flaky", Target: upstream.URL}

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "http://gateway/x", nil)
		rec := httptest.NewRecorder()
		_ = ex.Forward(context.Background(), rt, "/x", rec, req)
	}

	req := httptest.NewRequest(http.MethodGet, "http://gateway/x", nil)
	rec := httptest.NewRecorder()
	err := ex.Forward(context.Background(), rt, "/x", rec, req)
	require.Error(t, err)
	require.Equal(t, circuitbreaker.StateOpen, breakers.Get("flaky").State())
	require.ErrorContains(t, err, "circuit breaker open")
}
