package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"signalgate/internal/route"
	"signalgate/internal/telemetry"
)

type fakeAuth struct{}

func (fakeAuth) Authenticate(r *http.Request) (string, string, error) {
	return "client01", "client0112345678", nil
}

func newTestGateway(metrics *telemetry.Metrics, metricsHandler http.Handler) http.Handler {
	routes := route.NewTable([]route.Entry{{RouteID: "users", Prefix: "/api/users", Service: "users", Target: "http://upstream.invalid"}})
	return NewGateway(GatewayDeps{
		Auth:           fakeAuth{},
		Routes:         routes,
		Executor:       route.NewExecutor(http.DefaultClient, nil),
		Metrics:        metrics,
		MetricsHandler: metricsHandler,
	})
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	h := newTestGateway(metrics, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: status = %d; body = %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: status = %d; body = %s", rec.Code, rec.Body.String())
	}
	metricsBody := rec.Body.String()
	if !strings.Contains(metricsBody, "signalgate_requests_total") {
		t.Error("metrics should contain signalgate_requests_total")
	}
	if !strings.Contains(metricsBody, "signalgate_request_duration_seconds") {
		t.Error("metrics should contain signalgate_request_duration_seconds")
	}
}

func TestMetricsMiddlewareIncrementsCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	h := newTestGateway(metrics, nil)

	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}

	found := false
	for _, f := range families {
		if f.GetName() == "signalgate_requests_total" {
			found = true
			for _, m := range f.GetMetric() {
				for _, l := range m.GetLabel() {
					if l.GetName() == "path" && l.GetValue() == "/healthz" {
						if m.GetCounter().GetValue() < 3 {
							t.Errorf("requests_total for /healthz = %f, want >= 3", m.GetCounter().GetValue())
						}
					}
				}
			}
		}
	}
	if !found {
		t.Error("signalgate_requests_total metric not found")
	}
}
