package observability_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gatekit/gatekit/internal/observability"
)

func TestMetricsEndpointExposesGateDecisions(t *testing.T) {
	m := observability.NewMetrics()
	m.ObserveGate("owner", true)
	m.ObserveGate("owner", false)
	m.ObserveGate("roles", false)
	m.ObserveInitialization()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	res := httptest.NewRecorder()
	m.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}
	body := res.Body.String()
	for _, want := range []string{
		`gatekit_gate_decisions_total{gate="owner",outcome="allowed"} 1`,
		`gatekit_gate_decisions_total{gate="owner",outcome="denied"} 1`,
		`gatekit_gate_decisions_total{gate="roles",outcome="denied"} 1`,
		`gatekit_objects_initialized_total 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in metrics output", want)
		}
	}
}

func TestMiddlewareCountsRequests(t *testing.T) {
	m := observability.NewMetrics()
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/anything", nil))
	if res.Code != http.StatusTeapot {
		t.Fatalf("status = %d", res.Code)
	}

	metricsRes := httptest.NewRecorder()
	m.Handler().ServeHTTP(metricsRes, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(metricsRes.Body.String(), `gatekit_http_requests_total`) {
		t.Fatalf("request counter not exported")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *observability.Metrics
	m.ObserveGate("owner", true)
	m.ObserveInitialization()
	if m.Middleware(nil) != nil {
		// nil metrics pass the handler through untouched
		t.Fatalf("expected passthrough")
	}
}
