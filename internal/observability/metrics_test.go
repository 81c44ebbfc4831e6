package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRegistered(t *testing.T) {
	// Seed every collector so the gather below sees them all; counters and
	// histograms with label dimensions only appear after first use.
	ExecutionsTotal.WithLabelValues("success").Inc()
	ExecutionDuration.Observe(0.01)
	ExecutionsInFlight.Set(0)
	RequestsTotal.WithLabelValues("GET", "/healthz", "2xx").Inc()
	RequestDuration.WithLabelValues("GET", "/healthz").Observe(0.01)
	DatasetsStored.Set(0)

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	want := map[string]bool{
		"mako_executions_total":           false,
		"mako_execution_duration_seconds": false,
		"mako_executions_in_flight":       false,
		"mako_requests_total":             false,
		"mako_request_duration_seconds":   false,
		"mako_datasets_stored":            false,
	}
	for _, mf := range families {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("metric %s not registered", name)
		}
	}
}

func TestMetricsMiddlewareRecordsRoute(t *testing.T) {
	before := testCounterValue(t, "GET", "/ping/{id}", "2xx")

	r := chi.NewRouter()
	r.Use(MetricsMiddleware)
	r.Get("/ping/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping/42", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	after := testCounterValue(t, "GET", "/ping/{id}", "2xx")
	if after != before+1 {
		t.Fatalf("counter = %v, want %v", after, before+1)
	}
}

func TestMetricsMiddlewareStatusClass(t *testing.T) {
	before := testCounterValue(t, "GET", "/boom", "5xx")

	r := chi.NewRouter()
	r.Use(MetricsMiddleware)
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	after := testCounterValue(t, "GET", "/boom", "5xx")
	if after != before+1 {
		t.Fatalf("counter = %v, want %v", after, before+1)
	}
}

func testCounterValue(t *testing.T, method, route, status string) float64 {
	t.Helper()
	m, err := RequestsTotal.GetMetricWithLabelValues(method, route, status)
	if err != nil {
		t.Fatalf("labels: %v", err)
	}
	return testutil.ToFloat64(m)
}
