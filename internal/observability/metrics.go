// Package observability provides Prometheus metrics and the HTTP middleware
// that records them.
package observability

import "github.com/prometheus/client_golang/prometheus"

// ExecutionBuckets covers the expected execution latencies: interpreter
// runs are bounded by a timeout of a few seconds.
var ExecutionBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10}

var (
	// ExecutionsTotal counts script and SQL executions by outcome
	// (success, syntax_error, import_error, runtime_failure, timeout,
	// internal_fault).
	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mako_executions_total",
			Help: "Executions by outcome",
		},
		[]string{"outcome"},
	)

	// ExecutionDuration records wall-clock execution time in seconds.
	ExecutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mako_execution_duration_seconds",
			Help:    "Execution duration",
			Buckets: ExecutionBuckets,
		},
	)

	// ExecutionsInFlight tracks executions currently holding a slot.
	ExecutionsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mako_executions_in_flight",
			Help: "Executions currently running",
		},
	)

	// RequestsTotal counts HTTP requests by method, route pattern, and
	// status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mako_requests_total",
			Help: "HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method
	// and route pattern.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mako_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: ExecutionBuckets,
		},
		[]string{"method", "route"},
	)

	// DatasetsStored tracks how many datasets the store currently holds.
	DatasetsStored = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mako_datasets_stored",
			Help: "Datasets in the store",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ExecutionsTotal,
		ExecutionDuration,
		ExecutionsInFlight,
		RequestsTotal,
		RequestDuration,
		DatasetsStored,
	)
}
