// Package metrics registers the daemon's Prometheus collectors and serves
// them on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "openutr"

// Batch outcomes.
const (
	OutcomeCommitted = "committed"
	OutcomeReverted  = "reverted"
)

var latencyBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

var (
	registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests processed.",
	}, []string{"handler", "method", "code"})

	httpErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_errors_total",
		Help:      "HTTP requests that resulted in a server error.",
	}, []string{"handler", "method"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   latencyBuckets,
	}, []string{"handler", "method"})

	batches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batches_total",
		Help:      "Router batches by outcome and error code.",
	}, []string{"outcome", "code"})

	batchActions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batch_actions_total",
		Help:      "Actions submitted in router batches.",
	})

	batchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "batch_duration_seconds",
		Help:      "Router batch execution time in seconds.",
		Buckets:   latencyBuckets,
	}, []string{"outcome"})

	taskTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batch_tasks_total",
		Help:      "Batch task status transitions.",
	}, []string{"status"})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: namespace}),
		httpRequests, httpErrors, httpDuration,
		batches, batchActions, batchDuration, taskTransitions,
	)
}

// ObserveHTTPRequest records one served request.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	if status >= http.StatusInternalServerError {
		httpErrors.WithLabelValues(handler, method).Inc()
	}
	httpDuration.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// ObserveBatch records one router batch. code is empty for committed batches.
func ObserveBatch(outcome, code string, actions int, duration time.Duration) {
	batches.WithLabelValues(outcome, code).Inc()
	if actions > 0 {
		batchActions.Add(float64(actions))
	}
	batchDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveTaskTransition counts batch tasks reaching a status.
func ObserveTaskTransition(status string) {
	taskTransitions.WithLabelValues(status).Inc()
}

// Handler exposes the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}
