// Package metrics exposes Prometheus collectors for the title crawler.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	apiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_api_requests_total",
			Help: "Total MediaWiki API requests, labeled by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)

	apiRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crawler_api_request_duration_seconds",
			Help:    "Histogram of MediaWiki API request latencies, labeled by endpoint.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"endpoint"},
	)

	retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_retries_total",
			Help: "Total retry attempts, labeled by operation.",
		},
		[]string{"op"},
	)

	retryBackoffSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crawler_retry_backoff_seconds",
			Help:    "Backoff duration before each retry, labeled by operation.",
			Buckets: []float64{0.1, 0.2, 0.5, 1, 2, 5},
		},
		[]string{"op"},
	)

	retryGiveUpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_retry_give_ups_total",
			Help: "Total calls abandoned by the retry executor, labeled by operation and reason.",
		},
		[]string{"op", "reason"},
	)

	pagesCountedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_pages_counted_total",
			Help: "Total pages counted, labeled by namespace.",
		},
		[]string{"namespace"},
	)

	batchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_batches_total",
			Help: "Total listing batches processed, labeled by namespace.",
		},
		[]string{"namespace"},
	)

	namespacesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_namespaces_total",
			Help: "Total namespaces finished, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	publishFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_publish_failures_total",
			Help: "Total title batches the ingestion publisher failed to accept.",
		},
	)

	activeWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crawler_active_workers",
			Help: "Number of workers currently paginating a namespace.",
		},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest records one API call.
func ObserveRequest(endpoint, outcome string, duration time.Duration) {
	apiRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	apiRequestDurationSeconds.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// ObserveRetry records a scheduled retry and its backoff.
func ObserveRetry(op string, backoff time.Duration) {
	retriesTotal.WithLabelValues(op).Inc()
	retryBackoffSeconds.WithLabelValues(op).Observe(backoff.Seconds())
}

// ObserveRetryGiveUp records a call the executor stopped retrying.
func ObserveRetryGiveUp(op, reason string) {
	retryGiveUpsTotal.WithLabelValues(op, reason).Inc()
}

// ObserveBatch records one processed listing batch for namespace ns.
func ObserveBatch(ns int, counted int) {
	label := strconv.Itoa(ns)
	batchesTotal.WithLabelValues(label).Inc()
	if counted > 0 {
		pagesCountedTotal.WithLabelValues(label).Add(float64(counted))
	}
}

// ObserveNamespace records a finished namespace with the given outcome.
func ObserveNamespace(outcome string) {
	namespacesTotal.WithLabelValues(outcome).Inc()
}

// ObservePublishFailure increments the ingestion failure counter.
func ObservePublishFailure() {
	publishFailuresTotal.Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}
