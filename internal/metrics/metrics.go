// Package metrics provides Prometheus metrics for the errdeck server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "errdeck"

// HTTP metrics
var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)
)

// Ingestion metrics
var (
	// NoticesIngestedTotal counts occurrences accepted into a problem.
	NoticesIngestedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "notices_total",
			Help:      "Total number of ingested occurrences",
		},
	)

	// NoticesRejectedTotal counts rejected occurrences by reason.
	NoticesRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "rejected_total",
			Help:      "Total number of rejected occurrences",
		},
		[]string{"reason"},
	)

	// ProblemsCreatedTotal counts newly created problems.
	ProblemsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "problems_created_total",
			Help:      "Total number of problems created",
		},
	)

	// FingerprintErrorsTotal counts occurrences ingested without a
	// fingerprint because computation failed.
	FingerprintErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "fingerprint_errors_total",
			Help:      "Total number of fingerprint computation failures",
		},
	)
)

// Maintenance metrics
var (
	// ProblemMergesTotal counts merge operations (ingest-triggered and manual).
	ProblemMergesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "problems",
			Name:      "merges_total",
			Help:      "Total number of problem merges",
		},
	)

	// NoticesCompressedTotal counts occurrences stripped by retention trims.
	NoticesCompressedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retention",
			Name:      "notices_compressed_total",
			Help:      "Total number of occurrences compressed by retention",
		},
	)

	// NotificationsTotal counts positive notification decisions.
	NotificationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Total number of notification decisions dispatched",
		},
	)
)
