package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "photovault",
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Lifecycle operations by outcome",
		},
		[]string{"operation", "result"},
	)

	IngestBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "photovault",
			Subsystem: "lifecycle",
			Name:      "ingest_bytes_total",
			Help:      "Total bytes of ingested originals",
		},
		[]string{"kind"},
	)

	ThumbnailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "photovault",
			Subsystem: "thumbnail",
			Name:      "generated_total",
			Help:      "Thumbnail generation attempts by outcome",
		},
		[]string{"trigger", "result"},
	)

	ThumbnailDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "photovault",
			Subsystem: "thumbnail",
			Name:      "duration_seconds",
			Help:      "Thumbnail generation duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
	)

	SweepObjectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "photovault",
			Subsystem: "sweeper",
			Name:      "objects_total",
			Help:      "Binned objects handled by the retention sweeper",
		},
		[]string{"result"},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "photovault",
			Subsystem: "sweeper",
			Name:      "duration_seconds",
			Help:      "Retention sweep duration in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 30, 120},
		},
	)

	ReconcileActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "photovault",
			Subsystem: "reconcile",
			Name:      "actions_total",
			Help:      "Repairs applied by the reconciler",
		},
		[]string{"action"},
	)

	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "photovault",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "photovault",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"method", "route"},
	)
)

// RecordTransition counts one lifecycle operation.
func RecordTransition(operation, result string) {
	TransitionsTotal.WithLabelValues(operation, result).Inc()
}

// RecordIngest counts bytes of a stored original.
func RecordIngest(kind string, bytes int) {
	IngestBytesTotal.WithLabelValues(kind).Add(float64(bytes))
}

// RecordThumbnail counts one generation attempt.
func RecordThumbnail(trigger, result string, durationSec float64) {
	ThumbnailsTotal.WithLabelValues(trigger, result).Inc()
	ThumbnailDuration.Observe(durationSec)
}

// RecordSweep records the outcome counts of one sweep.
func RecordSweep(purged, skipped, failed int, durationSec float64) {
	SweepObjectsTotal.WithLabelValues("purged").Add(float64(purged))
	SweepObjectsTotal.WithLabelValues("skipped").Add(float64(skipped))
	SweepObjectsTotal.WithLabelValues("failed").Add(float64(failed))
	SweepDuration.Observe(durationSec)
}

func RecordReconcile(action string) {
	ReconcileActionsTotal.WithLabelValues(action).Inc()
}

// RecordRequest records an HTTP request
func RecordRequest(method, route, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, route, status).Inc()
	RequestDuration.WithLabelValues(method, route).Observe(durationSec)
}
