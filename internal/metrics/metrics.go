package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RecordsTotal counts records accepted into the buffer, by level name.
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logdb_records_total",
			Help: "Total number of log records enqueued",
		},
		[]string{"level"},
	)
	// FlushesTotal counts flushes by trigger (capacity, interval, force, close).
	FlushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logdb_flushes_total",
			Help: "Total number of batch flushes",
		},
		[]string{"trigger", "status"},
	)
	// FlushDuration is the wall time of one batch insert transaction.
	FlushDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "logdb_flush_duration_seconds",
			Help:    "Batch flush latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"trigger"},
	)
	// DroppedRecordsTotal counts records lost when a flush failed. Failed
	// batches are not requeued, so every failure shows up here.
	DroppedRecordsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logdb_dropped_records_total",
			Help: "Total number of records dropped by failed flushes",
		},
	)
	// PendingRecords tracks the current buffer length.
	PendingRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "logdb_pending_records",
			Help: "Records currently buffered and awaiting flush",
		},
	)
)

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
