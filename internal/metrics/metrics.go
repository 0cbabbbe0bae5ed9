package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HistoryLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recoverytrack_history_loads_total",
			Help: "History pipeline runs by outcome",
		},
		[]string{"outcome"},
	)

	HistoryLoadLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recoverytrack_history_load_latency_seconds",
			Help:    "Fetch, normalize and aggregate latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RecordsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recoverytrack_records_dropped_total",
			Help: "Stored records dropped by the normalizer for an unusable date",
		},
	)

	RecordsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recoverytrack_records_written_total",
			Help: "Records successfully written",
		},
	)

	RecordsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recoverytrack_records_rejected_total",
			Help: "Entries rejected by validation, by flag",
		},
		[]string{"flag"},
	)

	StoreBusyRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recoverytrack_store_busy_retries_total",
			Help: "Write attempts retried because the database was busy",
		},
	)

	AuthAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recoverytrack_auth_attempts_total",
			Help: "Sign-up and sign-in attempts by outcome",
		},
		[]string{"action", "outcome"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recoverytrack_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"route", "status"},
	)

	InsightLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recoverytrack_insight_latency_seconds",
			Help:    "Narrative generation latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40},
		},
	)
)
