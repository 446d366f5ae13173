package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "table"},
	)

	StageTransitionCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stage_transition_count",
			Help: "Total number of stage/substage state transitions",
		},
		[]string{"event", "result"}, // result: applied, rejected
	)

	LogRebuildCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "log_rebuild_count",
			Help: "Total number of task logs created by rebuilds",
		},
		[]string{"trigger"}, // trigger: assignment_edit, full_sync
	)

	NotificationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_count",
			Help: "Total number of notifications processed",
		},
		[]string{"kind", "status"}, // status: sent, failed, deduped
	)
)

func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

func IncrementStageTransition(event, result string) {
	StageTransitionCount.WithLabelValues(event, result).Inc()
}

func AddLogRebuild(trigger string, count int) {
	LogRebuildCount.WithLabelValues(trigger).Add(float64(count))
}

func IncrementNotification(kind, status string) {
	NotificationCount.WithLabelValues(kind, status).Inc()
}
