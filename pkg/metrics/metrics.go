// Package metrics provides Prometheus metrics for the clover services.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncPassesTotal tracks reconciliation passes by outcome (ok, partial, failed)
	SyncPassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "sync",
			Name:      "passes_total",
			Help:      "Total number of reconciliation passes by outcome",
		},
		[]string{"outcome"},
	)

	// SyncPassDuration tracks reconciliation pass duration in seconds
	SyncPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "sync",
			Name:      "pass_duration_seconds",
			Help:      "Duration of reconciliation passes in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 60},
		},
	)

	// SyncPagesTotal tracks per-page sync results
	SyncPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "sync",
			Name:      "pages_total",
			Help:      "Total number of page syncs by status",
		},
		[]string{"status"},
	)

	// SyncUpsertsTotal tracks entities written by reconciliation
	SyncUpsertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "sync",
			Name:      "upserts_total",
			Help:      "Total number of entities upserted by reconciliation",
		},
		[]string{"kind"},
	)

	// SchedulerTicksSkipped tracks ticks dropped because a pass was still running
	SchedulerTicksSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "scheduler",
			Name:      "ticks_skipped_total",
			Help:      "Total number of scheduler ticks skipped while a pass was in flight",
		},
	)

	// StoreRequestsTotal tracks document store calls by action and result
	StoreRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "docstore",
			Name:      "requests_total",
			Help:      "Total number of document store requests",
		},
		[]string{"action", "result"},
	)

	// StoreRequestDuration tracks document store call duration
	StoreRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "docstore",
			Name:      "request_duration_seconds",
			Help:      "Duration of document store requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
		},
		[]string{"action"},
	)

	// PlatformRequestsTotal tracks messaging platform calls
	PlatformRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "platform",
			Name:      "requests_total",
			Help:      "Total number of messaging platform requests",
		},
		[]string{"operation", "status_code"},
	)

	// PlatformRequestDuration tracks messaging platform call duration
	PlatformRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "platform",
			Name:      "request_duration_seconds",
			Help:      "Duration of messaging platform requests in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)

	// MessagesSentTotal tracks outbound messages by delivery state
	MessagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "outbox",
			Name:      "messages_total",
			Help:      "Total number of outbound messages by delivery state",
		},
		[]string{"state"},
	)

	// ComplianceBlocksTotal tracks outbound messages blocked by the allow-list
	ComplianceBlocksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "compliance",
			Name:      "blocked_total",
			Help:      "Total number of outbound messages blocked by the link allow-list",
		},
	)

	// RateLimitHits tracks pages denied by the platform rate gate
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "ratelimit",
			Name:      "hits_total",
			Help:      "Total number of rate limit hits",
		},
		[]string{"limit_name"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaPublishDuration tracks Kafka publish duration
	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Duration of Kafka publish operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)

	// LoginsTotal tracks login attempts by identity source
	LoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "access",
			Name:      "logins_total",
			Help:      "Total number of login attempts by source and result",
		},
		[]string{"source", "result"},
	)
)

func RecordSyncPass(outcome string, durationSeconds float64) {
	SyncPassesTotal.WithLabelValues(outcome).Inc()
	SyncPassDuration.Observe(durationSeconds)
}

func RecordStoreRequest(action, result string, durationSeconds float64) {
	StoreRequestsTotal.WithLabelValues(action, result).Inc()
	StoreRequestDuration.WithLabelValues(action).Observe(durationSeconds)
}

func RecordPlatformRequest(operation, statusCode string, durationSeconds float64) {
	PlatformRequestsTotal.WithLabelValues(operation, statusCode).Inc()
	PlatformRequestDuration.WithLabelValues(operation).Observe(durationSeconds)
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string, durationSeconds float64) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
	KafkaPublishDuration.Observe(durationSeconds)
}
