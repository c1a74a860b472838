// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_events_published_total",
			Help: "Total number of outbox events published to the transport",
		},
		[]string{"event_type"},
	)

	RelayConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "outbox_relay_conflicts_total",
			Help: "Total number of PROCESSED markings lost to a concurrent relay instance",
		},
	)

	RelayFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "outbox_relay_failures_total",
			Help: "Total number of relay invocations that left the record PENDING",
		},
	)

	StageProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stage_events_processed_total",
			Help: "Total number of stage transitions applied",
		},
		[]string{"stage", "verdict"},
	)

	StageIgnored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stage_events_ignored_total",
			Help: "Total number of deliveries ignored (wrong event type or already handled)",
		},
		[]string{"stage", "reason"},
	)

	StageFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stage_events_failed_total",
			Help: "Total number of deliveries left for queue redelivery",
		},
		[]string{"stage", "error_code"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "stage_processing_duration_seconds",
			Help: "Duration of stage event processing in seconds",
		},
		[]string{"stage"},
	)

	NotificationsIndexed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_indexed_total",
			Help: "Total number of notification rows persisted",
		},
	)

	NotificationRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_bulk_retries_total",
			Help: "Total number of bulk-write retry cycles for unprocessed rows",
		},
	)

	NotificationsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_dropped_total",
			Help: "Total number of notification rows dropped after the retry ceiling",
		},
	)
)
