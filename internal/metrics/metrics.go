package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for the sync and webhook paths.
var (
	SyncRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_runs_total",
			Help: "Total number of sync runs by final status",
		},
		[]string{"status"},
	)

	SyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_run_duration_seconds",
			Help:    "Duration of completed sync runs",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	RecordsSyncedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "records_synced_total",
			Help: "Total number of records upserted, by resource type and action",
		},
		[]string{"resource_type", "action"},
	)

	RecordsSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "records_skipped_total",
			Help: "Total number of records skipped due to mapping or upsert failures",
		},
		[]string{"resource_type"},
	)

	WebhookReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_events_received_total",
			Help: "Total number of webhook deliveries received",
		},
	)

	WebhookInvalidSignatureTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_events_invalid_signature_total",
			Help: "Total number of webhook deliveries rejected for bad signatures",
		},
	)

	WebhookDuplicateTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_events_duplicate_total",
			Help: "Total number of duplicate webhook deliveries",
		},
	)

	WebhookProcessedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_events_processed_total",
			Help: "Total number of webhook events processed to completion",
		},
	)

	WebhookFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_events_failed_total",
			Help: "Total number of webhook handler failures",
		},
	)

	WebhookDeadLetteredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_events_dead_lettered_total",
			Help: "Total number of webhook events that exhausted their retry budget",
		},
	)

	WebhookSweepRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_sweep_retries_total",
			Help: "Total number of events re-dispatched by the retry sweep",
		},
	)

	WebhookHandleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "webhook_handle_duration_seconds",
			Help:    "Duration of webhook Handle calls",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Register registers every collector with the default registry.
func Register() {
	prometheus.MustRegister(
		SyncRunsTotal,
		SyncDuration,
		RecordsSyncedTotal,
		RecordsSkippedTotal,
		WebhookReceivedTotal,
		WebhookInvalidSignatureTotal,
		WebhookDuplicateTotal,
		WebhookProcessedTotal,
		WebhookFailedTotal,
		WebhookDeadLetteredTotal,
		WebhookSweepRetriesTotal,
		WebhookHandleDuration,
	)
}
