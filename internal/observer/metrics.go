package observer

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"gitlab.com/nuloafrica/api/document-verification-processor/internal/model"
)

const namespace = "document_verification"

var (
	metricsEnabled = true // Flag to control metric collection

	// Labels for consumed events
	eventProcessingLabels = []string{"event_type", "consumer_type"}
	// Labels for tracking specific processing actions
	eventActionLabels = []string{"event_type", "consumer_type", "action", "error_type"}

	EventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Total number of events received from NATS, labeled by consumer type.",
		},
		eventProcessingLabels,
	)
	EventsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Total number of events successfully processed and acknowledged.",
		},
		eventProcessingLabels,
	)
	EventsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_failed_total",
			Help:      "Total number of events that failed processing (resulting in Nak or Term).",
		},
		eventProcessingLabels,
	)
	EventProcessingDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_processing_duration_seconds",
			Help:      "Histogram of event processing durations.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		},
		eventProcessingLabels,
	)
	EventProcessingActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_processing_actions_total",
			Help:      "Total count of ack decisions taken after event processing, labeled by error type.",
		},
		eventActionLabels,
	)

	// Global metrics instance
	Metrics *metricsStore
)

// Pull worker metrics, labeled by consumer
var (
	workerLabels = []string{"consumer"}

	workerFetchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "worker_fetch_requests_total",
		Help:      "Total number of fetch requests made by pull workers.",
	}, workerLabels)
	workerFetchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "worker_fetch_errors_total",
		Help:      "Total number of errors encountered during fetch requests.",
	}, workerLabels)
	workerQueueLength = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "worker_queue_length",
		Help:      "Current number of messages waiting in the internal worker channel.",
	}, workerLabels)
	workerPoolRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "worker_pool_running",
		Help:      "Current number of running goroutines in the worker pool.",
	}, workerLabels)
	workerTasksSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "worker_tasks_submitted_total",
		Help:      "Total number of tasks submitted to the worker pool.",
	}, workerLabels)
)

// Pipeline metrics
var (
	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "submissions_total",
		Help:      "Document submissions by document type and outcome (created, deduplicated, rejected).",
	}, []string{"document_type", "outcome"})
	hashFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "hash_fallbacks_total",
		Help:      "Fingerprints computed from the document URL because the content could not be fetched.",
	}, []string{"reason"})
	jobOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_outcomes_total",
		Help:      "Jobs leaving processing, labeled by resulting status.",
	}, []string{"document_type", "status"})
	jobProcessingDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_processing_duration_seconds",
		Help:      "Time from claim to settled outcome for one attempt.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
	}, []string{"document_type"})
	staleJobsRecoveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stale_jobs_recovered_total",
		Help:      "Jobs found stuck in processing and converted into transient failures.",
	})
	rollupChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rollup_changes_total",
		Help:      "Onboarding document_processing_status transitions.",
	}, []string{"from", "to"})
)

// Outbound call metrics
var (
	oracleCallDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "oracle_call_duration_seconds",
		Help:      "Duration of calls to extraction and verification services.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 13), // 10ms to ~40s
	}, []string{"oracle", "outcome"})
	fetchDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "fetch_duration_seconds",
		Help:      "Duration of document content fetches.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 13),
	}, []string{"scheme", "outcome"})
	cacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Cache lookups labeled by cache name and result.",
	}, []string{"cache", "result"})
)

// Labels for database operations
var (
	dbOperationLabels = []string{"operation", "entity", "status"}

	DatabaseOperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_operation_duration_seconds",
			Help:      "Histogram of database operation durations.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		dbOperationLabels,
	)
)

// Load generator metrics
var (
	loadgenLabels = []string{"subject"}

	loadgenMessagesAttemptedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "loadgen_messages_attempted_total",
		Help:      "Total number of messages the load generator attempted to publish.",
	}, loadgenLabels)
	loadgenMessagesPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "loadgen_messages_published_total",
		Help:      "Total number of messages successfully published by the load generator.",
	}, loadgenLabels)
	loadgenPublishErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "loadgen_publish_errors_total",
		Help:      "Total number of errors encountered by the load generator during publishing.",
	}, loadgenLabels)
)

// metricsStore marks metrics as initialised; collectors are registered by promauto.
type metricsStore struct{}

// InitMetrics enables or disables metric collection.
// Call this function during application startup.
func InitMetrics(enabled bool) {
	metricsEnabled = enabled
	if !enabled {
		Metrics = nil
		return
	}
	Metrics = &metricsStore{}
}

// Enabled reports whether helpers record observations
func Enabled() bool {
	return metricsEnabled
}

// IncEventsReceived increments the events received counter.
func IncEventsReceived(eventType, consumerType string) {
	if !metricsEnabled {
		return
	}
	EventsReceivedTotal.WithLabelValues(eventType, consumerType).Inc()
}

// IncEventsProcessed increments the events processed counter.
func IncEventsProcessed(eventType, consumerType string) {
	if !metricsEnabled {
		return
	}
	EventsProcessedTotal.WithLabelValues(eventType, consumerType).Inc()
}

// IncEventsFailed increments the events failed counter.
func IncEventsFailed(eventType, consumerType string) {
	if !metricsEnabled {
		return
	}
	EventsFailedTotal.WithLabelValues(eventType, consumerType).Inc()
}

// ObserveEventProcessingDuration records the processing time for a specific event.
func ObserveEventProcessingDuration(eventType, consumerType string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	EventProcessingDurationSeconds.WithLabelValues(eventType, consumerType).Observe(duration.Seconds())
}

// IncEventProcessingAction increments the counter for a specific ack decision.
func IncEventProcessingAction(eventType, consumerType, action, errorType string) {
	if !metricsEnabled {
		return
	}
	EventProcessingActionsTotal.WithLabelValues(eventType, consumerType, action, SanitizeErrorType(errorType)).Inc()
}

// --- Worker Metric Helpers ---

// IncWorkerFetchRequest increments the fetch request counter.
func IncWorkerFetchRequest(consumer string) {
	if Metrics != nil {
		workerFetchRequestsTotal.WithLabelValues(consumer).Inc()
	}
}

// IncWorkerFetchError increments the fetch error counter.
func IncWorkerFetchError(consumer string) {
	if Metrics != nil {
		workerFetchErrorsTotal.WithLabelValues(consumer).Inc()
	}
}

// SetWorkerQueueLength sets the current internal queue length.
func SetWorkerQueueLength(consumer string, length int) {
	if Metrics != nil {
		workerQueueLength.WithLabelValues(consumer).Set(float64(length))
	}
}

// SetWorkerPoolRunning sets the current number of running pool goroutines.
func SetWorkerPoolRunning(consumer string, count int) {
	if Metrics != nil {
		workerPoolRunning.WithLabelValues(consumer).Set(float64(count))
	}
}

// IncWorkerTasksSubmitted increments the counter for tasks submitted to the pool.
func IncWorkerTasksSubmitted(consumer string) {
	if Metrics != nil {
		workerTasksSubmittedTotal.WithLabelValues(consumer).Inc()
	}
}

// --- Pipeline Metric Helpers ---

// IncSubmission counts a submission outcome.
func IncSubmission(documentType model.DocumentType, outcome string) {
	if !metricsEnabled {
		return
	}
	submissionsTotal.WithLabelValues(sanitizeDocumentType(documentType), outcome).Inc()
}

// IncHashFallback counts a URL-based fingerprint.
func IncHashFallback(reason string) {
	if !metricsEnabled {
		return
	}
	hashFallbacksTotal.WithLabelValues(SanitizeErrorType(reason)).Inc()
}

// IncJobOutcome counts a job leaving processing.
func IncJobOutcome(documentType model.DocumentType, status model.JobStatus) {
	if !metricsEnabled {
		return
	}
	jobOutcomesTotal.WithLabelValues(sanitizeDocumentType(documentType), string(status)).Inc()
}

// ObserveJobProcessingDuration records one attempt's processing time.
func ObserveJobProcessingDuration(documentType model.DocumentType, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	jobProcessingDurationSeconds.WithLabelValues(sanitizeDocumentType(documentType)).Observe(duration.Seconds())
}

// AddStaleJobsRecovered counts jobs recovered by the sweeper.
func AddStaleJobsRecovered(n int) {
	if !metricsEnabled || n <= 0 {
		return
	}
	staleJobsRecoveredTotal.Add(float64(n))
}

// IncRollupChange counts an onboarding rollup transition.
func IncRollupChange(from, to model.ProcessingStatus) {
	if !metricsEnabled {
		return
	}
	rollupChangesTotal.WithLabelValues(string(from), string(to)).Inc()
}

// ObserveOracleCall records a call to an external service.
func ObserveOracleCall(oracle string, duration time.Duration, err error) {
	if !metricsEnabled {
		return
	}
	oracleCallDurationSeconds.WithLabelValues(oracle, outcome(err)).Observe(duration.Seconds())
}

// ObserveFetch records a document fetch.
func ObserveFetch(scheme string, duration time.Duration, err error) {
	if !metricsEnabled {
		return
	}
	fetchDurationSeconds.WithLabelValues(scheme, outcome(err)).Observe(duration.Seconds())
}

// IncCacheLookup counts a cache hit or miss.
func IncCacheLookup(cache string, hit bool) {
	if !metricsEnabled {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(cache, result).Inc()
}

// ObserveDbOperationDuration records the duration for a database operation.
func ObserveDbOperationDuration(operation, entity string, duration time.Duration, err error) {
	if !metricsEnabled {
		return
	}
	DatabaseOperationDurationSeconds.WithLabelValues(operation, entity, outcome(err)).Observe(duration.Seconds())
}

// --- Load Generator Metric Helpers ---

// IncLoadgenMessagesAttempted increments the counter for attempted message publications.
func IncLoadgenMessagesAttempted(subject string) {
	if Metrics != nil {
		loadgenMessagesAttemptedTotal.WithLabelValues(subject).Inc()
	}
}

// IncLoadgenMessagesPublished increments the counter for successfully published messages.
func IncLoadgenMessagesPublished(subject string) {
	if Metrics != nil {
		loadgenMessagesPublishedTotal.WithLabelValues(subject).Inc()
	}
}

// IncLoadgenPublishErrors increments the counter for publishing errors.
func IncLoadgenPublishErrors(subject string) {
	if Metrics != nil {
		loadgenPublishErrorsTotal.WithLabelValues(subject).Inc()
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// sanitizeDocumentType keeps arbitrary submitted types out of label values.
func sanitizeDocumentType(t model.DocumentType) string {
	if !t.IsKnown() {
		return "unknown"
	}
	return string(t)
}

// SanitizeErrorType maps specific errors or provides a default category.
// Keep this simple to avoid high cardinality.
func SanitizeErrorType(errStr string) string {
	if errStr == "" || errStr == "none" {
		return "none"
	}

	lower := strings.ToLower(errStr)
	switch {
	case strings.Contains(lower, "database"), strings.Contains(lower, "sql"), strings.Contains(lower, "duplicate key"), strings.Contains(lower, "constraint"):
		return "database"
	case strings.Contains(lower, "validation failed"), strings.Contains(lower, "bad request"), strings.Contains(lower, "invalid"):
		return "validation"
	case strings.Contains(lower, "not found"), strings.Contains(lower, "no rows"):
		return "not_found"
	case strings.Contains(lower, "nats"), strings.Contains(lower, "jetstream"):
		return "nats"
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "deadline exceeded"):
		return "timeout"
	case strings.Contains(lower, "fetch"), strings.Contains(lower, "connection"):
		return "fetch"
	case strings.Contains(lower, "oracle"), strings.Contains(lower, "rejected"):
		return "oracle"
	case strings.Contains(lower, "unmarshal"), strings.Contains(lower, "json"):
		return "unmarshal"
	case strings.Contains(lower, "panic"):
		return "panic"
	default:
		return "unknown"
	}
}
