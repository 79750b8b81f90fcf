package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics must be global for registration
var (
	// CacheLookups counts tolerance cache lookups by outcome
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpxenrich_cache_lookups_total",
			Help: "Total number of tolerance cache lookups",
		},
		[]string{"kind", "result"}, // result: hit, miss, error
	)

	// CacheCandidates observes how many entries survive the bounding box prefilter
	CacheCandidates = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gpxenrich_cache_candidates",
			Help:    "Number of cache entries returned by the bounding box prefilter",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1 to 512
		},
		[]string{"kind"},
	)

	// CacheWrites counts cache upserts
	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpxenrich_cache_writes_total",
			Help: "Total number of cache upserts",
		},
		[]string{"kind", "status"}, // status: success, error
	)

	// ExternalQueries counts external service calls by final outcome
	ExternalQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpxenrich_external_queries_total",
			Help: "Total number of external service queries",
		},
		[]string{"provider", "outcome"}, // outcome: success, rate_limited, timeout, transient, failure
	)

	// ExternalQueryDuration measures a single external call in seconds
	ExternalQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gpxenrich_external_query_duration_seconds",
			Help:    "External service call duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"provider"},
	)

	// QueryRetries counts retry attempts by the outcome that caused them
	QueryRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpxenrich_query_retries_total",
			Help: "Total number of external query retries",
		},
		[]string{"provider", "outcome"},
	)

	// BlocksProcessed counts enrichment blocks by where their value came from
	BlocksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpxenrich_blocks_total",
			Help: "Total number of enrichment blocks processed",
		},
		[]string{"stage", "source"}, // source: cache, query, fallback, invalid
	)

	// PointsProcessed counts trajectory points written by stage
	PointsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpxenrich_points_total",
			Help: "Total number of trajectory points processed",
		},
		[]string{"stage"},
	)

	// FeaturesJoined counts POIs and places kept or dropped by the nearest join
	FeaturesJoined = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpxenrich_features_joined_total",
			Help: "Total number of features processed by the nearest-neighbor join",
		},
		[]string{"stage", "result"}, // result: kept, dropped
	)

	// TasksTotal tracks the total number of enrichment tasks processed
	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpxenrich_tasks_total",
			Help: "Total number of enrichment tasks processed",
		},
		[]string{"status"}, // status: success, failed
	)

	// TaskDuration measures task execution duration in seconds
	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gpxenrich_task_duration_seconds",
			Help:    "Enrichment task duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17m
		},
		[]string{"status"},
	)

	// TasksRunning tracks the number of currently running tasks
	TasksRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gpxenrich_tasks_running",
			Help: "Number of currently running enrichment tasks",
		},
	)

	// TasksEnqueued counts total number of tasks enqueued
	TasksEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpxenrich_tasks_enqueued_total",
			Help: "Total number of tasks enqueued",
		},
		[]string{"trigger", "result"}, // trigger: scheduler, manual; result: enqueued, duplicate, error
	)

	// SchedulerLeader is 1 while this instance holds the scheduler lease
	SchedulerLeader = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gpxenrich_scheduler_leader",
			Help: "Whether this instance is the scheduler leader",
		},
	)

	// InboxScans counts inbox scans by result
	InboxScans = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpxenrich_inbox_scans_total",
			Help: "Total number of inbox scans",
		},
		[]string{"result"}, // result: success, error
	)

	// ErrorsTotal counts total number of errors
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpxenrich_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// RecordCacheLookup records a tolerance cache lookup
func RecordCacheLookup(kind, result string, candidates int) {
	CacheLookups.WithLabelValues(kind, result).Inc()

	if result != "error" {
		CacheCandidates.WithLabelValues(kind).Observe(float64(candidates))
	}
}

// RecordCacheWrite records a cache upsert
func RecordCacheWrite(kind, status string) {
	CacheWrites.WithLabelValues(kind, status).Inc()
}

// RecordExternalQuery records one external call
func RecordExternalQuery(provider, outcome string, duration float64) {
	ExternalQueries.WithLabelValues(provider, outcome).Inc()
	ExternalQueryDuration.WithLabelValues(provider).Observe(duration)
}

// RecordQueryRetry records a retry caused by outcome
func RecordQueryRetry(provider, outcome string) {
	QueryRetries.WithLabelValues(provider, outcome).Inc()
}

// RecordBlock records a processed block
func RecordBlock(stage, source string) {
	BlocksProcessed.WithLabelValues(stage, source).Inc()
}

// RecordPoints records points written by a stage
func RecordPoints(stage string, count int) {
	PointsProcessed.WithLabelValues(stage).Add(float64(count))
}

// RecordFeatures records joined features
func RecordFeatures(stage string, kept, dropped int) {
	FeaturesJoined.WithLabelValues(stage, "kept").Add(float64(kept))
	FeaturesJoined.WithLabelValues(stage, "dropped").Add(float64(dropped))
}

// RecordTaskStart records the start of a task
func RecordTaskStart() {
	TasksRunning.Inc()
}

// RecordTaskComplete records task completion
func RecordTaskComplete(status string, duration float64) {
	TasksRunning.Dec()
	TasksTotal.WithLabelValues(status).Inc()
	TaskDuration.WithLabelValues(status).Observe(duration)
}

// RecordTaskEnqueued records task enqueue
func RecordTaskEnqueued(trigger, result string) {
	TasksEnqueued.WithLabelValues(trigger, result).Inc()
}

// RecordLeader records a scheduler leadership change
func RecordLeader(isLeader bool) {
	if isLeader {
		SchedulerLeader.Set(1)
		return
	}

	SchedulerLeader.Set(0)
}

// RecordInboxScan records a finished inbox scan
func RecordInboxScan(result string) {
	InboxScans.WithLabelValues(result).Inc()
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
