package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRuns tracks completed sync runs by type and final status
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipesync_sync_runs_total",
			Help: "Total number of sync runs",
		},
		[]string{"type", "status"},
	)

	// ContactsProcessed tracks contacts by processing outcome
	ContactsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipesync_contacts_processed_total",
			Help: "Total number of contacts processed",
		},
		[]string{"result"},
	)

	// RemoteCalls tracks Pipedrive API calls per method
	RemoteCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipesync_remote_calls_total",
			Help: "Total number of remote CRM API calls",
		},
		[]string{"method"},
	)

	// RemoteErrors tracks Pipedrive API errors per method and kind
	RemoteErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipesync_remote_errors_total",
			Help: "Total number of remote CRM API errors",
		},
		[]string{"method", "kind"},
	)

	// BatchDuration tracks per-batch processing latency
	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipesync_batch_duration_seconds",
			Help:    "Batch processing duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	// BatchTimeouts tracks batches that hit their deadline
	BatchTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipesync_batch_timeouts_total",
			Help: "Total number of batch deadline hits",
		},
	)

	// DBConnectionPoolUsage tracks database pool utilization percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipesync_db_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)

	// SearchCacheHits tracks cached person-search lookups
	SearchCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipesync_search_cache_total",
			Help: "Person search cache lookups",
		},
		[]string{"outcome"},
	)
)
