package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UploadsProcessed tracks upload notifications by outcome
	UploadsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scanpipe_uploads_processed_total",
			Help: "Total number of upload notifications processed",
		},
		[]string{"outcome"},
	)

	// JobsCreated tracks analysis jobs created
	JobsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scanpipe_jobs_created_total",
			Help: "Total number of analysis jobs created",
		},
	)

	// ExecutionsCompleted tracks pipeline executions by final state
	ExecutionsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scanpipe_executions_completed_total",
			Help: "Total number of pipeline executions finished",
		},
		[]string{"state"},
	)

	// StageInvocations tracks model invocations per stage
	StageInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scanpipe_stage_invocations_total",
			Help: "Total number of stage model invocations",
		},
		[]string{"stage", "outcome"},
	)

	// StageErrors tracks stage failures by error kind
	StageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scanpipe_stage_errors_total",
			Help: "Total number of stage errors",
		},
		[]string{"stage", "kind"},
	)

	// StageLatency tracks per-stage processing latency
	StageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scanpipe_stage_latency_seconds",
			Help:    "Stage processing latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// ExecutionsInFlight tracks currently running executions
	ExecutionsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scanpipe_executions_in_flight",
			Help: "Number of pipeline executions currently running",
		},
	)

	// DBConnectionPoolUsage tracks database pool utilization
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scanpipe_db_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
