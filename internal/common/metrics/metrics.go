package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	TicketsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_tickets_processed_total",
			Help: "Tickets that went through the full pipeline",
		},
		[]string{"category", "escalated"},
	)

	TicketsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "helpdesk_tickets_rejected_total",
			Help: "Tickets rejected before the first stage",
		},
	)

	ClassificationSource = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_classification_source_total",
			Help: "Classifications by source (model or fallback)",
		},
		[]string{"source"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "helpdesk_stage_duration_seconds",
			Help:    "Duration of each pipeline stage",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"},
	)

	StageFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_stage_fallbacks_total",
			Help: "Stages that substituted their fallback output",
		},
		[]string{"stage"},
	)

	ConfidenceScores = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "helpdesk_confidence_score",
			Help:    "Distribution of reply confidence scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	GenerationRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_generation_requests_total",
			Help: "Calls to the text generation backend",
		},
		[]string{"provider", "status"},
	)

	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "helpdesk_generation_duration_seconds",
			Help: "Latency of text generation calls",
		},
		[]string{"provider"},
	)

	KnowledgeCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_knowledge_cache_lookups_total",
			Help: "Knowledge cache lookups by result",
		},
		[]string{"result"},
	)

	SinkFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_sink_failures_total",
			Help: "Result sink writes that failed",
		},
		[]string{"sink"},
	)
)
