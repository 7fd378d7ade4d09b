package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Workflow metrics
	WorkflowsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scout_workflows_started_total",
			Help: "Total number of sourcing workflows started",
		},
	)

	WorkflowsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_workflows_completed_total",
			Help: "Total number of sourcing workflows finished",
		},
		[]string{"status"},
	)

	WorkflowDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scout_workflow_duration_seconds",
			Help:    "End-to-end workflow duration in seconds",
			Buckets: []float64{30, 60, 120, 300, 600, 1800, 3600, 7200},
		},
	)

	// Discovery metrics
	CandidatesDiscovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scout_candidates_discovered_total",
			Help: "Total number of candidates emitted by discovery",
		},
	)

	InvalidDiscoveryPayloads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scout_discovery_invalid_payloads_total",
			Help: "Total number of discovery payloads rejected by validation",
		},
	)

	// Candidate metrics
	CandidatesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_candidates_processed_total",
			Help: "Total number of candidates reaching a terminal status",
		},
		[]string{"status"},
	)

	// Agent run metrics
	AgentRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_agent_runs_total",
			Help: "Total number of agent runs by terminal status",
		},
		[]string{"agent_type", "status"},
	)

	AgentRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scout_agent_run_duration_seconds",
			Help:    "Agent run duration in seconds",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"agent_type"},
	)

	BrowserSessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scout_browser_sessions_created_total",
			Help: "Total number of browser automation sessions created",
		},
	)

	// Candidate queue metrics
	QueueTasksRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scout_queue_tasks_running",
			Help: "Number of candidate tasks currently executing",
		},
	)

	QueueTasksPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scout_queue_tasks_pending",
			Help: "Number of candidate tasks waiting for a slot",
		},
	)

	// Devpost lookup metrics
	DevpostLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_devpost_lookups_total",
			Help: "Devpost profile lookups by outcome (cache_hit, found, not_found, error)",
		},
		[]string{"outcome"},
	)
)
