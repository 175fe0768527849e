package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Request metrics
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reasoning_requests_total",
			Help: "Total number of advanced reasoning requests",
		},
		[]string{"status"},
	)

	RequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reasoning_request_duration_seconds",
			Help:    "End-to-end advanced reasoning duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	ResponseConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reasoning_response_confidence",
			Help:    "Confidence of final responses",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	// Analysis metrics
	ProblemsAnalyzed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reasoning_problems_analyzed_total",
			Help: "Problems analyzed by complexity and domain",
		},
		[]string{"complexity", "domain"},
	)

	// Selection metrics
	StrategySelections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reasoning_strategy_selections_total",
			Help: "Primary strategy selections by mode",
		},
		[]string{"strategy", "mode"},
	)

	// Execution metrics
	StrategyExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reasoning_strategy_executions_total",
			Help: "Strategy backend executions by outcome",
		},
		[]string{"strategy", "status"},
	)

	StrategyExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reasoning_strategy_execution_duration_ms",
			Help:    "Strategy backend execution duration in milliseconds",
			Buckets: []float64{100, 500, 1000, 2000, 5000, 10000, 30000},
		},
		[]string{"strategy"},
	)

	// Escalation metrics
	EscalationsTriggered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reasoning_escalations_total",
			Help: "Escalation loops by recommended next action",
		},
		[]string{"recommendation"},
	)

	EscalationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reasoning_escalation_attempts_total",
			Help: "Escalation attempts by strategy and outcome",
		},
		[]string{"strategy", "status"},
	)

	EscalationImprovement = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reasoning_escalation_confidence_gain",
			Help:    "Confidence gained by escalation (final - original)",
			Buckets: []float64{0, 0.05, 0.1, 0.2, 0.3, 0.5},
		},
	)

	// Reflection metrics
	Reflections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reasoning_reflections_total",
			Help: "Self-reflections by trigger",
		},
		[]string{"trigger"},
	)

	MetaCognitiveConfidence = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reasoning_metacognitive_confidence",
			Help: "Current meta-cognitive confidence",
		},
	)

	// Knowledge metrics
	KnowledgeSearches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reasoning_knowledge_searches_total",
			Help: "Knowledge collaborator searches",
		},
		[]string{"status"},
	)

	// Persistence metrics
	PersistenceWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reasoning_persistence_writes_total",
			Help: "Fire-and-forget persistence writes by type and outcome",
		},
		[]string{"type", "status"},
	)

	PersistenceQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reasoning_persistence_queue_depth",
			Help: "Pending writes in the persistence queue",
		},
	)

	// Session arena metrics
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reasoning_sessions_active",
			Help: "Strategy sessions in the running state",
		},
	)

	SessionEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reasoning_session_evictions_total",
			Help: "Strategy sessions evicted from the arena",
		},
	)
)
