package reflection

import (
	"time"

	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/reasoning"
)

// Trigger names the condition that caused a reflection
type Trigger string

const (
	TriggerNone            Trigger = ""
	TriggerLowConfidence   Trigger = "low_confidence"
	TriggerStrategyFailure Trigger = "strategy_failure"
	TriggerContextChange   Trigger = "context_change"
	TriggerPeriodic        Trigger = "periodic"
	TriggerUserFeedback    Trigger = "user_feedback"
)

// SelfReflection is one meta-cognitive checkpoint
type SelfReflection struct {
	ID               string                 `json:"id"`
	Trigger          Trigger                `json:"trigger"`
	Strategy         reasoning.StrategyName `json:"strategy"`
	Analysis         string                 `json:"analysis"`
	Improvements     []string               `json:"improvements"`
	StrategicChanges []string               `json:"strategic_changes"`
	ConfidenceUpdate float64                `json:"confidence_update"`
	Timestamp        time.Time              `json:"timestamp"`
}

// MetaCognitiveState is the engine's view of how well reasoning is going
type MetaCognitiveState struct {
	CurrentStrategy  reasoning.StrategyName             `json:"current_strategy"`
	StrategiesUsed   []reasoning.StrategyName           `json:"strategies_used"`
	Effectiveness    map[reasoning.StrategyName]float64 `json:"effectiveness"`
	Confidence       float64                            `json:"confidence"`
	UncertaintyAreas []string                           `json:"uncertainty_areas"`
	NeedsHumanInput  bool                               `json:"needs_human_input"`
	LastReflection   time.Time                          `json:"last_reflection"`
}

// Execution describes one completed request as seen by the engine
type Execution struct {
	Strategy         reasoning.StrategyName
	Confidence       float64
	ProcessingTimeMs float64
	ContextType      string
	Analysis         reasoning.ProblemAnalysis
	Failed           bool
	// ConfidenceThreshold of zero uses the engine default
	ConfidenceThreshold float64
	// ReflectionDisabled skips reflecting but still tracks context
	ReflectionDisabled bool
}
