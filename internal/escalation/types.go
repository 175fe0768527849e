package escalation

import (
	"time"

	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/reasoning"
)

// Recommendation is the suggested next step after escalation
type Recommendation string

const (
	ProceedWithBest    Recommendation = "proceed_with_best"
	ProceedWithCaution Recommendation = "proceed_with_caution"
	FallbackToBasic    Recommendation = "fallback_to_basic"
	ManualReview       Recommendation = "manual_review_recommended"
)

// StrategyThreshold overrides escalation settings for one strategy
type StrategyThreshold struct {
	EscalationThreshold float64 `mapstructure:"escalation_threshold" yaml:"escalation_threshold" json:"escalation_threshold"`
	MaxAttempts         int     `mapstructure:"max_attempts" yaml:"max_attempts" json:"max_attempts"`
}

// Config holds escalation thresholds and budgets
type Config struct {
	LowConfidenceThreshold      float64                      `mapstructure:"low_confidence_threshold" yaml:"low_confidence_threshold" json:"low_confidence_threshold"`
	CriticalConfidenceThreshold float64                      `mapstructure:"critical_confidence_threshold" yaml:"critical_confidence_threshold" json:"critical_confidence_threshold"`
	MaxAttempts                 int                          `mapstructure:"max_attempts" yaml:"max_attempts" json:"max_attempts"`
	MaxEscalationTime           time.Duration                `mapstructure:"max_escalation_time" yaml:"max_escalation_time" json:"max_escalation_time"`
	SuccessBuffer               float64                      `mapstructure:"success_buffer" yaml:"success_buffer" json:"success_buffer"`
	Strategies                  map[string]StrategyThreshold `mapstructure:"strategies" yaml:"strategies" json:"strategies"`
}

// DefaultConfig returns the built-in escalation settings
func DefaultConfig() Config {
	return Config{
		LowConfidenceThreshold:      0.6,
		CriticalConfidenceThreshold: 0.3,
		MaxAttempts:                 3,
		MaxEscalationTime:           30 * time.Second,
		SuccessBuffer:               0.2,
		Strategies:                  map[string]StrategyThreshold{},
	}
}

// withDefaults fills zero fields from DefaultConfig
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.LowConfidenceThreshold <= 0 {
		c.LowConfidenceThreshold = d.LowConfidenceThreshold
	}
	if c.CriticalConfidenceThreshold <= 0 {
		c.CriticalConfidenceThreshold = d.CriticalConfidenceThreshold
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.MaxEscalationTime <= 0 {
		c.MaxEscalationTime = d.MaxEscalationTime
	}
	if c.SuccessBuffer <= 0 {
		c.SuccessBuffer = d.SuccessBuffer
	}
	strategies := make(map[string]StrategyThreshold, len(c.Strategies))
	for k, v := range c.Strategies {
		strategies[k] = v
	}
	c.Strategies = strategies
	return c
}

// Attempt records one escalation try. Never mutated after it is appended.
type Attempt struct {
	AttemptNumber    int                    `json:"attempt_number"`
	ServiceName      reasoning.StrategyName `json:"service_name"`
	Parameters       map[string]string      `json:"parameters"`
	StartTime        time.Time              `json:"start_time"`
	EndTime          *time.Time             `json:"end_time,omitempty"`
	ResultConfidence *float64               `json:"result_confidence,omitempty"`
	Success          bool                   `json:"success"`
	ErrorMessage     string                 `json:"error_message,omitempty"`
}

// Result is the outcome of EvaluateAndEscalate
type Result struct {
	Triggered           bool              `json:"triggered"`
	Threshold           float64           `json:"threshold"`
	OriginalConfidence  float64           `json:"original_confidence"`
	FinalConfidence     float64           `json:"final_confidence"`
	TotalAttempts       int               `json:"total_attempts"`
	SuccessfulAttempts  int               `json:"successful_attempts"`
	TotalExecutionTime  time.Duration     `json:"total_execution_time"`
	EscalationPath      []Attempt         `json:"escalation_path"`
	RecommendNextAction Recommendation    `json:"recommend_next_action"`
	BestResult          *reasoning.Result `json:"-"`
}
