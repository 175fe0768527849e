package orchestrator

import (
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/escalation"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/performance"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/reasoning"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/reflection"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/selection"
)

// MetadataErrorRecovery is set on responses produced by the top-level
// fault handler.
const MetadataErrorRecovery = "errorRecovery"

// Audit actions
const (
	AuditFeedback      = "feedback"
	AuditErrorRecovery = "error_recovery"
	AuditConfigReload  = "config_reload"
)

// AdvancedReasoningResponse is the single object returned for every request
type AdvancedReasoningResponse struct {
	ID               string                     `json:"id"`
	SessionID        string                     `json:"session_id"`
	Response         string                     `json:"response"`
	Confidence       float64                    `json:"confidence"`
	ReasoningProcess []reasoning.Step           `json:"reasoning_process"`
	Alternatives     []string                   `json:"alternatives"`
	StrategiesUsed   []reasoning.StrategyName   `json:"strategies_used"`
	Analysis         *reasoning.ProblemAnalysis `json:"analysis,omitempty"`
	Strategy         *selection.Decision        `json:"strategy,omitempty"`
	Escalation       *escalation.Result         `json:"escalation,omitempty"`
	Reflection       *reflection.SelfReflection `json:"reflection,omitempty"`
	ProcessingTimeMs int64                      `json:"processing_time_ms"`
	Metadata         map[string]interface{}     `json:"metadata"`
}

// ErrorRecovery is the payload stored under Metadata[MetadataErrorRecovery]
type ErrorRecovery struct {
	Error string `json:"error"`
	Stage string `json:"stage"`
}

// Analytics is returned by GetPerformanceAnalytics
type Analytics struct {
	MetaCognitive reflection.MetaCognitiveState     `json:"meta_cognitive"`
	Reflections   []reflection.SelfReflection       `json:"reflections"`
	Capabilities  map[string]bool                   `json:"capabilities"`
	Performance   []performance.StrategyPerformance `json:"performance"`
	Sessions      map[string]int                    `json:"sessions"`
}
