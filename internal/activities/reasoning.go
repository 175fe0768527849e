// Package activities exposes the reasoning pipeline as Temporal activities.
package activities

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/orchestrator"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/reasoning"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/reflection"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/strategies"
)

// Activity names as registered with the worker
const (
	ProcessReasoningActivity = "ProcessReasoning"
	RecordFeedbackActivity   = "RecordFeedback"
)

// Error types that the workflow should not retry
const (
	ErrTypeInvalidInput = "InvalidInput"
)

// Reasoner is the part of the orchestrator the activities need
type Reasoner interface {
	ProcessAdvancedReasoning(ctx context.Context, prompt string, rc *reasoning.RequestContext, prefs *reasoning.Preferences) *orchestrator.AdvancedReasoningResponse
	RecordFeedback(strategy reasoning.StrategyName, score float64) (reflection.SelfReflection, error)
}

// ReasoningInput is the payload of ProcessReasoning
type ReasoningInput struct {
	Prompt      string                    `json:"prompt"`
	Context     *reasoning.RequestContext `json:"context,omitempty"`
	Preferences *reasoning.Preferences    `json:"preferences,omitempty"`
}

// FeedbackInput is the payload of RecordFeedback
type FeedbackInput struct {
	SessionID string                 `json:"session_id"`
	Strategy  reasoning.StrategyName `json:"strategy"`
	Score     float64                `json:"score"`
}

// FeedbackResult reports the reflection produced by feedback
type FeedbackResult struct {
	ReflectionID     string  `json:"reflection_id"`
	ConfidenceUpdate float64 `json:"confidence_update"`
}

// ReasoningActivities holds dependencies for the reasoning activities
type ReasoningActivities struct {
	reasoner Reasoner
	logger   *zap.Logger
}

// NewReasoningActivities creates the activity set
func NewReasoningActivities(r Reasoner, logger *zap.Logger) *ReasoningActivities {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReasoningActivities{reasoner: r, logger: logger}
}

// ProcessReasoning runs one request through the pipeline. The pipeline
// degrades instead of failing, so only invalid input produces an error.
func (a *ReasoningActivities) ProcessReasoning(ctx context.Context, in ReasoningInput) (*orchestrator.AdvancedReasoningResponse, error) {
	if in.Prompt == "" {
		return nil, temporal.NewNonRetryableApplicationError("prompt is required", ErrTypeInvalidInput, nil)
	}

	info := activity.GetInfo(ctx)
	logger := a.logger.With(
		zap.String("workflow_id", info.WorkflowExecution.ID),
		zap.Int32("attempt", info.Attempt),
	)
	activity.RecordHeartbeat(ctx, "started")

	resp := a.reasoner.ProcessAdvancedReasoning(ctx, in.Prompt, in.Context, in.Preferences)
	logger.Info("Reasoning activity completed",
		zap.String("session_id", resp.SessionID),
		zap.Float64("confidence", resp.Confidence),
	)
	return resp, nil
}

// RecordFeedback applies caller feedback to the reflection engine
func (a *ReasoningActivities) RecordFeedback(ctx context.Context, in FeedbackInput) (FeedbackResult, error) {
	ref, err := a.reasoner.RecordFeedback(in.Strategy, in.Score)
	if err != nil {
		if errors.Is(err, strategies.ErrUnknownStrategy) || errors.Is(err, orchestrator.ErrInvalidFeedback) {
			return FeedbackResult{}, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidInput, err)
		}
		return FeedbackResult{}, fmt.Errorf("record feedback: %w", err)
	}
	a.logger.Info("Feedback applied",
		zap.String("session_id", in.SessionID),
		zap.String("strategy", string(in.Strategy)),
		zap.Float64("score", in.Score),
	)
	return FeedbackResult{ReflectionID: ref.ID, ConfidenceUpdate: ref.ConfidenceUpdate}, nil
}
