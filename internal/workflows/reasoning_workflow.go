// Package workflows runs the reasoning pipeline durably on Temporal.
package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/activities"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/orchestrator"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/reasoning"
)

const (
	// FeedbackSignal carries a FeedbackSignalPayload
	FeedbackSignal = "reasoning-feedback"
	// StatusQuery returns the current Status
	StatusQuery = "reasoning-status"

	maxFeedbackWindow = 24 * time.Hour
)

// Status is the workflow progress reported by StatusQuery
type Status string

const (
	StatusProcessing       Status = "processing"
	StatusAwaitingFeedback Status = "awaiting_feedback"
	StatusCompleted        Status = "completed"
)

// ReasoningWorkflowInput starts a ReasoningWorkflow
type ReasoningWorkflowInput struct {
	activities.ReasoningInput
	// FeedbackWindow keeps the workflow open for a feedback signal. Zero skips it.
	FeedbackWindow time.Duration `json:"feedback_window,omitempty"`
}

// FeedbackSignalPayload scores the response. Empty Strategy means the primary.
type FeedbackSignalPayload struct {
	Strategy reasoning.StrategyName `json:"strategy,omitempty"`
	Score    float64                `json:"score"`
}

// ReasoningWorkflowResult is the workflow output
type ReasoningWorkflowResult struct {
	Response *orchestrator.AdvancedReasoningResponse `json:"response"`
	Feedback *activities.FeedbackResult              `json:"feedback,omitempty"`
}

// ReasoningWorkflow processes one prompt and optionally waits for feedback
func ReasoningWorkflow(ctx workflow.Context, input ReasoningWorkflowInput) (ReasoningWorkflowResult, error) {
	logger := workflow.GetLogger(ctx)
	status := StatusProcessing
	if err := workflow.SetQueryHandler(ctx, StatusQuery, func() (Status, error) {
		return status, nil
	}); err != nil {
		return ReasoningWorkflowResult{}, err
	}

	actx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 3 * time.Minute,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:        2,
			NonRetryableErrorTypes: []string{activities.ErrTypeInvalidInput},
		},
	})

	var resp orchestrator.AdvancedReasoningResponse
	if err := workflow.ExecuteActivity(actx, activities.ProcessReasoningActivity, input.ReasoningInput).Get(ctx, &resp); err != nil {
		logger.Error("Reasoning activity failed", "error", err)
		return ReasoningWorkflowResult{}, err
	}
	result := ReasoningWorkflowResult{Response: &resp}
	logger.Info("Reasoning completed", "session_id", resp.SessionID, "confidence", resp.Confidence)

	window := input.FeedbackWindow
	if window <= 0 {
		status = StatusCompleted
		return result, nil
	}
	if window > maxFeedbackWindow {
		window = maxFeedbackWindow
	}

	status = StatusAwaitingFeedback
	var (
		payload  FeedbackSignalPayload
		received bool
	)
	tctx, cancelTimer := workflow.WithCancel(ctx)
	sel := workflow.NewSelector(ctx)
	sel.AddReceive(workflow.GetSignalChannel(ctx, FeedbackSignal), func(c workflow.ReceiveChannel, more bool) {
		c.Receive(ctx, &payload)
		received = true
		cancelTimer()
	})
	sel.AddFuture(workflow.NewTimer(tctx, window), func(workflow.Future) {})
	sel.Select(ctx)

	if !received {
		logger.Info("Feedback window elapsed", "session_id", resp.SessionID)
		status = StatusCompleted
		return result, nil
	}

	strategy := payload.Strategy
	if strategy == "" && resp.Strategy != nil {
		strategy = resp.Strategy.Primary
	}
	var fb activities.FeedbackResult
	err := workflow.ExecuteActivity(actx, activities.RecordFeedbackActivity, activities.FeedbackInput{
		SessionID: resp.SessionID,
		Strategy:  strategy,
		Score:     payload.Score,
	}).Get(ctx, &fb)
	if err != nil {
		// The response is still valid without the feedback
		logger.Warn("Feedback activity failed", "error", err)
	} else {
		result.Feedback = &fb
	}
	status = StatusCompleted
	return result, nil
}

// Registry is satisfied by a worker and by the workflow test environment
type Registry interface {
	RegisterWorkflow(w interface{})
	RegisterActivity(a interface{})
}

// Register adds the reasoning workflow and activities to r
func Register(r Registry, acts *activities.ReasoningActivities) {
	r.RegisterWorkflow(ReasoningWorkflow)
	r.RegisterActivity(acts)
}
