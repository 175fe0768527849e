package strategies

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/reasoning"
)

// LocalBackend answers without any remote service. It is used for local runs
// and the CLI when no strategy endpoint is configured. Confidence grows with
// strategy strength and shrinks with problem complexity, so the pipeline can
// be exercised end to end with deterministic output.
type LocalBackend struct {
	name     reasoning.StrategyName
	strength int
}

// NewLocalBackend creates a deterministic backend for name
func NewLocalBackend(name reasoning.StrategyName, strength int) *LocalBackend {
	return &LocalBackend{name: name, strength: strength}
}

// GenerateResponse implements Backend
func (b *LocalBackend) GenerateResponse(ctx context.Context, sessionID, prompt string, bc BackendContext) (*reasoning.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	penalty := 0.0
	switch bc.Analysis.Complexity {
	case reasoning.ComplexityModerate:
		penalty = 0.05
	case reasoning.ComplexityComplex:
		penalty = 0.12
	case reasoning.ComplexityHighlyComplex:
		penalty = 0.2
	}
	conf := reasoning.Clamp(0.55+0.07*float64(b.strength)-penalty, 0.1, 0.95)

	now := time.Now()
	steps := []reasoning.Step{
		{Step: 1, Type: "analysis", Content: fmt.Sprintf("%s framed the problem as %s/%s", b.name, bc.Analysis.Domain, bc.Analysis.Complexity), Confidence: conf, Timestamp: now},
	}
	if len(bc.PreviousResponses) > 0 {
		steps = append(steps, reasoning.Step{Step: 2, Type: "review", Content: fmt.Sprintf("reviewed %d prior responses", len(bc.PreviousResponses)), Confidence: conf, Timestamp: now})
	}
	if len(bc.Knowledge) > 0 {
		steps = append(steps, reasoning.Step{Step: len(steps) + 1, Type: "grounding", Content: fmt.Sprintf("grounded on %d knowledge snippets", len(bc.Knowledge)), Confidence: conf, Timestamp: now})
	}

	return &reasoning.Result{
		ID:               uuid.NewString(),
		Type:             b.name,
		PrimaryResponse:  fmt.Sprintf("[%s] %s", b.name, summarize(prompt)),
		ReasoningProcess: steps,
		Confidence:       conf,
		Metadata: reasoning.ResultMetadata{
			ComplexityScore: float64(bc.Analysis.ComplexityScore),
			ResourcesUsed:   []string{"local"},
		},
	}, nil
}

func summarize(prompt string) string {
	fields := strings.Fields(prompt)
	if len(fields) > 24 {
		fields = append(fields[:24], "...")
	}
	return strings.Join(fields, " ")
}
