package strategies

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/reasoning"
)

func TestLocalBackendConfidenceTracksStrength(t *testing.T) {
	bc := BackendContext{Analysis: reasoning.ProblemAnalysis{Complexity: reasoning.ComplexitySimple}}

	weak, err := NewLocalBackend(reasoning.StrategyBasic, 0).GenerateResponse(context.Background(), "s", "what is two plus two", bc)
	require.NoError(t, err)
	strong, err := NewLocalBackend(reasoning.StrategyTreeOfThoughts, 4).GenerateResponse(context.Background(), "s", "what is two plus two", bc)
	require.NoError(t, err)

	assert.InDelta(t, 0.55, weak.Confidence, 1e-9)
	assert.Greater(t, strong.Confidence, weak.Confidence)
	assert.Equal(t, reasoning.StrategyTreeOfThoughts, strong.Type)
	assert.NotEmpty(t, strong.ID)
	assert.Contains(t, strong.PrimaryResponse, "two plus two")
}

func TestLocalBackendComplexityPenaltyAndContext(t *testing.T) {
	bc := BackendContext{
		Analysis:          reasoning.ProblemAnalysis{Complexity: reasoning.ComplexityHighlyComplex},
		PreviousResponses: []string{"earlier"},
		Knowledge:         []string{"fact"},
	}
	res, err := NewLocalBackend(reasoning.StrategyBasic, 0).GenerateResponse(context.Background(), "s", "p", bc)
	require.NoError(t, err)
	assert.InDelta(t, 0.35, res.Confidence, 1e-9)
	assert.Len(t, res.ReasoningProcess, 3)
}

func TestLocalBackendHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLocalBackend(reasoning.StrategyBasic, 0).GenerateResponse(ctx, "s", "p", BackendContext{})
	assert.ErrorIs(t, err, context.Canceled)
}
