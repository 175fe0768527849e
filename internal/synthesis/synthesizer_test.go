package synthesis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/reasoning"
)

func result(name reasoning.StrategyName, conf float64, at time.Time) *reasoning.Result {
	return &reasoning.Result{
		ID:               string(name),
		Type:             name,
		PrimaryResponse:  string(name) + " says hi",
		Confidence:       conf,
		ReasoningProcess: []reasoning.Step{{Step: 1, Type: "thought", Content: string(name), Timestamp: at}},
		Alternatives:     []string{"shared", string(name)},
		Metadata: reasoning.ResultMetadata{
			ProcessingTimeMs: 10,
			ResourcesUsed:    []string{"search"},
		},
	}
}

func TestPassThroughWithoutSecondaries(t *testing.T) {
	p := result(reasoning.StrategyReAct, 0.4, time.Now())
	assert.Same(t, p, NewSynthesizer().Synthesize(p, nil))
}

func TestConsensusBonusForAgreement(t *testing.T) {
	combined := CombinedConfidence([]float64{0.8, 0.82})
	assert.Greater(t, combined, 0.81)
	assert.LessOrEqual(t, combined, 1.0)
}

func TestNoBonusForDisagreement(t *testing.T) {
	assert.Zero(t, ConsensusBonus([]float64{0.2, 0.9}))
	assert.InDelta(t, 0.55, CombinedConfidence([]float64{0.2, 0.9}), 1e-9)
}

func TestCombinedConfidenceStaysInRange(t *testing.T) {
	assert.Equal(t, 0.1, CombinedConfidence(nil))
	assert.InDelta(t, 0.2, CombinedConfidence([]float64{0, 0, 0}), 1e-9)
	assert.Equal(t, 1.0, CombinedConfidence([]float64{1, 1}))
	assert.GreaterOrEqual(t, CombinedConfidence([]float64{0.0, 0.01}), 0.1)
}

func TestSynthesizeMergesEverything(t *testing.T) {
	base := time.Now()
	primary := result(reasoning.StrategyReAct, 0.8, base.Add(2*time.Millisecond))
	council := result(reasoning.StrategyCouncilOfCritics, 0.82, base)
	draft := result(reasoning.StrategyChainOfDraft, 0.81, base.Add(time.Millisecond))

	out := NewSynthesizer().Synthesize(primary, []*reasoning.Result{council, draft})
	require.NotNil(t, out)

	assert.Equal(t, reasoning.StrategyReAct, out.Type)
	assert.Greater(t, out.Confidence, 0.81)

	require.Len(t, out.ReasoningProcess, 3)
	assert.Equal(t, "council_of_critics", out.ReasoningProcess[0].Content)
	assert.Equal(t, "chain_of_draft", out.ReasoningProcess[1].Content)
	assert.Equal(t, "react", out.ReasoningProcess[2].Content)
	assert.Equal(t, 3, out.ReasoningProcess[2].Step)

	assert.Equal(t, []string{"shared", "react", "council_of_critics", "chain_of_draft"}, out.Alternatives)
	assert.Equal(t, []string{"search"}, out.Metadata.ResourcesUsed)
	assert.Equal(t, []reasoning.StrategyName{
		reasoning.StrategyReAct, reasoning.StrategyCouncilOfCritics, reasoning.StrategyChainOfDraft,
	}, out.Metadata.SynthesizedFrom)
	assert.EqualValues(t, 30, out.Metadata.ProcessingTimeMs)

	assert.Contains(t, out.PrimaryResponse, "## Primary Analysis (React)")
	assert.Contains(t, out.PrimaryResponse, "## Council of Critics Analysis")
	assert.Contains(t, out.PrimaryResponse, "## Synthesis")
	assert.Contains(t, out.PrimaryResponse, "Chain of Draft")
}
