package escalation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/execution"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/performance"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/reasoning"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/selection"
)

type ladder map[reasoning.StrategyName]int

func (l ladder) Strength(name reasoning.StrategyName) int {
	if v, ok := l[name]; ok {
		return v
	}
	return -1
}

var testLadder = ladder{
	reasoning.StrategyBasic:            0,
	reasoning.StrategyChainOfDraft:     1,
	reasoning.StrategyReAct:            2,
	reasoning.StrategyCouncilOfCritics: 3,
	reasoning.StrategyTreeOfThoughts:   4,
	reasoning.StrategyMetaCognitive:    5,
}

var available = []reasoning.StrategyName{
	reasoning.StrategyBasic,
	reasoning.StrategyChainOfDraft,
	reasoning.StrategyReAct,
	reasoning.StrategyCouncilOfCritics,
	reasoning.StrategyTreeOfThoughts,
	reasoning.StrategyMetaCognitive,
}

type scriptedRunner struct {
	mu   sync.Mutex
	conf map[reasoning.StrategyName]float64
	errs map[reasoning.StrategyName]error
	// blockFrom > 0 makes the blockFrom-th call and later ones wait for ctx
	blockFrom int
	calls     []reasoning.StrategyName
	reqs      []execution.Request
}

func (r *scriptedRunner) Run(ctx context.Context, name reasoning.StrategyName, req execution.Request) (*reasoning.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, name)
	r.reqs = append(r.reqs, req)
	n := len(r.calls)
	r.mu.Unlock()
	if r.blockFrom > 0 && n >= r.blockFrom {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := r.errs[name]; err != nil {
		return nil, err
	}
	return &reasoning.Result{Type: name, Confidence: r.conf[name], PrimaryResponse: string(name)}, nil
}

func newEscalator(t *testing.T, cfg Config, runner Runner) *Escalator {
	t.Helper()
	sel := selection.NewSelector(performance.NewTracker(), selection.WithStrengths(testLadder))
	return NewEscalator(cfg, runner, sel, zaptest.NewLogger(t))
}

func f(v float64) *float64 { return &v }

func TestThresholdAdjustmentsAndClamp(t *testing.T) {
	e := newEscalator(t, DefaultConfig(), &scriptedRunner{})
	name := reasoning.StrategyReAct

	assert.InDelta(t, 0.6, e.Threshold(name, nil, nil), 1e-9)
	assert.InDelta(t, 0.7, e.Threshold(name, &reasoning.Personality{RelationshipStrength: f(0.9)}, nil), 1e-9)
	assert.InDelta(t, 0.45, e.Threshold(name, &reasoning.Personality{UserMood: "frustrated"}, nil), 1e-9)
	assert.InDelta(t, 0.7, e.Threshold(name, &reasoning.Personality{PersonaSupportive: f(0.75)}, nil), 1e-9)
	assert.InDelta(t, 0.5, e.Threshold(name, nil, f(0.95)), 1e-9)

	// Boundaries are exclusive
	assert.InDelta(t, 0.6, e.Threshold(name, &reasoning.Personality{RelationshipStrength: f(0.8), PersonaSupportive: f(0.7)}, f(0.8)), 1e-9)

	hi := NewEscalator(Config{LowConfidenceThreshold: 0.85}, &scriptedRunner{}, nil, nil)
	assert.Equal(t, 0.9, hi.Threshold(name, &reasoning.Personality{RelationshipStrength: f(1), PersonaSupportive: f(1)}, nil))

	lo := NewEscalator(Config{LowConfidenceThreshold: 0.15}, &scriptedRunner{}, nil, nil)
	assert.Equal(t, 0.1, lo.Threshold(name, &reasoning.Personality{UserMood: "frustrated"}, f(1)))
}

func TestThresholdIsMonotonicInAdjustments(t *testing.T) {
	e := newEscalator(t, DefaultConfig(), &scriptedRunner{})
	for _, base := range []float64{0.1, 0.3, 0.5, 0.7, 0.9} {
		e.UpdateConfig(Config{LowConfidenceThreshold: base})
		plain := e.Threshold("x", nil, nil)
		up := e.Threshold("x", &reasoning.Personality{RelationshipStrength: f(0.95)}, nil)
		down := e.Threshold("x", &reasoning.Personality{UserMood: "frustrated"}, f(0.99))
		assert.GreaterOrEqual(t, up, plain)
		assert.LessOrEqual(t, down, plain)
		for _, v := range []float64{plain, up, down} {
			assert.GreaterOrEqual(t, v, 0.1)
			assert.LessOrEqual(t, v, 0.9)
		}
	}
}

func TestPerStrategyOverrides(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategies = map[string]StrategyThreshold{"react": {EscalationThreshold: 0.8, MaxAttempts: 1}}
	e := newEscalator(t, cfg, &scriptedRunner{})
	assert.InDelta(t, 0.8, e.Threshold(reasoning.StrategyReAct, nil, nil), 1e-9)
	assert.Equal(t, 1, e.MaxAttempts(reasoning.StrategyReAct))
	assert.Equal(t, 3, e.MaxAttempts(reasoning.StrategyBasic))
}

func TestNoEscalationForHighConfidence(t *testing.T) {
	runner := &scriptedRunner{}
	e := newEscalator(t, DefaultConfig(), runner)
	res := e.EvaluateAndEscalate(context.Background(), Input{Confidence: 0.95, Strategy: reasoning.StrategyReAct, Available: available})
	assert.False(t, res.Triggered)
	assert.Equal(t, ProceedWithBest, res.RecommendNextAction)
	assert.Zero(t, res.TotalAttempts)
	assert.Empty(t, runner.calls)
}

func TestCriticalConfidenceAlwaysEscalates(t *testing.T) {
	e := newEscalator(t, Config{LowConfidenceThreshold: 0.1}, &scriptedRunner{})
	assert.True(t, e.ShouldEscalate(0.29, 0.1))
	assert.False(t, e.ShouldEscalate(0.3, 0.1))
	assert.True(t, e.ShouldEscalate(0.5, 0.6))
}

func TestEscalationClimbsLadderAndStopsOnSuccess(t *testing.T) {
	runner := &scriptedRunner{conf: map[reasoning.StrategyName]float64{
		reasoning.StrategyCouncilOfCritics: 0.5,
		reasoning.StrategyTreeOfThoughts:   0.55,
		reasoning.StrategyMetaCognitive:    0.9,
	}}
	e := newEscalator(t, DefaultConfig(), runner)
	original := &reasoning.Result{Type: reasoning.StrategyReAct, Confidence: 0.4}

	res := e.EvaluateAndEscalate(context.Background(), Input{
		Result: original, Confidence: 0.4, Strategy: reasoning.StrategyReAct,
		Available: available, Request: execution.Request{SessionID: "s"},
	})

	require.True(t, res.Triggered)
	// attempt 1 asks for strength >= 3; every candidate has the 0.5 prior so the strongest wins the tie
	require.GreaterOrEqual(t, len(runner.calls), 1)
	assert.Equal(t, reasoning.StrategyMetaCognitive, runner.calls[0])
	assert.Equal(t, 1, res.TotalAttempts)
	assert.Equal(t, 1, res.SuccessfulAttempts)
	assert.InDelta(t, 0.9, res.FinalConfidence, 1e-9)
	assert.Equal(t, ProceedWithBest, res.RecommendNextAction)
	assert.Equal(t, reasoning.StrategyMetaCognitive, res.BestResult.Type)

	a := res.EscalationPath[0]
	assert.Equal(t, "meta_cognitive", a.Parameters["strategy"])
	assert.Equal(t, "3", a.Parameters["min_strength"])
	assert.Equal(t, "0.70", a.Parameters["confidence_floor"])
	require.NotNil(t, a.EndTime)
	assert.Equal(t, "1", runner.reqs[0].Context.Parameters["escalation_attempt"])
}

func TestFinalConfidenceNeverDrops(t *testing.T) {
	runner := &scriptedRunner{conf: map[reasoning.StrategyName]float64{
		reasoning.StrategyMetaCognitive: 0.1,
	}}
	e := newEscalator(t, DefaultConfig(), runner)
	res := e.EvaluateAndEscalate(context.Background(), Input{
		Result: &reasoning.Result{Confidence: 0.5}, Confidence: 0.5,
		Strategy: reasoning.StrategyReAct, Available: available,
	})
	assert.Equal(t, 3, res.TotalAttempts)
	assert.Equal(t, 3, res.SuccessfulAttempts)
	assert.Equal(t, 0.5, res.FinalConfidence)
	assert.GreaterOrEqual(t, res.FinalConfidence, res.OriginalConfidence)
	assert.Equal(t, ManualReview, res.RecommendNextAction)
}

func TestAllAttemptsFailRecommendsFallback(t *testing.T) {
	runner := &scriptedRunner{errs: map[reasoning.StrategyName]error{
		reasoning.StrategyMetaCognitive: errors.New("backend down"),
	}}
	cfg := DefaultConfig()
	cfg.Strategies = map[string]StrategyThreshold{"basic": {MaxAttempts: 2}}
	e := newEscalator(t, cfg, runner)
	res := e.EvaluateAndEscalate(context.Background(), Input{
		Confidence: 0.2, Strategy: reasoning.StrategyBasic, Available: available,
	})
	assert.Equal(t, 2, res.TotalAttempts)
	assert.Zero(t, res.SuccessfulAttempts)
	assert.Equal(t, "backend down", res.EscalationPath[0].ErrorMessage)
	assert.Equal(t, FallbackToBasic, res.RecommendNextAction)
	assert.Equal(t, 0.2, res.FinalConfidence)
}

func TestNoStrongerStrategyIsAFailedAttempt(t *testing.T) {
	runner := &scriptedRunner{conf: map[reasoning.StrategyName]float64{reasoning.StrategyBasic: 0.5}}
	e := newEscalator(t, DefaultConfig(), runner)
	res := e.EvaluateAndEscalate(context.Background(), Input{
		Confidence: 0.3, Strategy: reasoning.StrategyBasic,
		Available: []reasoning.StrategyName{reasoning.StrategyBasic},
	})
	require.Equal(t, 3, res.TotalAttempts)
	assert.False(t, res.EscalationPath[0].Success)
	assert.Contains(t, res.EscalationPath[0].ErrorMessage, "strength >= 1")
	// later attempts ask for the strongest available, which is basic itself
	assert.True(t, res.EscalationPath[1].Success)
	assert.InDelta(t, 0.5, res.FinalConfidence, 1e-9)
	assert.Equal(t, ProceedWithBest, res.RecommendNextAction)
}

func TestTimeBudgetBoundsTheLoop(t *testing.T) {
	runner := &scriptedRunner{
		blockFrom: 2,
		conf:      map[reasoning.StrategyName]float64{reasoning.StrategyMetaCognitive: 0.45},
	}
	cfg := DefaultConfig()
	cfg.MaxAttempts = 10
	cfg.MaxEscalationTime = 100 * time.Millisecond
	e := newEscalator(t, cfg, runner)

	start := time.Now()
	res := e.EvaluateAndEscalate(context.Background(), Input{
		Confidence: 0.4, Strategy: reasoning.StrategyReAct, Available: available,
	})
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
	assert.Equal(t, 2, res.TotalAttempts)
	assert.True(t, res.EscalationPath[0].Success)
	last := res.EscalationPath[len(res.EscalationPath)-1]
	assert.False(t, last.Success)
	assert.Equal(t, "escalation time budget exceeded", last.ErrorMessage)
	assert.InDelta(t, 0.45, res.FinalConfidence, 1e-9)
}

func TestAttemptHookSeesEveryAttempt(t *testing.T) {
	runner := &scriptedRunner{conf: map[reasoning.StrategyName]float64{reasoning.StrategyMetaCognitive: 0.2}}
	e := newEscalator(t, DefaultConfig(), runner)
	var seen []Attempt
	e.OnAttempt(func(sessionID string, a Attempt) {
		assert.Equal(t, "sess", sessionID)
		seen = append(seen, a)
	})
	res := e.EvaluateAndEscalate(context.Background(), Input{
		Confidence: 0.1, Strategy: reasoning.StrategyReAct, Available: available,
		Request: execution.Request{SessionID: "sess"},
	})
	assert.Len(t, seen, res.TotalAttempts)
}
