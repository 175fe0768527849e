package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/db"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/escalation"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/execution"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/reasoning"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/reflection"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/strategies"
)

type recorder struct {
	mu          sync.Mutex
	sessions    []*db.ReasoningSession
	attempts    []*db.EscalationAttemptRecord
	reflections []*db.ReflectionRecord
	audits      []*db.AuditLog
}

func (r *recorder) RecordSession(s *db.ReasoningSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, s)
}

func (r *recorder) RecordEscalationAttempt(a *db.EscalationAttemptRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, a)
}

func (r *recorder) RecordReflection(rr *db.ReflectionRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reflections = append(r.reflections, rr)
}

func (r *recorder) RecordAudit(a *db.AuditLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audits = append(r.audits, a)
}

func (r *recorder) auditActions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.audits))
	for _, a := range r.audits {
		out = append(out, a.Action)
	}
	return out
}

type searcherFunc func(ctx context.Context, q string) ([]string, error)

func (f searcherFunc) Search(ctx context.Context, q string) ([]string, error) { return f(ctx, q) }

// registry where every strategy answers with conf, or fails when failing[name]
func newRegistry(t *testing.T, conf float64, failing map[reasoning.StrategyName]bool) *strategies.Registry {
	t.Helper()
	reg, err := strategies.NewDefaultRegistry(func(name reasoning.StrategyName) strategies.Backend {
		return strategies.BackendFunc(func(ctx context.Context, sessionID, prompt string, bc strategies.BackendContext) (*reasoning.Result, error) {
			if failing[name] {
				return nil, errors.New(string(name) + " backend down")
			}
			return &reasoning.Result{
				PrimaryResponse:  string(name) + " says hello",
				ReasoningProcess: []reasoning.Step{{Step: 1, Type: "thought", Content: prompt, Confidence: conf}},
				Confidence:       conf,
				Alternatives:     []string{string(name) + " alternative"},
			}, nil
		})
	})
	require.NoError(t, err)
	return reg
}

func allFailing() map[reasoning.StrategyName]bool {
	out := map[reasoning.StrategyName]bool{}
	for _, r := range strategies.Catalog() {
		out[r.Name] = true
	}
	return out
}

func newOrchestrator(t *testing.T, reg *strategies.Registry, s Settings) *Orchestrator {
	t.Helper()
	if s.Escalation.MaxEscalationTime == 0 {
		s.Escalation = escalation.DefaultConfig()
		s.Escalation.MaxEscalationTime = 5 * time.Second
	}
	o, err := NewFromRegistry(reg, s, zaptest.NewLogger(t))
	require.NoError(t, err)
	return o
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Dependencies{})
	assert.ErrorIs(t, err, ErrMissingDependency)
}

func TestPrimaryFailureDegradesToFallback(t *testing.T) {
	rec := &recorder{}
	o := newOrchestrator(t, newRegistry(t, 0.9, allFailing()), Settings{Recorder: rec})

	resp := o.ProcessAdvancedReasoning(t.Context(), "Explain the difference between TCP and UDP", nil, nil)
	require.NotNil(t, resp)

	assert.Equal(t, execution.FallbackConfidence, resp.Confidence)
	require.NotEmpty(t, resp.ReasoningProcess)
	assert.Equal(t, execution.StepTypeErrorFallback, resp.ReasoningProcess[0].Type)
	assert.NotEmpty(t, resp.Alternatives)
	assert.Empty(t, resp.StrategiesUsed)
	assert.Contains(t, resp.Metadata, "primaryError")

	require.NotNil(t, resp.Escalation)
	assert.True(t, resp.Escalation.Triggered)
	assert.Equal(t, 0, resp.Escalation.SuccessfulAttempts)
	assert.Equal(t, resp.Escalation.OriginalConfidence, resp.Escalation.FinalConfidence)

	require.NotNil(t, resp.Reflection)
	assert.Equal(t, reflection.TriggerLowConfidence, resp.Reflection.Trigger)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.sessions, 1)
	assert.True(t, rec.sessions[0].ErrorRecovery)
	assert.True(t, rec.sessions[0].Escalated)
	assert.Len(t, rec.attempts, resp.Escalation.TotalAttempts)
	assert.NotEmpty(t, rec.reflections)
}

func TestPrimaryFailureKeepsFallbackWhenOthersSucceed(t *testing.T) {
	rec := &recorder{}
	failing := map[reasoning.StrategyName]bool{reasoning.StrategyReAct: true}
	o := newOrchestrator(t, newRegistry(t, 0.9, failing), Settings{Recorder: rec})

	resp := o.ProcessAdvancedReasoning(t.Context(), "How do I fix this bug in my code", nil, nil)
	require.NotNil(t, resp)
	require.NotNil(t, resp.Strategy)
	require.Equal(t, reasoning.StrategyReAct, resp.Strategy.Primary)

	assert.Equal(t, execution.FallbackConfidence, resp.Confidence)
	require.Len(t, resp.ReasoningProcess, 1)
	assert.Equal(t, execution.StepTypeErrorFallback, resp.ReasoningProcess[0].Type)
	assert.NotEmpty(t, resp.Alternatives)
	assert.NotContains(t, resp.Response, "says hello")
	assert.Empty(t, resp.StrategiesUsed)
	assert.Contains(t, resp.Metadata, "primaryError")

	// healthy strategies still answered during escalation
	require.NotNil(t, resp.Escalation)
	assert.True(t, resp.Escalation.Triggered)
	assert.Positive(t, resp.Escalation.SuccessfulAttempts)
	assert.Greater(t, resp.Escalation.FinalConfidence, resp.Confidence)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.sessions, 1)
	assert.True(t, rec.sessions[0].ErrorRecovery)
	assert.Equal(t, execution.FallbackConfidence, rec.sessions[0].Confidence)
}

func TestMultiplePerspectivesAddsCouncilSecondary(t *testing.T) {
	o := newOrchestrator(t, newRegistry(t, 0.85, nil), Settings{})

	resp := o.ProcessAdvancedReasoning(t.Context(),
		"Give me different perspectives on our api versioning", nil, nil)

	require.NotNil(t, resp.Strategy)
	assert.Equal(t, reasoning.StrategyReAct, resp.Strategy.Primary)
	assert.Contains(t, resp.Strategy.Secondary, reasoning.StrategyCouncilOfCritics)
	assert.Contains(t, resp.StrategiesUsed, reasoning.StrategyReAct)
	assert.Contains(t, resp.StrategiesUsed, reasoning.StrategyCouncilOfCritics)
	assert.Contains(t, resp.Response, "says hello")
	assert.Greater(t, resp.Confidence, 0.85)
	assert.LessOrEqual(t, resp.Confidence, 1.0)
	assert.False(t, resp.Escalation.Triggered)
	assert.Equal(t, "technology", resp.Analysis.Domain)

	perf, ok := o.Tracker().Get(reasoning.StrategyCouncilOfCritics)
	require.True(t, ok)
	assert.Equal(t, int64(1), perf.UseCount)
}

func TestDisabledStrategiesAreSkipped(t *testing.T) {
	o := newOrchestrator(t, newRegistry(t, 0.85, nil), Settings{})
	off := false
	resp := o.ProcessAdvancedReasoning(t.Context(),
		"Give me different perspectives on our api versioning",
		nil, &reasoning.Preferences{EnableReAct: &off, EnableCouncilOfCritics: &off})

	assert.NotEqual(t, reasoning.StrategyReAct, resp.Strategy.Primary)
	assert.NotContains(t, resp.StrategiesUsed, reasoning.StrategyCouncilOfCritics)
}

func TestLowConfidenceEscalatesToStrongerStrategy(t *testing.T) {
	reg, err := strategies.NewDefaultRegistry(func(name reasoning.StrategyName) strategies.Backend {
		conf := 0.4
		if name == reasoning.StrategyMetaCognitive || name == reasoning.StrategyTreeOfThoughts {
			conf = 0.95
		}
		return strategies.BackendFunc(func(ctx context.Context, sessionID, prompt string, bc strategies.BackendContext) (*reasoning.Result, error) {
			return &reasoning.Result{PrimaryResponse: string(name), Confidence: conf}, nil
		})
	})
	require.NoError(t, err)
	rec := &recorder{}
	o := newOrchestrator(t, reg, Settings{Recorder: rec})

	resp := o.ProcessAdvancedReasoning(t.Context(), "How do I fix this bug in my code", nil, nil)

	require.True(t, resp.Escalation.Triggered)
	assert.Greater(t, resp.Escalation.SuccessfulAttempts, 0)
	assert.InDelta(t, 0.95, resp.Confidence, 1e-9)
	assert.Equal(t, resp.Escalation.FinalConfidence, resp.Confidence)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.NotEmpty(t, rec.attempts)
	assert.Equal(t, resp.SessionID, rec.attempts[0].SessionID)
	assert.Equal(t, 1, rec.attempts[0].AttemptNumber)
}

func TestPanicIsRecovered(t *testing.T) {
	audits := &recorder{}
	o := newOrchestrator(t, newRegistry(t, 0.9, nil), Settings{
		Recorder: audits,
		Knowledge: searcherFunc(func(ctx context.Context, q string) ([]string, error) {
			panic("index corrupted")
		}),
	})

	resp := o.ProcessAdvancedReasoning(t.Context(), "anything", nil, nil)
	require.NotNil(t, resp)
	assert.Equal(t, execution.FallbackConfidence, resp.Confidence)
	assert.NotEmpty(t, resp.Alternatives)

	rec, ok := resp.Metadata[MetadataErrorRecovery].(ErrorRecovery)
	require.True(t, ok)
	assert.Equal(t, "knowledge", rec.Stage)
	assert.Contains(t, rec.Error, "index corrupted")

	assert.Equal(t, []string{AuditErrorRecovery}, audits.auditActions())
	audits.mu.Lock()
	defer audits.mu.Unlock()
	assert.Equal(t, resp.SessionID, audits.audits[0].SessionID)
	assert.Equal(t, "knowledge", audits.audits[0].Details["stage"])
	assert.Contains(t, audits.audits[0].Details["error"], "index corrupted")
}

func TestCancelledContextShortCircuits(t *testing.T) {
	o := newOrchestrator(t, newRegistry(t, 0.9, nil), Settings{})
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	resp := o.ProcessAdvancedReasoning(ctx, "anything", nil, nil)
	assert.Equal(t, execution.FallbackConfidence, resp.Confidence)
	assert.Contains(t, resp.Metadata, MetadataErrorRecovery)
	assert.Empty(t, o.Tracker().Snapshot())
}

func TestKnowledgeFailureIsNotFatal(t *testing.T) {
	var seen []string
	reg, err := strategies.NewDefaultRegistry(func(name reasoning.StrategyName) strategies.Backend {
		return strategies.BackendFunc(func(ctx context.Context, sessionID, prompt string, bc strategies.BackendContext) (*reasoning.Result, error) {
			seen = bc.Knowledge
			return &reasoning.Result{PrimaryResponse: "ok", Confidence: 0.9}, nil
		})
	})
	require.NoError(t, err)

	o := newOrchestrator(t, reg, Settings{
		Knowledge: searcherFunc(func(ctx context.Context, q string) ([]string, error) {
			return nil, errors.New("timeout")
		}),
	})
	resp := o.ProcessAdvancedReasoning(t.Context(), "hi", nil, nil)
	assert.InDelta(t, 0.9, resp.Confidence, 1e-9)
	assert.Empty(t, seen)

	o = newOrchestrator(t, reg, Settings{
		Knowledge: searcherFunc(func(ctx context.Context, q string) ([]string, error) {
			return []string{"snippet"}, nil
		}),
	})
	resp = o.ProcessAdvancedReasoning(t.Context(), "hi", nil, nil)
	assert.Equal(t, []string{"snippet"}, seen)
	assert.Equal(t, 1, resp.Metadata["knowledgeSnippets"])
}

func TestRecordFeedback(t *testing.T) {
	rec := &recorder{}
	o := newOrchestrator(t, newRegistry(t, 0.9, nil), Settings{Recorder: rec})

	_, err := o.RecordFeedback(reasoning.StrategyReAct, 1.5)
	assert.ErrorIs(t, err, ErrInvalidFeedback)
	_, err = o.RecordFeedback("astrology", 0.5)
	assert.ErrorIs(t, err, strategies.ErrUnknownStrategy)

	r, err := o.RecordFeedback(reasoning.StrategyReAct, 0.2)
	require.NoError(t, err)
	assert.Equal(t, reflection.TriggerUserFeedback, r.Trigger)
	assert.Len(t, rec.reflections, 1)

	require.Equal(t, []string{AuditFeedback}, rec.auditActions())
	assert.Equal(t, string(reasoning.StrategyReAct), rec.audits[0].Details["strategy"])
	assert.Equal(t, 0.2, rec.audits[0].Details["score"])

	eff, ok := o.reflection.Effectiveness(reasoning.StrategyReAct)
	require.True(t, ok)
	assert.Less(t, eff, 1.0)
}

func TestCapabilitiesAndAnalytics(t *testing.T) {
	o := newOrchestrator(t, newRegistry(t, 0.9, nil), Settings{})
	caps := o.GetCapabilitiesStatus()
	assert.True(t, caps["enableReAct"])
	assert.True(t, caps[string(reasoning.StrategyTreeOfThoughts)])
	assert.False(t, caps["knowledgeSearch"])
	assert.False(t, caps["persistence"])

	d := o.Defaults()
	d.EnableTreeOfThoughts = false
	o.UpdateDefaults(d)
	caps = o.GetCapabilitiesStatus()
	assert.False(t, caps["enableTreeOfThoughts"])
	assert.False(t, caps[string(reasoning.StrategyTreeOfThoughts)])

	o.ProcessAdvancedReasoning(t.Context(), "hello there", nil, nil)
	a := o.GetPerformanceAnalytics()
	assert.NotEmpty(t, a.Performance)
	assert.Equal(t, caps, a.Capabilities)

	o.Reset()
	assert.Empty(t, o.GetPerformanceAnalytics().Performance)
}
