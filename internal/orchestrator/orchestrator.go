// Package orchestrator runs the reasoning pipeline end to end:
// analyze, select, execute, synthesize, escalate, reflect.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/analysis"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/db"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/escalation"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/execution"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/knowledge"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/performance"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/reasoning"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/reflection"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/selection"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/strategies"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/synthesis"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/tracing"
)

var (
	ErrMissingDependency = errors.New("orchestrator: missing dependency")
	ErrInvalidFeedback   = errors.New("feedback score must be within [0,1]")
)

// Dependencies are supplied by the caller. Knowledge and Recorder are optional.
type Dependencies struct {
	Analyzer    *analysis.Analyzer
	Tracker     *performance.Tracker
	Executor    *execution.Executor
	Selector    *selection.Selector
	Synthesizer *synthesis.Synthesizer
	Escalator   *escalation.Escalator
	Reflection  *reflection.Engine
	Knowledge   knowledge.Searcher
	Recorder    db.Recorder
	Logger      *zap.Logger
	Defaults    reasoning.Config
}

// Orchestrator is safe for concurrent use
type Orchestrator struct {
	analyzer    *analysis.Analyzer
	tracker     *performance.Tracker
	executor    *execution.Executor
	selector    *selection.Selector
	synthesizer *synthesis.Synthesizer
	escalator   *escalation.Escalator
	reflection  *reflection.Engine
	knowledge   knowledge.Searcher
	recorder    db.Recorder
	logger      *zap.Logger

	mu       sync.RWMutex
	defaults reasoning.Config
}

// New wires the pipeline from explicit dependencies
func New(d Dependencies) (*Orchestrator, error) {
	switch {
	case d.Analyzer == nil:
		return nil, fmt.Errorf("%w: analyzer", ErrMissingDependency)
	case d.Tracker == nil:
		return nil, fmt.Errorf("%w: tracker", ErrMissingDependency)
	case d.Executor == nil:
		return nil, fmt.Errorf("%w: executor", ErrMissingDependency)
	case d.Selector == nil:
		return nil, fmt.Errorf("%w: selector", ErrMissingDependency)
	case d.Synthesizer == nil:
		return nil, fmt.Errorf("%w: synthesizer", ErrMissingDependency)
	case d.Escalator == nil:
		return nil, fmt.Errorf("%w: escalator", ErrMissingDependency)
	case d.Reflection == nil:
		return nil, fmt.Errorf("%w: reflection engine", ErrMissingDependency)
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Recorder == nil {
		d.Recorder = db.NopRecorder{}
	}
	if d.Defaults == (reasoning.Config{}) {
		d.Defaults = reasoning.DefaultConfig()
	}

	o := &Orchestrator{
		analyzer:    d.Analyzer,
		tracker:     d.Tracker,
		executor:    d.Executor,
		selector:    d.Selector,
		synthesizer: d.Synthesizer,
		escalator:   d.Escalator,
		reflection:  d.Reflection,
		knowledge:   d.Knowledge,
		recorder:    d.Recorder,
		logger:      d.Logger,
		defaults:    d.Defaults,
	}
	o.escalator.OnAttempt(o.persistAttempt)
	return o, nil
}

// Defaults returns the configuration requests start from
func (o *Orchestrator) Defaults() reasoning.Config {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.defaults
}

// UpdateDefaults swaps the base configuration. Used by config hot reload.
func (o *Orchestrator) UpdateDefaults(cfg reasoning.Config) {
	cfg.ConfidenceThreshold = reasoning.Clamp(cfg.ConfidenceThreshold, 0, 1)
	o.mu.Lock()
	o.defaults = cfg
	o.mu.Unlock()
	o.logger.Info("Reasoning defaults updated", zap.Float64("confidence_threshold", cfg.ConfidenceThreshold))
}

// Escalator exposes the escalator for config reloads
func (o *Orchestrator) Escalator() *escalation.Escalator { return o.escalator }

// Executor exposes the executor for health checks
func (o *Orchestrator) Executor() *execution.Executor { return o.executor }

// Tracker exposes the performance tracker
func (o *Orchestrator) Tracker() *performance.Tracker { return o.tracker }

// ProcessAdvancedReasoning runs the full pipeline. It never returns an error:
// every failure degrades into a lower-confidence response.
func (o *Orchestrator) ProcessAdvancedReasoning(
	ctx context.Context,
	prompt string,
	rc *reasoning.RequestContext,
	prefs *reasoning.Preferences,
) (resp *AdvancedReasoningResponse) {
	start := time.Now()
	sessionID := uuid.NewString()
	stage := "init"

	ctx, span := tracing.StartStageSpan(ctx, "process", sessionID)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Reasoning pipeline panicked",
				zap.String("session_id", sessionID),
				zap.String("stage", stage),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			err := fmt.Errorf("panic: %v", r)
			tracing.RecordError(span, err)
			resp = o.recoveryResponse(sessionID, stage, err, start)
		}
		metrics.RequestDuration.Observe(time.Since(start).Seconds())
		metrics.ResponseConfidence.Observe(resp.Confidence)
	}()

	if err := ctx.Err(); err != nil {
		tracing.RecordError(span, err)
		return o.recoveryResponse(sessionID, stage, err, start)
	}

	reqCtx := rc.Normalize()
	cfg := o.Defaults().Merge(prefs)

	stage = "analyze"
	_, aSpan := tracing.StartStageSpan(ctx, stage, sessionID)
	problem := o.analyzer.Analyze(prompt, reqCtx)
	aSpan.SetAttributes(
		attribute.String("reasoning.complexity", string(problem.Complexity)),
		attribute.String("reasoning.domain", problem.Domain),
	)
	aSpan.End()
	metrics.ProblemsAnalyzed.WithLabelValues(string(problem.Complexity), problem.Domain).Inc()

	stage = "knowledge"
	reqCtx.Knowledge = append(reqCtx.Knowledge, o.searchKnowledge(ctx, sessionID, prompt)...)

	stage = "select"
	_, sSpan := tracing.StartStageSpan(ctx, stage, sessionID)
	available := o.executor.Available(cfg)
	decision := o.selector.Select(problem, available)
	sSpan.SetAttributes(
		attribute.String("reasoning.primary", string(decision.Primary)),
		attribute.Float64("reasoning.selection_confidence", decision.Confidence),
	)
	sSpan.End()

	req := execution.Request{
		SessionID: sessionID,
		Prompt:    prompt,
		Context: strategies.BackendContext{
			Request:   reqCtx,
			Analysis:  problem,
			Knowledge: reqCtx.Knowledge,
		},
		SuccessThreshold: cfg.ConfidenceThreshold,
	}

	stage = "execute"
	eCtx, eSpan := tracing.StartStageSpan(ctx, stage, sessionID)
	exec := o.executor.Execute(eCtx, execution.Plan{
		Primary:   decision.Primary,
		Secondary: decision.Secondary,
		Parallel:  reqCtx.ParallelSafe,
	}, req)
	if exec.PrimaryFailed() {
		tracing.RecordError(eSpan, exec.PrimaryErr)
	}
	eSpan.End()

	stage = "synthesize"
	_, synSpan := tracing.StartStageSpan(ctx, stage, sessionID)
	synthesized := o.synthesizer.Synthesize(exec.Primary, exec.Secondary)
	synSpan.SetAttributes(attribute.Float64("reasoning.confidence", synthesized.Confidence))
	synSpan.End()

	stage = "escalate"
	escCtx, escSpan := tracing.StartStageSpan(ctx, stage, sessionID)
	esc := o.escalator.EvaluateAndEscalate(escCtx, escalation.Input{
		Result:      synthesized,
		Confidence:  synthesized.Confidence,
		Strategy:    decision.Primary,
		Analysis:    problem,
		Available:   available,
		Request:     req,
		Personality: reqCtx.Personality,
		SystemLoad:  reqCtx.SystemLoad,
	})
	escSpan.SetAttributes(
		attribute.Bool("reasoning.escalated", esc.Triggered),
		attribute.Int("reasoning.escalation_attempts", esc.TotalAttempts),
	)
	escSpan.End()

	// A failed primary always answers with its fallback; the escalation
	// outcome is reported alongside it.
	final := synthesized
	promoted := false
	if !exec.PrimaryFailed() && esc.BestResult != nil && esc.FinalConfidence > synthesized.Confidence {
		final = esc.BestResult
		promoted = true
	}

	stage = "reflect"
	elapsed := time.Since(start)
	selfReflection := o.reflection.Monitor(reflection.Execution{
		Strategy:            decision.Primary,
		Confidence:          final.Confidence,
		ProcessingTimeMs:    float64(elapsed.Milliseconds()),
		ContextType:         reqCtx.Type,
		Analysis:            problem,
		Failed:              exec.PrimaryFailed(),
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		ReflectionDisabled:  !cfg.EnableSelfReflection,
	})

	resp = &AdvancedReasoningResponse{
		ID:               final.ID,
		SessionID:        sessionID,
		Response:         final.PrimaryResponse,
		Confidence:       reasoning.Clamp(final.Confidence, 0, 1),
		ReasoningProcess: final.ReasoningProcess,
		Alternatives:     final.Alternatives,
		StrategiesUsed:   strategiesUsed(exec, esc, promoted),
		Analysis:         &problem,
		Strategy:         &decision,
		Escalation:       esc,
		Reflection:       selfReflection,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		Metadata:         o.metadata(decision, exec, esc, reqCtx),
	}
	if resp.ID == "" {
		resp.ID = uuid.NewString()
	}

	o.persist(resp, prompt, exec)

	status := "success"
	if exec.PrimaryFailed() {
		status = "degraded"
	}
	metrics.RequestsTotal.WithLabelValues(status).Inc()
	span.SetAttributes(attribute.Float64("reasoning.final_confidence", resp.Confidence))

	o.logger.Info("Reasoning completed",
		zap.String("session_id", sessionID),
		zap.String("primary", string(decision.Primary)),
		zap.Int("secondaries", len(exec.Secondary)),
		zap.Float64("confidence", resp.Confidence),
		zap.Bool("escalated", esc.Triggered),
		zap.Int64("processing_time_ms", resp.ProcessingTimeMs),
	)
	return resp
}

func (o *Orchestrator) searchKnowledge(ctx context.Context, sessionID, prompt string) []string {
	if o.knowledge == nil {
		return nil
	}
	kCtx, span := tracing.StartStageSpan(ctx, "knowledge", sessionID)
	defer span.End()

	snippets, err := o.knowledge.Search(kCtx, prompt)
	if err != nil {
		// Grounding is optional
		tracing.RecordError(span, err)
		o.logger.Warn("Knowledge search failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil
	}
	span.SetAttributes(attribute.Int("reasoning.snippets", len(snippets)))
	return snippets
}

func (o *Orchestrator) metadata(d selection.Decision, exec *execution.Execution, esc *escalation.Result, rc reasoning.RequestContext) map[string]interface{} {
	failed := make([]string, 0, len(exec.Failures))
	for _, f := range exec.Failures {
		failed = append(failed, string(f.Strategy))
	}
	md := map[string]interface{}{
		"selectionMode":       string(d.Mode),
		"selectionReasoning":  d.Reasoning,
		"selectionConfidence": d.Confidence,
		"escalationThreshold": esc.Threshold,
		"knowledgeSnippets":   len(rc.Knowledge),
		"contextVersion":      rc.Version,
	}
	if len(failed) > 0 {
		md["failedStrategies"] = failed
	}
	if exec.PrimaryFailed() {
		md["primaryError"] = exec.PrimaryErr.Error()
	}
	return md
}

// strategiesUsed lists strategies that contributed to the returned result, in
// pipeline order. Escalation attempts count only when their result was promoted.
func strategiesUsed(exec *execution.Execution, esc *escalation.Result, promoted bool) []reasoning.StrategyName {
	seen := make(map[reasoning.StrategyName]bool)
	var out []reasoning.StrategyName
	add := func(n reasoning.StrategyName) {
		if n != "" && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	if !exec.PrimaryFailed() && exec.Primary != nil {
		add(exec.Primary.Type)
	}
	for _, r := range exec.Secondary {
		add(r.Type)
	}
	if !promoted {
		return out
	}
	for _, a := range esc.EscalationPath {
		if a.Success {
			add(a.ServiceName)
		}
	}
	return out
}

func (o *Orchestrator) recoveryResponse(sessionID, stage string, cause error, start time.Time) *AdvancedReasoningResponse {
	metrics.RequestsTotal.WithLabelValues("recovered").Inc()
	o.Audit(AuditErrorRecovery, sessionID, db.JSONB{"stage": stage, "error": cause.Error()})
	fb := execution.FallbackResult(reasoning.StrategyBasic, cause)
	return &AdvancedReasoningResponse{
		ID:               uuid.NewString(),
		SessionID:        sessionID,
		Response:         fb.PrimaryResponse,
		Confidence:       execution.FallbackConfidence,
		ReasoningProcess: fb.ReasoningProcess,
		Alternatives:     fb.Alternatives,
		StrategiesUsed:   []reasoning.StrategyName{},
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		Metadata: map[string]interface{}{
			MetadataErrorRecovery: ErrorRecovery{Error: cause.Error(), Stage: stage},
		},
	}
}

func (o *Orchestrator) persist(resp *AdvancedReasoningResponse, prompt string, exec *execution.Execution) {
	secondary := make([]string, 0, len(exec.Secondary))
	for _, r := range exec.Secondary {
		secondary = append(secondary, string(r.Type))
	}
	rec := &db.ReasoningSession{
		SessionID:         resp.SessionID,
		Prompt:            prompt,
		SecondaryStrategy: db.JoinStrategies(secondary),
		Confidence:        resp.Confidence,
		ProcessingTimeMs:  resp.ProcessingTimeMs,
		ErrorRecovery:     exec.PrimaryFailed(),
	}
	if resp.Strategy != nil {
		rec.PrimaryStrategy = string(resp.Strategy.Primary)
		rec.SelectionMode = string(resp.Strategy.Mode)
	}
	if resp.Analysis != nil {
		rec.Complexity = string(resp.Analysis.Complexity)
		rec.Domain = resp.Analysis.Domain
	}
	if resp.Escalation != nil {
		rec.OriginalConfidence = resp.Escalation.OriginalConfidence
		rec.Escalated = resp.Escalation.Triggered
		rec.Recommendation = string(resp.Escalation.RecommendNextAction)
	}
	o.recorder.RecordSession(rec)

	if r := resp.Reflection; r != nil {
		o.recordReflection(resp.SessionID, *r, resp.Confidence)
	}
}

func (o *Orchestrator) recordReflection(sessionID string, r reflection.SelfReflection, original float64) {
	state := o.reflection.State()
	o.recorder.RecordReflection(&db.ReflectionRecord{
		SessionID:          sessionID,
		Trigger:            string(r.Trigger),
		Strategy:           string(r.Strategy),
		OriginalConfidence: original,
		UpdatedConfidence:  r.ConfidenceUpdate,
		NeedsHumanInput:    state.NeedsHumanInput,
		Details: db.JSONB{
			"analysis":          r.Analysis,
			"improvements":      r.Improvements,
			"strategic_changes": r.StrategicChanges,
		},
	})
}

func (o *Orchestrator) persistAttempt(sessionID string, a escalation.Attempt) {
	rec := &db.EscalationAttemptRecord{
		SessionID:        sessionID,
		AttemptNumber:    a.AttemptNumber,
		Strategy:         string(a.ServiceName),
		ResultConfidence: a.ResultConfidence,
		Success:          a.Success,
		CreatedAt:        a.StartTime,
	}
	if len(a.Parameters) > 0 {
		params := make(db.JSONB, len(a.Parameters))
		for k, v := range a.Parameters {
			params[k] = v
		}
		rec.Parameters = params
	}
	if a.ErrorMessage != "" {
		msg := a.ErrorMessage
		rec.ErrorMessage = &msg
	}
	if a.EndTime != nil {
		rec.DurationMs = a.EndTime.Sub(a.StartTime).Milliseconds()
	}
	o.recorder.RecordEscalationAttempt(rec)
}

// Audit queues an audit trail entry. sessionID may be empty for actions
// that are not tied to a request.
func (o *Orchestrator) Audit(action, sessionID string, details db.JSONB) {
	o.recorder.RecordAudit(&db.AuditLog{
		Action:    action,
		SessionID: sessionID,
		Details:   details,
	})
}

// GetCapabilitiesStatus reports the effective default switches plus whether
// each registered strategy can currently be used.
func (o *Orchestrator) GetCapabilitiesStatus() map[string]bool {
	cfg := o.Defaults()
	caps := cfg.Capabilities()
	available := make(map[reasoning.StrategyName]bool)
	for _, n := range o.executor.Available(cfg) {
		available[n] = true
	}
	for _, n := range o.executor.Registry().Names() {
		caps[string(n)] = available[n]
	}
	caps["knowledgeSearch"] = o.knowledge != nil
	_, nop := o.recorder.(db.NopRecorder)
	caps["persistence"] = !nop
	return caps
}

// GetPerformanceAnalytics returns the meta-cognitive state, reflection
// history and capabilities, plus tracked strategy statistics.
func (o *Orchestrator) GetPerformanceAnalytics() Analytics {
	sessions := make(map[string]int)
	for state, n := range o.executor.Arena().CountByState() {
		sessions[string(state)] = n
	}
	return Analytics{
		MetaCognitive: o.reflection.State(),
		Reflections:   o.reflection.History(),
		Capabilities:  o.GetCapabilitiesStatus(),
		Performance:   o.tracker.Snapshot(),
		Sessions:      sessions,
	}
}

// RecordFeedback applies an explicit quality score for a strategy
func (o *Orchestrator) RecordFeedback(strategy reasoning.StrategyName, score float64) (reflection.SelfReflection, error) {
	if math.IsNaN(score) || score < 0 || score > 1 {
		return reflection.SelfReflection{}, ErrInvalidFeedback
	}
	if _, ok := o.executor.Registry().Get(strategy); !ok {
		return reflection.SelfReflection{}, fmt.Errorf("%w: %s", strategies.ErrUnknownStrategy, strategy)
	}
	r := o.reflection.RecordFeedback(strategy, score)
	o.recordReflection("", r, score)
	o.Audit(AuditFeedback, "", db.JSONB{
		"strategy":          string(strategy),
		"score":             score,
		"confidence_update": r.ConfidenceUpdate,
	})
	o.logger.Info("Feedback recorded",
		zap.String("strategy", string(strategy)),
		zap.Float64("score", score),
		zap.Float64("confidence_update", r.ConfidenceUpdate),
	)
	return r, nil
}

// Reset clears learned state. Intended for tests and operator resets.
func (o *Orchestrator) Reset() {
	o.tracker.Reset()
	o.reflection.Reset()
	o.executor.Arena().Reset()
}
