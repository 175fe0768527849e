// Package execution runs planned strategies against their backends and
// collects per-strategy outcomes.
package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/reasoning"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/strategies"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/validation"
)

// FallbackConfidence is assigned to the degraded result returned when the primary fails
const FallbackConfidence = 0.3

// StepTypeErrorFallback tags the single step of a fallback result
const StepTypeErrorFallback = "error-fallback"

var errEmptyResult = errors.New("backend returned no result")

// FallbackAlternatives are offered whenever the primary strategy fails
var FallbackAlternatives = []string{
	"Retry the request",
	"Break the problem into smaller parts",
	"Provide additional context",
}

// Plan is the set of strategies to execute for one request
type Plan struct {
	Primary   reasoning.StrategyName   `json:"primary"`
	Secondary []reasoning.StrategyName `json:"secondary"`
	Parallel  bool                     `json:"parallel"`
}

// Request carries everything a backend needs except the strategy name
type Request struct {
	SessionID string
	Prompt    string
	Context   strategies.BackendContext
	// SuccessThreshold is handed to observers; zero means their default
	SuccessThreshold float64
}

// Outcome is the record of one strategy invocation
type Outcome struct {
	Strategy reasoning.StrategyName
	Result   *reasoning.Result
	Err      error
	Duration time.Duration

	SessionID        string
	ContextType      string
	SuccessThreshold float64
}

// Execution is the merged outcome of a Plan
type Execution struct {
	Primary    *reasoning.Result
	PrimaryErr error
	// Secondary holds successful secondary results in declared order
	Secondary []*reasoning.Result
	Failures  []Outcome
}

// PrimaryFailed reports whether Primary is a fallback result
func (e *Execution) PrimaryFailed() bool { return e.PrimaryErr != nil }

// Observer is notified after every strategy invocation
type Observer func(o Outcome)

// Executor dispatches strategies through the registry with one circuit
// breaker per strategy.
type Executor struct {
	registry  *strategies.Registry
	arena     *Arena
	logger    *zap.Logger
	cbConfig  circuitbreaker.Config
	observers []Observer

	mu       sync.Mutex
	breakers map[reasoning.StrategyName]*circuitbreaker.CircuitBreaker
}

// Option configures an Executor
type Option func(*Executor)

// WithArena replaces the default session arena
func WithArena(a *Arena) Option { return func(e *Executor) { e.arena = a } }

// WithBreakerConfig sets the per-strategy breaker configuration
func WithBreakerConfig(cfg circuitbreaker.Config) Option {
	return func(e *Executor) { e.cbConfig = cfg }
}

// WithObserver adds an outcome observer
func WithObserver(o Observer) Option {
	return func(e *Executor) { e.observers = append(e.observers, o) }
}

// NewExecutor creates an executor over registry
func NewExecutor(registry *strategies.Registry, logger *zap.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		registry: registry,
		logger:   logger,
		cbConfig: circuitbreaker.GetBackendConfig().ToConfig(),
		breakers: make(map[reasoning.StrategyName]*circuitbreaker.CircuitBreaker),
	}
	for _, o := range opts {
		o(e)
	}
	if e.arena == nil {
		e.arena = NewArena(DefaultMaxSessions)
	}
	return e
}

// AddObserver registers o after construction
func (e *Executor) AddObserver(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, o)
}

// Arena exposes the session arena
func (e *Executor) Arena() *Arena { return e.arena }

// Registry exposes the strategy registry
func (e *Executor) Registry() *strategies.Registry { return e.registry }

func (e *Executor) breaker(name reasoning.StrategyName) *circuitbreaker.CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cb, ok := e.breakers[name]; ok {
		return cb
	}
	cbName := "strategy-" + string(name)
	cb := circuitbreaker.NewCircuitBreaker(cbName, e.cbConfig, e.logger)
	circuitbreaker.GlobalMetricsCollector.RegisterCircuitBreaker(cbName, "strategy-backend", cb)
	e.breakers[name] = cb
	return cb
}

// IsOpen reports whether the breaker for name rejects calls
func (e *Executor) IsOpen(name reasoning.StrategyName) bool {
	e.mu.Lock()
	cb, ok := e.breakers[name]
	e.mu.Unlock()
	return ok && cb.IsOpen()
}

// OpenBreakers names the registered strategies whose breaker is open
func (e *Executor) OpenBreakers() []string {
	var open []string
	for _, name := range e.registry.Names() {
		if e.IsOpen(name) {
			open = append(open, string(name))
		}
	}
	return open
}

// Total is the number of registered strategies
func (e *Executor) Total() int { return len(e.registry.Names()) }

// Available lists strategies that are registered, enabled by cfg and not
// behind an open breaker, ordered by strength.
func (e *Executor) Available(cfg reasoning.Config) []reasoning.StrategyName {
	var out []reasoning.StrategyName
	for _, name := range e.registry.Names() {
		if cfg.Enabled(name) && !e.IsOpen(name) {
			out = append(out, name)
		}
	}
	return out
}

// Execute runs plan. The primary runs first; secondaries run afterwards in
// dependency waves. A failed primary yields a fallback result and skips the
// secondaries. A failed secondary is logged and left out.
func (e *Executor) Execute(ctx context.Context, plan Plan, req Request) *Execution {
	exec := &Execution{}

	primary, err := e.Run(ctx, plan.Primary, req)
	if err != nil {
		exec.PrimaryErr = err
		exec.Primary = FallbackResult(plan.Primary, err)
		exec.Failures = append(exec.Failures, Outcome{Strategy: plan.Primary, Err: err})
		e.logger.Warn("Primary strategy failed, using fallback",
			zap.String("strategy", string(plan.Primary)),
			zap.String("session_id", req.SessionID),
			zap.Error(err),
		)
		return exec
	}
	exec.Primary = primary

	secondaries := dedupe(plan.Secondary, plan.Primary)
	if len(secondaries) == 0 {
		return exec
	}

	waves := e.waves(secondaries)
	done := map[reasoning.StrategyName]*reasoning.Result{plan.Primary: primary}
	outcomes := make(map[reasoning.StrategyName]Outcome, len(secondaries))

	for _, wave := range waves {
		results := e.runWave(ctx, wave, req, primary, done, plan.Parallel)
		for _, o := range results {
			outcomes[o.Strategy] = o
			if o.Err == nil {
				done[o.Strategy] = o.Result
			}
		}
	}

	for _, name := range secondaries {
		o := outcomes[name]
		if o.Err != nil {
			exec.Failures = append(exec.Failures, o)
			e.logger.Warn("Secondary strategy failed, excluding from synthesis",
				zap.String("strategy", string(name)),
				zap.String("session_id", req.SessionID),
				zap.Error(o.Err),
			)
			continue
		}
		if o.Result != nil {
			exec.Secondary = append(exec.Secondary, o.Result)
		}
	}
	return exec
}

func (e *Executor) waves(names []reasoning.StrategyName) [][]reasoning.StrategyName {
	deps := e.registry.Dependencies()
	nodes := make([]validation.Node, len(names))
	for i, n := range names {
		after := make([]string, 0, len(deps[n]))
		for _, d := range deps[n] {
			after = append(after, string(d))
		}
		nodes[i] = validation.Node{ID: string(n), After: after}
	}

	res := validation.PlanWaves(nodes)
	if res.HasCycle {
		e.logger.Error("Strategy dependencies are cyclic, running secondaries sequentially",
			zap.String("error", res.ErrorMessage))
		out := make([][]reasoning.StrategyName, len(names))
		for i, n := range names {
			out[i] = []reasoning.StrategyName{n}
		}
		return out
	}

	out := make([][]reasoning.StrategyName, len(res.Waves))
	for i, w := range res.Waves {
		for _, id := range w {
			out[i] = append(out[i], reasoning.StrategyName(id))
		}
	}
	return out
}

func (e *Executor) runWave(
	ctx context.Context,
	wave []reasoning.StrategyName,
	req Request,
	primary *reasoning.Result,
	done map[reasoning.StrategyName]*reasoning.Result,
	parallel bool,
) []Outcome {
	deps := e.registry.Dependencies()
	requests := make([]Request, len(wave))
	for i, name := range wave {
		r := req
		previous := []string{primary.PrimaryResponse}
		for _, d := range deps[name] {
			if res, ok := done[d]; ok && d != primary.Type {
				previous = append(previous, res.PrimaryResponse)
			}
		}
		r.Context.PreviousResponses = append(append([]string(nil), req.Context.PreviousResponses...), previous...)
		requests[i] = r
	}

	outcomes := make([]Outcome, len(wave))
	if !parallel || len(wave) == 1 {
		for i, name := range wave {
			outcomes[i] = e.outcome(ctx, name, requests[i])
		}
		return outcomes
	}

	g, gCtx := errgroup.WithContext(ctx)
	for i, name := range wave {
		i, name := i, name
		g.Go(func() error {
			outcomes[i] = e.outcome(gCtx, name, requests[i])
			// Secondary failures are non-fatal
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (e *Executor) outcome(ctx context.Context, name reasoning.StrategyName, req Request) Outcome {
	start := time.Now()
	res, err := e.Run(ctx, name, req)
	return Outcome{Strategy: name, Result: res, Err: err, Duration: time.Since(start)}
}

// Run invokes a single strategy through its breaker and records the
// session lifecycle. Errors are returned as *strategies.BackendError.
func (e *Executor) Run(ctx context.Context, name reasoning.StrategyName, req Request) (*reasoning.Result, error) {
	backend, err := e.registry.Backend(name)
	if err != nil {
		return nil, &strategies.BackendError{Strategy: name, Err: err}
	}

	sess := e.arena.Create(req.SessionID, name)
	_ = e.arena.Transition(sess.ID, StateRunning)

	start := time.Now()
	var res *reasoning.Result
	err = e.breaker(name).Execute(ctx, func() (callErr error) {
		defer func() {
			if r := recover(); r != nil {
				callErr = fmt.Errorf("backend panic: %v", r)
			}
		}()
		out, callErr := backend.GenerateResponse(ctx, req.SessionID, req.Prompt, req.Context)
		if callErr == nil && out == nil {
			callErr = errEmptyResult
		}
		res = out
		return callErr
	})
	elapsed := time.Since(start)
	metrics.StrategyExecutionDuration.WithLabelValues(string(name)).Observe(float64(elapsed.Milliseconds()))

	if err != nil {
		_ = e.arena.Fail(sess.ID, err)
		metrics.StrategyExecutions.WithLabelValues(string(name), "error").Inc()
		berr := &strategies.BackendError{Strategy: name, Err: err}
		e.notify(observed(req, Outcome{Strategy: name, Err: berr, Duration: elapsed}))
		return nil, berr
	}

	out := normalize(*res, name, elapsed)
	_ = e.arena.Complete(sess.ID, out.Confidence)
	metrics.StrategyExecutions.WithLabelValues(string(name), "success").Inc()
	e.notify(observed(req, Outcome{Strategy: name, Result: out, Duration: elapsed}))
	return out, nil
}

func observed(req Request, o Outcome) Outcome {
	o.SessionID = req.SessionID
	o.ContextType = req.Context.Request.Type
	o.SuccessThreshold = req.SuccessThreshold
	return o
}

func (e *Executor) notify(o Outcome) {
	e.mu.Lock()
	obs := append([]Observer(nil), e.observers...)
	e.mu.Unlock()
	for _, fn := range obs {
		fn(o)
	}
}

func normalize(r reasoning.Result, name reasoning.StrategyName, elapsed time.Duration) *reasoning.Result {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	r.Type = name
	r.Confidence = reasoning.Clamp(r.Confidence, 0, 1)
	if r.Metadata.ProcessingTimeMs == 0 {
		r.Metadata.ProcessingTimeMs = elapsed.Milliseconds()
	}
	steps := make([]reasoning.Step, len(r.ReasoningProcess))
	now := time.Now()
	for i, s := range r.ReasoningProcess {
		s.Confidence = reasoning.Clamp(s.Confidence, 0, 1)
		if s.Timestamp.IsZero() {
			s.Timestamp = now
		}
		steps[i] = s
	}
	r.ReasoningProcess = steps
	r.Alternatives = append([]string(nil), r.Alternatives...)
	r.Metadata.ResourcesUsed = append([]string(nil), r.Metadata.ResourcesUsed...)
	return &r
}

// FallbackResult is the deterministic degraded result for a failed strategy
func FallbackResult(name reasoning.StrategyName, cause error) *reasoning.Result {
	msg := "strategy execution failed"
	if cause != nil {
		msg = cause.Error()
	}
	return &reasoning.Result{
		ID:   uuid.New().String(),
		Type: name,
		PrimaryResponse: "I could not complete the full reasoning process for this request. " +
			"Retrying, or splitting the problem into smaller parts, is likely to help.",
		ReasoningProcess: []reasoning.Step{{
			Step:       1,
			Type:       StepTypeErrorFallback,
			Content:    fmt.Sprintf("%s unavailable: %s", name, msg),
			Confidence: FallbackConfidence,
			Timestamp:  time.Now(),
		}},
		Confidence:   FallbackConfidence,
		Alternatives: append([]string(nil), FallbackAlternatives...),
		Metadata:     reasoning.ResultMetadata{ResourcesUsed: []string{}},
	}
}

func dedupe(names []reasoning.StrategyName, primary reasoning.StrategyName) []reasoning.StrategyName {
	seen := map[reasoning.StrategyName]bool{primary: true}
	out := make([]reasoning.StrategyName, 0, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
