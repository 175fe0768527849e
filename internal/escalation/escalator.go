// Package escalation retries low-confidence answers with progressively
// stronger strategies inside attempt and wall-clock budgets.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/execution"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/reasoning"
)

const (
	minThreshold    = 0.1
	maxThreshold    = 0.9
	maxFloor        = 0.95
	floorStep       = 0.1
	gainForBest     = 0.2
	gainForCaution  = 0.1
	gainEpsilon     = 1e-9
	budgetExhausted = "escalation time budget exceeded"
)

// Runner executes one strategy
type Runner interface {
	Run(ctx context.Context, name reasoning.StrategyName, req execution.Request) (*reasoning.Result, error)
}

// Picker chooses escalation strategies
type Picker interface {
	SelectEscalation(a reasoning.ProblemAnalysis, available []reasoning.StrategyName, minStrength int, floor float64) (reasoning.StrategyName, bool)
	StrongestAvailable(available []reasoning.StrategyName) int
	Strength(name reasoning.StrategyName) int
}

// Input is everything EvaluateAndEscalate needs
type Input struct {
	Result      *reasoning.Result
	Confidence  float64
	Strategy    reasoning.StrategyName
	Analysis    reasoning.ProblemAnalysis
	Available   []reasoning.StrategyName
	Request     execution.Request
	Personality *reasoning.Personality
	SystemLoad  *float64
}

// AttemptHook is called after each attempt is recorded
type AttemptHook func(sessionID string, a Attempt)

// Escalator evaluates confidence and runs the escalation loop
type Escalator struct {
	runner Runner
	picker Picker
	logger *zap.Logger
	now    func() time.Time

	mu     sync.RWMutex
	cfg    Config
	onStep []AttemptHook
}

// NewEscalator creates an escalator. Zero config fields take defaults.
func NewEscalator(cfg Config, runner Runner, picker Picker, logger *zap.Logger) *Escalator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Escalator{
		runner: runner,
		picker: picker,
		logger: logger,
		now:    time.Now,
		cfg:    cfg.withDefaults(),
	}
}

// UpdateConfig swaps thresholds at runtime
func (e *Escalator) UpdateConfig(cfg Config) {
	cfg = cfg.withDefaults()
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
	e.logger.Info("Escalation configuration updated",
		zap.Float64("low_confidence_threshold", cfg.LowConfidenceThreshold),
		zap.Float64("critical_confidence_threshold", cfg.CriticalConfidenceThreshold),
		zap.Int("max_attempts", cfg.MaxAttempts),
		zap.Duration("max_escalation_time", cfg.MaxEscalationTime),
		zap.Int("strategy_overrides", len(cfg.Strategies)),
	)
}

// Config returns the active configuration
func (e *Escalator) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg.withDefaults()
}

// OnAttempt registers a hook invoked for every recorded attempt
func (e *Escalator) OnAttempt(h AttemptHook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onStep = append(e.onStep, h)
}

// Threshold computes the escalation threshold for strategy under the given
// personality and load, clamped to [0.1, 0.9].
func (e *Escalator) Threshold(strategy reasoning.StrategyName, p *reasoning.Personality, systemLoad *float64) float64 {
	return computeThreshold(e.Config(), strategy, p, systemLoad)
}

func computeThreshold(cfg Config, strategy reasoning.StrategyName, p *reasoning.Personality, systemLoad *float64) float64 {
	threshold := cfg.LowConfidenceThreshold
	if st, ok := cfg.Strategies[string(strategy)]; ok && st.EscalationThreshold > 0 {
		threshold = st.EscalationThreshold
	}
	if p != nil {
		if p.RelationshipStrength != nil && *p.RelationshipStrength > 0.8 {
			threshold += 0.1
		}
		if p.UserMood == "frustrated" {
			threshold -= 0.15
		}
		if p.PersonaSupportive != nil && *p.PersonaSupportive > 0.7 {
			threshold += 0.1
		}
	}
	if systemLoad != nil && *systemLoad > 0.8 {
		threshold -= 0.1
	}
	return reasoning.Clamp(threshold, minThreshold, maxThreshold)
}

// ShouldEscalate is true below the critical floor or below threshold
func (e *Escalator) ShouldEscalate(confidence, threshold float64) bool {
	cfg := e.Config()
	return confidence < cfg.CriticalConfidenceThreshold || confidence < threshold
}

// MaxAttempts returns the attempt budget for strategy
func (e *Escalator) MaxAttempts(strategy reasoning.StrategyName) int {
	cfg := e.Config()
	if st, ok := cfg.Strategies[string(strategy)]; ok && st.MaxAttempts > 0 {
		return st.MaxAttempts
	}
	return cfg.MaxAttempts
}

// EvaluateAndEscalate checks in.Confidence against the dynamic threshold and,
// when it falls short, tries stronger strategies until the attempt or time
// budget is spent. FinalConfidence never drops below OriginalConfidence.
func (e *Escalator) EvaluateAndEscalate(ctx context.Context, in Input) *Result {
	cfg := e.Config()
	original := reasoning.Clamp(in.Confidence, 0, 1)
	threshold := computeThreshold(cfg, in.Strategy, in.Personality, in.SystemLoad)

	res := &Result{
		Threshold:           threshold,
		OriginalConfidence:  original,
		FinalConfidence:     original,
		EscalationPath:      []Attempt{},
		RecommendNextAction: ProceedWithBest,
		BestResult:          in.Result,
	}
	if !(original < cfg.CriticalConfidenceThreshold || original < threshold) {
		return res
	}
	res.Triggered = true

	start := e.now()
	deadline := start.Add(cfg.MaxEscalationTime)
	loopCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	maxAttempts := e.MaxAttempts(in.Strategy)
	target := threshold + cfg.SuccessBuffer
	current := in.Strategy

	e.logger.Info("Escalating low-confidence response",
		zap.String("strategy", string(in.Strategy)),
		zap.Float64("confidence", original),
		zap.Float64("threshold", threshold),
		zap.Int("max_attempts", maxAttempts),
	)

	for n := 1; n <= maxAttempts; n++ {
		// Cancellation checkpoint
		if !e.now().Before(deadline) || loopCtx.Err() != nil {
			break
		}

		minStrength := e.picker.Strength(current) + 1
		if n > 1 {
			minStrength = e.picker.StrongestAvailable(in.Available)
		}
		floor := math.Min(threshold+floorStep*float64(n), maxFloor)

		attempt := Attempt{
			AttemptNumber: n,
			StartTime:     e.now(),
			Parameters: map[string]string{
				"min_strength":     strconv.Itoa(minStrength),
				"confidence_floor": strconv.FormatFloat(floor, 'f', 2, 64),
			},
		}

		name, ok := e.picker.SelectEscalation(in.Analysis, in.Available, minStrength, floor)
		if !ok {
			attempt.ErrorMessage = fmt.Sprintf("no strategy available with strength >= %d", minStrength)
			e.finishAttempt(res, attempt, in.Request.SessionID)
			continue
		}
		attempt.ServiceName = name
		attempt.Parameters["strategy"] = string(name)

		req := in.Request
		params := make(map[string]string, len(req.Context.Parameters)+len(attempt.Parameters)+1)
		for k, v := range req.Context.Parameters {
			params[k] = v
		}
		for k, v := range attempt.Parameters {
			params[k] = v
		}
		params["escalation_attempt"] = strconv.Itoa(n)
		req.Context.Parameters = params

		out, err := e.runner.Run(loopCtx, name, req)
		if err != nil {
			timedOut := errors.Is(err, context.DeadlineExceeded) || errors.Is(loopCtx.Err(), context.DeadlineExceeded)
			if timedOut {
				attempt.ErrorMessage = budgetExhausted
			} else {
				attempt.ErrorMessage = err.Error()
			}
			e.finishAttempt(res, attempt, in.Request.SessionID)
			if timedOut || loopCtx.Err() != nil {
				break
			}
			continue
		}

		conf := reasoning.Clamp(out.Confidence, 0, 1)
		attempt.Success = true
		attempt.ResultConfidence = &conf
		e.finishAttempt(res, attempt, in.Request.SessionID)
		current = name

		if conf > res.FinalConfidence {
			res.FinalConfidence = conf
			res.BestResult = out
		}
		if conf >= target {
			break
		}
	}

	res.TotalExecutionTime = e.now().Sub(start)
	res.RecommendNextAction = recommend(res)

	metrics.EscalationsTriggered.WithLabelValues(string(res.RecommendNextAction)).Inc()
	metrics.EscalationImprovement.Observe(res.FinalConfidence - res.OriginalConfidence)
	e.logger.Info("Escalation finished",
		zap.Int("attempts", res.TotalAttempts),
		zap.Int("successful", res.SuccessfulAttempts),
		zap.Float64("original_confidence", res.OriginalConfidence),
		zap.Float64("final_confidence", res.FinalConfidence),
		zap.Duration("elapsed", res.TotalExecutionTime),
		zap.String("recommendation", string(res.RecommendNextAction)),
	)
	return res
}

func (e *Escalator) finishAttempt(res *Result, a Attempt, sessionID string) {
	end := e.now()
	a.EndTime = &end
	res.EscalationPath = append(res.EscalationPath, a)
	res.TotalAttempts++
	status := "failed"
	if a.Success {
		res.SuccessfulAttempts++
		status = "success"
	}
	metrics.EscalationAttempts.WithLabelValues(string(a.ServiceName), status).Inc()

	e.mu.RLock()
	hooks := append([]AttemptHook(nil), e.onStep...)
	e.mu.RUnlock()
	for _, h := range hooks {
		h(sessionID, a)
	}
}

func recommend(res *Result) Recommendation {
	if !res.Triggered {
		return ProceedWithBest
	}
	gain := res.FinalConfidence - res.OriginalConfidence
	switch {
	case gain+gainEpsilon >= gainForBest:
		return ProceedWithBest
	case gain+gainEpsilon >= gainForCaution:
		return ProceedWithCaution
	case res.SuccessfulAttempts == 0:
		return FallbackToBasic
	}
	return ManualReview
}
