// Package reflection watches executions and produces self-reflections that
// feed back into strategy selection.
package reflection

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/performance"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/reasoning"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/selection"
)

const (
	DefaultConfidenceThreshold = 0.7
	DefaultPeriodicInterval    = 5 * time.Minute
	DefaultMaxHistory          = 50

	failureSuccessRate  = 0.4
	switchFitThreshold  = 0.6
	humanInputThreshold = 0.3
	effectivenessDecay  = 0.7
	highUncertainty     = 0.6
)

// Engine is the meta-cognitive monitor. One per orchestrator.
type Engine struct {
	tracker *performance.Tracker
	logger  *zap.Logger
	now     func() time.Time

	threshold  float64
	interval   time.Duration
	maxHistory int

	mu              sync.RWMutex
	state           MetaCognitiveState
	used            map[reasoning.StrategyName]bool
	history         []SelfReflection
	lastContextType string
	lastReflection  time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithConfidenceThreshold sets the default low-confidence trigger
func WithConfidenceThreshold(v float64) Option {
	return func(e *Engine) { e.threshold = reasoning.Clamp(v, 0, 1) }
}

// WithPeriodicInterval sets how long may pass before a periodic reflection
func WithPeriodicInterval(d time.Duration) Option { return func(e *Engine) { e.interval = d } }

// WithMaxHistory bounds the reflection history
func WithMaxHistory(n int) Option { return func(e *Engine) { e.maxHistory = n } }

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// NewEngine creates an engine that records into tracker
func NewEngine(tracker *performance.Tracker, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		tracker:    tracker,
		logger:     logger,
		now:        time.Now,
		threshold:  DefaultConfidenceThreshold,
		interval:   DefaultPeriodicInterval,
		maxHistory: DefaultMaxHistory,
	}
	for _, o := range opts {
		o(e)
	}
	e.resetLocked()
	return e
}

func (e *Engine) resetLocked() {
	e.state = MetaCognitiveState{
		StrategiesUsed:   []reasoning.StrategyName{},
		Effectiveness:    map[reasoning.StrategyName]float64{},
		Confidence:       0.5,
		UncertaintyAreas: []string{},
	}
	e.used = map[reasoning.StrategyName]bool{}
	e.history = nil
	e.lastContextType = ""
	e.lastReflection = e.now()
}

// Record feeds one strategy invocation into the performance tracker.
// Failed invocations count as zero confidence.
func (e *Engine) Record(o performance.Observation) {
	if e.tracker == nil {
		return
	}
	if o.SuccessThreshold <= 0 {
		o.SuccessThreshold = e.threshold
	}
	e.tracker.Observe(o)
}

// Monitor evaluates the triggers for a completed execution and reflects
// when one fires. It returns nil when no reflection was produced.
func (e *Engine) Monitor(ex Execution) *SelfReflection {
	threshold := e.threshold
	if ex.ConfidenceThreshold > 0 {
		threshold = ex.ConfidenceThreshold
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	trigger := e.triggerLocked(ex, threshold)
	if ex.ContextType != "" {
		e.lastContextType = ex.ContextType
	}
	if trigger == TriggerNone || ex.ReflectionDisabled {
		return nil
	}
	r := e.reflectLocked(trigger, ex, threshold)
	return &r
}

// ShouldReflect reports which trigger, if any, would fire for ex
func (e *Engine) ShouldReflect(ex Execution) Trigger {
	threshold := e.threshold
	if ex.ConfidenceThreshold > 0 {
		threshold = ex.ConfidenceThreshold
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.triggerLocked(ex, threshold)
}

func (e *Engine) triggerLocked(ex Execution, threshold float64) Trigger {
	if ex.Confidence < threshold {
		return TriggerLowConfidence
	}
	if sr, ok := e.successRate(ex.Strategy); ok && sr < failureSuccessRate {
		return TriggerStrategyFailure
	}
	if e.lastContextType != "" && ex.ContextType != "" && ex.ContextType != e.lastContextType {
		return TriggerContextChange
	}
	if e.now().Sub(e.lastReflection) > e.interval {
		return TriggerPeriodic
	}
	return TriggerNone
}

// RecordFeedback reflects on caller-supplied feedback for strategy
func (e *Engine) RecordFeedback(strategy reasoning.StrategyName, score float64) SelfReflection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reflectLocked(TriggerUserFeedback, Execution{
		Strategy:   strategy,
		Confidence: reasoning.Clamp(score, 0, 1),
	}, e.threshold)
}

func (e *Engine) successRate(name reasoning.StrategyName) (float64, bool) {
	if e.tracker == nil {
		return 0, false
	}
	return e.tracker.SuccessRate(name)
}

func (e *Engine) reflectLocked(trigger Trigger, ex Execution, threshold float64) SelfReflection {
	conf := reasoning.Clamp(ex.Confidence, 0, 1)
	sr, tracked := e.successRate(ex.Strategy)
	if !tracked {
		sr = 0.5
	}
	update := reasoning.Clamp(conf+(sr-0.5)*0.2, 0.1, 1.0)

	areas := uncertaintyAreas(ex, conf, threshold)
	r := SelfReflection{
		ID:       uuid.New().String(),
		Trigger:  trigger,
		Strategy: ex.Strategy,
		Analysis: fmt.Sprintf("Strategy %s reached confidence %.2f against a threshold of %.2f with a success rate of %.2f (trigger: %s).",
			ex.Strategy, conf, threshold, sr, trigger),
		Improvements:     improvements(conf),
		StrategicChanges: strategicChanges(ex, conf, threshold, areas),
		ConfidenceUpdate: update,
		Timestamp:        e.now(),
	}

	// Feed the reflection back into the shared state
	e.state.CurrentStrategy = ex.Strategy
	if ex.Strategy != "" && !e.used[ex.Strategy] {
		e.used[ex.Strategy] = true
		e.state.StrategiesUsed = append(e.state.StrategiesUsed, ex.Strategy)
		sort.Slice(e.state.StrategiesUsed, func(i, j int) bool {
			return e.state.StrategiesUsed[i] < e.state.StrategiesUsed[j]
		})
	}
	if ex.Strategy != "" {
		if old, ok := e.state.Effectiveness[ex.Strategy]; ok {
			e.state.Effectiveness[ex.Strategy] = effectivenessDecay*old + (1-effectivenessDecay)*update
		} else {
			e.state.Effectiveness[ex.Strategy] = update
		}
	}
	e.state.Confidence = update
	e.state.UncertaintyAreas = areas
	e.state.NeedsHumanInput = update < humanInputThreshold
	e.state.LastReflection = r.Timestamp
	e.lastReflection = r.Timestamp

	e.history = append(e.history, r)
	if over := len(e.history) - e.maxHistory; over > 0 {
		e.history = append([]SelfReflection(nil), e.history[over:]...)
	}

	metrics.Reflections.WithLabelValues(string(trigger)).Inc()
	metrics.MetaCognitiveConfidence.Set(update)
	e.logger.Info("Self-reflection recorded",
		zap.String("trigger", string(trigger)),
		zap.String("strategy", string(ex.Strategy)),
		zap.Float64("confidence", conf),
		zap.Float64("confidence_update", update),
		zap.Bool("needs_human_input", e.state.NeedsHumanInput),
	)
	return r
}

func improvements(conf float64) []string {
	switch {
	case conf < 0.5:
		return []string{"Consider alternative strategies", "Gather more context before answering"}
	case conf < 0.7:
		return []string{"Decompose the problem into smaller parts", "Verify intermediate reasoning steps"}
	}
	return []string{}
}

func strategicChanges(ex Execution, conf, threshold float64, areas []string) []string {
	changes := []string{}
	if ex.Strategy == "" {
		return changes
	}
	prefs := selection.ContextPreferences(ex.Analysis)
	if selection.ContextFit(ex.Analysis, ex.Strategy) < switchFitThreshold && len(prefs) > 0 {
		changes = append(changes, fmt.Sprintf("Switch from %s to %s for %s problems", ex.Strategy, prefs[0], ex.Analysis.Domain))
	}
	if conf < threshold {
		for _, p := range prefs {
			if p != ex.Strategy {
				changes = append(changes, fmt.Sprintf("Consider combining %s with %s", ex.Strategy, p))
				break
			}
		}
	}
	if len(areas) > 0 {
		changes = append(changes, fmt.Sprintf("Address %d uncertainty area(s)", len(areas)))
	}
	return changes
}

func uncertaintyAreas(ex Execution, conf, threshold float64) []string {
	areas := []string{}
	if ex.Analysis.UncertaintyLevel > highUncertainty {
		areas = append(areas, "high problem uncertainty")
	}
	if conf < threshold && ex.Strategy != "" {
		areas = append(areas, fmt.Sprintf("low confidence in %s output", ex.Strategy))
	}
	if ex.Failed && ex.Strategy != "" {
		areas = append(areas, fmt.Sprintf("strategy failure: %s", ex.Strategy))
	}
	return areas
}

// Effectiveness implements selection.EffectivenessSource
func (e *Engine) Effectiveness(name reasoning.StrategyName) (float64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.state.Effectiveness[name]
	return v, ok
}

// State returns a copy of the meta-cognitive state
func (e *Engine) State() MetaCognitiveState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := e.state
	s.StrategiesUsed = append([]reasoning.StrategyName(nil), e.state.StrategiesUsed...)
	s.UncertaintyAreas = append([]string(nil), e.state.UncertaintyAreas...)
	s.Effectiveness = make(map[reasoning.StrategyName]float64, len(e.state.Effectiveness))
	for k, v := range e.state.Effectiveness {
		s.Effectiveness[k] = v
	}
	return s
}

// History returns reflections oldest first
func (e *Engine) History() []SelfReflection {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]SelfReflection(nil), e.history...)
}

// Reset clears state and history. Intended for tests.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked()
}
