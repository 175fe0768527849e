// Package selection picks the primary and secondary strategies for a
// request by blending tracked performance with contextual fit.
package selection

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/performance"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/reasoning"
)

// Mode is the selection algorithm
type Mode string

const (
	ModePerformance Mode = "performance"
	ModeContext     Mode = "context"
	ModeHybrid      Mode = "hybrid"
)

const (
	neutralPrior          = 0.5
	maxSecondaries        = 2
	hybridCutoff          = 0.7
	agreeContextScore     = 1.0
	disagreeContextScore  = 0.7
	matchedContextConf    = 0.8
	unmatchedContextConf  = 0.5
	fallbackConfidence    = 0.5
	effectivenessWeight   = 0.2
	FallbackReasonPrefix  = "fallback:"
	multiPerspectiveRole  = reasoning.StrategyCouncilOfCritics
	iterativeRefineRole   = reasoning.StrategyChainOfDraft
	exploratorySearchRole = reasoning.StrategyTreeOfThoughts
)

// Decision is the selected strategy set
type Decision struct {
	Primary    reasoning.StrategyName   `json:"primary"`
	Secondary  []reasoning.StrategyName `json:"secondary"`
	Confidence float64                  `json:"confidence"`
	Reasoning  string                   `json:"reasoning"`
	Mode       Mode                     `json:"mode"`
}

// PerformanceSource exposes tracked statistics
type PerformanceSource interface {
	Get(name reasoning.StrategyName) (performance.StrategyPerformance, bool)
}

// EffectivenessSource exposes reflection-derived effectiveness
type EffectivenessSource interface {
	Effectiveness(name reasoning.StrategyName) (float64, bool)
}

// StrengthSource ranks strategies on the escalation ladder
type StrengthSource interface {
	Strength(name reasoning.StrategyName) int
}

// Selector chooses strategies
type Selector struct {
	perf      PerformanceSource
	eff       EffectivenessSource
	strengths StrengthSource
	mode      Mode
	logger    *zap.Logger
}

// Option configures a Selector
type Option func(*Selector)

// WithEffectiveness blends reflection effectiveness into performance scores
func WithEffectiveness(e EffectivenessSource) Option { return func(s *Selector) { s.eff = e } }

// WithStrengths sets the escalation ladder
func WithStrengths(st StrengthSource) Option { return func(s *Selector) { s.strengths = st } }

// WithMode sets the default selection mode
func WithMode(m Mode) Option { return func(s *Selector) { s.mode = m } }

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option { return func(s *Selector) { s.logger = l } }

// NewSelector creates a hybrid selector over perf
func NewSelector(perf PerformanceSource, opts ...Option) *Selector {
	s := &Selector{perf: perf, mode: ModeHybrid, logger: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Select picks strategies using the default mode
func (s *Selector) Select(a reasoning.ProblemAnalysis, available []reasoning.StrategyName) Decision {
	return s.SelectWithMode(a, available, s.mode)
}

// SelectWithMode picks strategies using mode. It never fails: with nothing
// available it returns basic with a flagged reasoning string.
func (s *Selector) SelectWithMode(a reasoning.ProblemAnalysis, available []reasoning.StrategyName, mode Mode) Decision {
	if len(available) == 0 {
		d := Decision{
			Primary:    reasoning.StrategyBasic,
			Secondary:  []reasoning.StrategyName{},
			Confidence: fallbackConfidence,
			Reasoning:  FallbackReasonPrefix + " no strategies available, using basic",
			Mode:       mode,
		}
		metrics.StrategySelections.WithLabelValues(string(d.Primary), "fallback").Inc()
		s.logger.Warn("No strategies available, falling back to basic")
		return d
	}

	var d Decision
	switch mode {
	case ModePerformance:
		name, score := s.bestByPerformance(available)
		d = Decision{
			Primary:    name,
			Confidence: score,
			Reasoning:  fmt.Sprintf("highest performance score %.2f", score),
		}
	case ModeContext:
		name, matched := contextChoice(a, available)
		d = Decision{Primary: name, Confidence: unmatchedContextConf}
		if matched {
			d.Confidence = matchedContextConf
			d.Reasoning = fmt.Sprintf("preferred for %s/%s problems", a.Domain, a.Complexity)
		} else {
			d.Reasoning = "no preferred strategy available, using first available"
		}
	default:
		mode = ModeHybrid
		d = s.hybrid(a, available)
	}
	d.Mode = mode
	d.Confidence = reasoning.Clamp(d.Confidence, 0, 1)
	d.Secondary = secondaries(a, d.Primary, available)

	metrics.StrategySelections.WithLabelValues(string(d.Primary), string(mode)).Inc()
	s.logger.Debug("Selected strategies",
		zap.String("primary", string(d.Primary)),
		zap.Int("secondary_count", len(d.Secondary)),
		zap.Float64("confidence", d.Confidence),
		zap.String("mode", string(mode)),
	)
	return d
}

func (s *Selector) hybrid(a reasoning.ProblemAnalysis, available []reasoning.StrategyName) Decision {
	perfChoice, perfScore := s.bestByPerformance(available)
	ctxChoice, _ := contextChoice(a, available)

	ctxScore := disagreeContextScore
	if perfChoice == ctxChoice {
		ctxScore = agreeContextScore
	}
	final := perfScore*0.6 + ctxScore*0.4

	if final > hybridCutoff {
		return Decision{
			Primary:    perfChoice,
			Confidence: final,
			Reasoning:  fmt.Sprintf("performance choice %s (hybrid score %.2f)", perfChoice, final),
		}
	}
	return Decision{
		Primary:    ctxChoice,
		Confidence: final,
		Reasoning:  fmt.Sprintf("context choice %s (hybrid score %.2f)", ctxChoice, final),
	}
}

// PerformanceScore is 0.6*successRate + 0.4*averageConfidence, using a 0.5
// prior for unseen strategies and blending in reflection effectiveness.
func (s *Selector) PerformanceScore(name reasoning.StrategyName) float64 {
	score := neutralPrior
	if p, ok := s.lookup(name); ok {
		score = p.Score()
	}
	if s.eff != nil {
		if e, ok := s.eff.Effectiveness(name); ok {
			score = (1-effectivenessWeight)*score + effectivenessWeight*e
		}
	}
	return reasoning.Clamp(score, 0, 1)
}

func (s *Selector) averageConfidence(name reasoning.StrategyName) float64 {
	if p, ok := s.lookup(name); ok {
		return p.AverageConfidence
	}
	return neutralPrior
}

func (s *Selector) lookup(name reasoning.StrategyName) (performance.StrategyPerformance, bool) {
	if s.perf == nil {
		return performance.StrategyPerformance{}, false
	}
	p, ok := s.perf.Get(name)
	if !ok || p.UseCount == 0 {
		return performance.StrategyPerformance{}, false
	}
	return p, true
}

func (s *Selector) bestByPerformance(available []reasoning.StrategyName) (reasoning.StrategyName, float64) {
	best := available[0]
	bestScore := s.PerformanceScore(best)
	for _, name := range available[1:] {
		if sc := s.PerformanceScore(name); sc > bestScore {
			best, bestScore = name, sc
		}
	}
	return best, bestScore
}

func (s *Selector) strength(name reasoning.StrategyName) int {
	if s.strengths == nil {
		return 0
	}
	return s.strengths.Strength(name)
}

// SelectEscalation picks a strategy of at least minStrength, preferring
// candidates whose average confidence reaches floor. Ties go to the
// stronger strategy.
func (s *Selector) SelectEscalation(a reasoning.ProblemAnalysis, available []reasoning.StrategyName, minStrength int, floor float64) (reasoning.StrategyName, bool) {
	var candidates, preferred []reasoning.StrategyName
	for _, name := range available {
		if s.strength(name) < minStrength {
			continue
		}
		candidates = append(candidates, name)
		if s.averageConfidence(name) >= floor {
			preferred = append(preferred, name)
		}
	}
	pool := preferred
	if len(pool) == 0 {
		pool = candidates
	}
	if len(pool) == 0 {
		return "", false
	}

	best := pool[0]
	bestScore := s.PerformanceScore(best)
	for _, name := range pool[1:] {
		sc := s.PerformanceScore(name)
		if sc > bestScore || (sc == bestScore && s.strength(name) > s.strength(best)) {
			best, bestScore = name, sc
		}
	}
	s.logger.Debug("Selected escalation strategy",
		zap.String("strategy", string(best)),
		zap.Int("min_strength", minStrength),
		zap.Float64("confidence_floor", floor),
		zap.Bool("met_floor", len(preferred) > 0),
	)
	return best, true
}

// StrongestAvailable returns the highest strength among available
func (s *Selector) StrongestAvailable(available []reasoning.StrategyName) int {
	strongest := -1
	for _, name := range available {
		if st := s.strength(name); st > strongest {
			strongest = st
		}
	}
	return strongest
}

// Strength returns the ladder position of name
func (s *Selector) Strength(name reasoning.StrategyName) int { return s.strength(name) }

func contextChoice(a reasoning.ProblemAnalysis, available []reasoning.StrategyName) (reasoning.StrategyName, bool) {
	for _, pref := range ContextPreferences(a) {
		if contains(available, pref) {
			return pref, true
		}
	}
	return available[0], false
}

func secondaries(a reasoning.ProblemAnalysis, primary reasoning.StrategyName, available []reasoning.StrategyName) []reasoning.StrategyName {
	out := make([]reasoning.StrategyName, 0, maxSecondaries)
	add := func(name reasoning.StrategyName) {
		if len(out) >= maxSecondaries || name == primary || contains(out, name) || !contains(available, name) {
			return
		}
		out = append(out, name)
	}
	if a.RequiresMultiplePerspectives {
		add(multiPerspectiveRole)
	}
	if a.RequiresIterativeRefinement {
		add(iterativeRefineRole)
	}
	if a.Complexity == reasoning.ComplexityHighlyComplex {
		add(exploratorySearchRole)
	}
	return out
}

func contains(list []reasoning.StrategyName, name reasoning.StrategyName) bool {
	for _, n := range list {
		if n == name {
			return true
		}
	}
	return false
}

// IsFallback reports whether d came from the no-strategy path
func (d Decision) IsFallback() bool {
	return strings.HasPrefix(d.Reasoning, FallbackReasonPrefix)
}
