package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/performance"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/reasoning"
)

var allStrategies = []reasoning.StrategyName{
	reasoning.StrategyBasic,
	reasoning.StrategyChainOfDraft,
	reasoning.StrategyReAct,
	reasoning.StrategyCouncilOfCritics,
	reasoning.StrategyTreeOfThoughts,
	reasoning.StrategyMetaCognitive,
}

type ladder map[reasoning.StrategyName]int

func (l ladder) Strength(name reasoning.StrategyName) int {
	if v, ok := l[name]; ok {
		return v
	}
	return -1
}

var defaultLadder = ladder{
	reasoning.StrategyBasic:            0,
	reasoning.StrategyChainOfDraft:     1,
	reasoning.StrategyReAct:            2,
	reasoning.StrategyCouncilOfCritics: 3,
	reasoning.StrategyTreeOfThoughts:   4,
	reasoning.StrategyMetaCognitive:    5,
}

type fixedEffectiveness map[reasoning.StrategyName]float64

func (f fixedEffectiveness) Effectiveness(name reasoning.StrategyName) (float64, bool) {
	v, ok := f[name]
	return v, ok
}

func TestSelectFallbackWhenNothingAvailable(t *testing.T) {
	s := NewSelector(performance.NewTracker())
	d := s.Select(reasoning.ProblemAnalysis{}, nil)
	assert.Equal(t, reasoning.StrategyBasic, d.Primary)
	assert.Equal(t, 0.5, d.Confidence)
	assert.True(t, d.IsFallback())
	assert.Empty(t, d.Secondary)
}

func TestContextModeUsesLookupTable(t *testing.T) {
	s := NewSelector(performance.NewTracker())
	a := reasoning.ProblemAnalysis{Domain: "technology", Complexity: reasoning.ComplexityModerate}

	d := s.SelectWithMode(a, allStrategies, ModeContext)
	assert.Equal(t, reasoning.StrategyReAct, d.Primary)
	assert.Equal(t, 0.8, d.Confidence)

	d = s.SelectWithMode(a, []reasoning.StrategyName{reasoning.StrategyChainOfDraft, reasoning.StrategyBasic}, ModeContext)
	assert.Equal(t, reasoning.StrategyChainOfDraft, d.Primary)

	d = s.SelectWithMode(a, []reasoning.StrategyName{reasoning.StrategyMetaCognitive}, ModeContext)
	assert.Equal(t, reasoning.StrategyMetaCognitive, d.Primary)
	assert.Equal(t, 0.5, d.Confidence)
}

func TestContextPreferencesHighlyComplexOverridesDomain(t *testing.T) {
	a := reasoning.ProblemAnalysis{Domain: "technology", Complexity: reasoning.ComplexityHighlyComplex}
	assert.Equal(t, highlyComplexPreferences, ContextPreferences(a))

	general := reasoning.ProblemAnalysis{Domain: "general", Complexity: reasoning.ComplexityComplex}
	assert.Equal(t, reasoning.StrategyCouncilOfCritics, ContextPreferences(general)[0])

	assert.Equal(t, 1.0, ContextFit(general, reasoning.StrategyCouncilOfCritics))
	assert.Equal(t, 0.8, ContextFit(general, reasoning.StrategyTreeOfThoughts))
	assert.Equal(t, 0.4, ContextFit(general, reasoning.StrategyBasic))
}

func TestPerformanceModeRanksByScore(t *testing.T) {
	tr := performance.NewTracker()
	tr.Update(reasoning.StrategyChainOfDraft, 0.95, 10, "general")
	tr.Update(reasoning.StrategyReAct, 0.2, 10, "general")

	s := NewSelector(tr)
	d := s.SelectWithMode(reasoning.ProblemAnalysis{Domain: "general"}, allStrategies, ModePerformance)
	assert.Equal(t, reasoning.StrategyChainOfDraft, d.Primary)
	assert.InDelta(t, 0.6+0.4*0.95, d.Confidence, 1e-9)
}

func TestHybridPrefersPerformanceWhenStrong(t *testing.T) {
	tr := performance.NewTracker()
	for i := 0; i < 5; i++ {
		tr.Update(reasoning.StrategyTreeOfThoughts, 0.95, 10, "general")
	}
	s := NewSelector(tr)
	a := reasoning.ProblemAnalysis{Domain: "technology", Complexity: reasoning.ComplexityModerate}

	// perf score 0.98, disagreement 0.7: 0.588 + 0.28 = 0.868 > 0.7
	d := s.Select(a, allStrategies)
	assert.Equal(t, reasoning.StrategyTreeOfThoughts, d.Primary)
	assert.Equal(t, ModeHybrid, d.Mode)
	assert.InDelta(t, 0.868, d.Confidence, 1e-9)
}

func TestHybridFallsBackToContextWhenWeak(t *testing.T) {
	s := NewSelector(performance.NewTracker())
	a := reasoning.ProblemAnalysis{Domain: "business", Complexity: reasoning.ComplexitySimple}

	// every strategy scores the 0.5 prior; basic wins ties and disagrees with context
	d := s.Select(a, allStrategies)
	assert.Equal(t, reasoning.StrategyCouncilOfCritics, d.Primary)
	assert.InDelta(t, 0.58, d.Confidence, 1e-9)
}

func TestSecondaryIncludesCouncilForMultiplePerspectives(t *testing.T) {
	s := NewSelector(performance.NewTracker())
	a := reasoning.ProblemAnalysis{
		Domain:                       "technology",
		Complexity:                   reasoning.ComplexityHighlyComplex,
		RequiresMultiplePerspectives: true,
		RequiresIterativeRefinement:  true,
	}
	d := s.SelectWithMode(a, allStrategies, ModeContext)
	require.Equal(t, reasoning.StrategyTreeOfThoughts, d.Primary)
	assert.Contains(t, d.Secondary, reasoning.StrategyCouncilOfCritics)
	assert.Len(t, d.Secondary, 2)
	assert.NotContains(t, d.Secondary, d.Primary)
}

func TestSecondaryRespectsAvailability(t *testing.T) {
	s := NewSelector(performance.NewTracker())
	a := reasoning.ProblemAnalysis{RequiresMultiplePerspectives: true, Complexity: reasoning.ComplexitySimple}
	d := s.SelectWithMode(a, []reasoning.StrategyName{reasoning.StrategyBasic}, ModeContext)
	assert.Empty(t, d.Secondary)
}

func TestEffectivenessBlendsIntoScore(t *testing.T) {
	s := NewSelector(performance.NewTracker(), WithEffectiveness(fixedEffectiveness{reasoning.StrategyReAct: 1.0}))
	assert.InDelta(t, 0.6, s.PerformanceScore(reasoning.StrategyReAct), 1e-9)
	assert.InDelta(t, 0.5, s.PerformanceScore(reasoning.StrategyBasic), 1e-9)
}

func TestSelectEscalation(t *testing.T) {
	tr := performance.NewTracker()
	tr.Update(reasoning.StrategyCouncilOfCritics, 0.9, 10, "general")
	tr.Update(reasoning.StrategyTreeOfThoughts, 0.4, 10, "general")
	s := NewSelector(tr, WithStrengths(defaultLadder))
	a := reasoning.ProblemAnalysis{}

	name, ok := s.SelectEscalation(a, allStrategies, 3, 0.8)
	require.True(t, ok)
	assert.Equal(t, reasoning.StrategyCouncilOfCritics, name)

	// No candidate meets the floor: best score wins, ties go to the stronger one
	name, ok = s.SelectEscalation(a, []reasoning.StrategyName{reasoning.StrategyReAct, reasoning.StrategyMetaCognitive}, 2, 0.99)
	require.True(t, ok)
	assert.Equal(t, reasoning.StrategyMetaCognitive, name)

	_, ok = s.SelectEscalation(a, []reasoning.StrategyName{reasoning.StrategyBasic}, 1, 0.5)
	assert.False(t, ok)

	assert.Equal(t, 5, s.StrongestAvailable(allStrategies))
}
