package selection

import "github.com/Kocoro-lab/Shannon/go/reasoning/internal/reasoning"

var domainPreferences = map[string][]reasoning.StrategyName{
	"technology":   {reasoning.StrategyReAct, reasoning.StrategyChainOfDraft},
	"business":     {reasoning.StrategyCouncilOfCritics, reasoning.StrategyReAct},
	"science":      {reasoning.StrategyTreeOfThoughts, reasoning.StrategyChainOfDraft},
	"creative":     {reasoning.StrategyTreeOfThoughts, reasoning.StrategyCouncilOfCritics},
	"social":       {reasoning.StrategyCouncilOfCritics, reasoning.StrategyMetaCognitive},
	"ethical":      {reasoning.StrategyCouncilOfCritics, reasoning.StrategyMetaCognitive},
	"mathematical": {reasoning.StrategyChainOfDraft, reasoning.StrategyReAct},
}

var generalPreferences = map[reasoning.Complexity][]reasoning.StrategyName{
	reasoning.ComplexityComplex:  {reasoning.StrategyCouncilOfCritics, reasoning.StrategyTreeOfThoughts},
	reasoning.ComplexityModerate: {reasoning.StrategyReAct, reasoning.StrategyChainOfDraft},
	reasoning.ComplexitySimple:   {reasoning.StrategyChainOfDraft, reasoning.StrategyBasic},
}

var highlyComplexPreferences = []reasoning.StrategyName{
	reasoning.StrategyTreeOfThoughts,
	reasoning.StrategyCouncilOfCritics,
	reasoning.StrategyMetaCognitive,
}

// ContextPreferences returns the preferred strategies for an analysis, best first
func ContextPreferences(a reasoning.ProblemAnalysis) []reasoning.StrategyName {
	var prefs []reasoning.StrategyName
	switch {
	case a.Complexity == reasoning.ComplexityHighlyComplex:
		prefs = highlyComplexPreferences
	case domainPreferences[a.Domain] != nil:
		prefs = domainPreferences[a.Domain]
	default:
		prefs = generalPreferences[a.Complexity]
		if prefs == nil {
			prefs = generalPreferences[reasoning.ComplexitySimple]
		}
	}
	return append([]reasoning.StrategyName(nil), prefs...)
}

// ContextFit scores how well name suits the analysis: 1.0 for the first
// preference, 0.8 for any other preference and 0.4 otherwise.
func ContextFit(a reasoning.ProblemAnalysis, name reasoning.StrategyName) float64 {
	for i, p := range ContextPreferences(a) {
		if p == name {
			if i == 0 {
				return 1.0
			}
			return 0.8
		}
	}
	return 0.4
}
