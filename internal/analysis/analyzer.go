// Package analysis classifies an incoming problem before any strategy runs.
// Everything here is pure and CPU-bound.
package analysis

import (
	"strings"

	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/reasoning"
)

// DefaultDomain is reported when no domain keyword matches
const DefaultDomain = "general"

const (
	longPromptWords    = 100
	contextKeysForHint = 3
	maxStakeholders    = 10
)

type domainKeywords struct {
	name     string
	keywords []string
}

// domainOrder is evaluated top to bottom; the first domain with a hit wins.
var domainOrder = []domainKeywords{
	{"technology", []string{"code", "software", "programming", "api", "database", "algorithm", "computer", "server", "bug", "deploy", "kubernetes", "function"}},
	{"business", []string{"business", "market", "revenue", "customer", "sales", "profit", "startup", "pricing", "investment"}},
	{"science", []string{"science", "scientific", "experiment", "hypothesis", "physics", "chemistry", "biology", "climate"}},
	{"creative", []string{"story", "poem", "creative", "design", "art", "music", "novel", "character"}},
	{"social", []string{"social", "community", "relationship", "friend", "family", "culture", "society"}},
	{"ethical", []string{"ethical", "ethics", "moral", "right or wrong", "fairness", "justice", "should i"}},
	{"mathematical", []string{"math", "equation", "calculate", "proof", "theorem", "integral", "probability", "derivative"}},
}

var (
	conditionalTerms     = []string{"if", "unless", "assuming", "provided that", "in case", "depending on", "otherwise"}
	comparisonTerms      = []string{"compare", "comparison", "versus", "vs", "better than", "worse than", "difference between", "pros and cons", "trade-off", "tradeoff"}
	toolUseTerms         = []string{"calculate", "search", "look up", "lookup", "fetch", "latest", "current", "compute", "run", "execute", "query"}
	perspectiveTerms     = []string{"perspective", "perspectives", "viewpoint", "viewpoints", "opinions", "debate", "pros and cons", "stakeholders", "different angles", "both sides"}
	refinementTerms      = []string{"improve", "refine", "iterate", "polish", "revise", "optimize", "draft", "step by step"}
	explorationTerms     = []string{"explore", "brainstorm", "possibilities", "alternatives", "options", "what if", "ideas", "discover"}
	uncertaintyTerms     = []string{"maybe", "perhaps", "uncertain", "unclear", "might", "possibly", "unsure", "not sure", "ambiguous", "could be"}
	hypotheticalTerms    = []string{"what if", "suppose", "imagine", "hypothetically", "would happen"}
	stakeholderTerms     = []string{"team", "customers", "users", "employees", "stakeholders", "management", "investors", "partners", "community", "public", "government"}
	multiplicityTerms    = []string{"multiple", "various"}
	urgentTerms          = []string{"urgent", "asap", "immediately", "emergency", "right now", "critical deadline"}
	moderateUrgencyTerms = []string{"soon", "quickly", "deadline", "today", "this week", "priority"}
)

// Analyzer maps a prompt and its context to a ProblemAnalysis
type Analyzer struct {
	domains []domainKeywords
}

// NewAnalyzer returns an analyzer with the built-in keyword tables
func NewAnalyzer() *Analyzer {
	return &Analyzer{domains: domainOrder}
}

// Analyze never fails; empty or malformed prompts yield a general/simple analysis.
func (a *Analyzer) Analyze(prompt string, rc reasoning.RequestContext) reasoning.ProblemAnalysis {
	text := newText(prompt)

	score := complexityScore(text, prompt, rc)
	out := reasoning.ProblemAnalysis{
		Complexity:                   complexityFromScore(score),
		ComplexityScore:              score,
		Domain:                       a.domain(text),
		RequiresToolUse:              text.containsAny(toolUseTerms),
		RequiresMultiplePerspectives: text.containsAny(perspectiveTerms),
		RequiresIterativeRefinement:  text.containsAny(refinementTerms),
		RequiresExploration:          text.containsAny(explorationTerms),
		UncertaintyLevel:             uncertainty(text, rc),
		StakeholderCount:             stakeholders(text),
		TimeConstraints:              timeConstraints(text),
	}
	return out
}

func complexityScore(text normalizedText, raw string, rc reasoning.RequestContext) int {
	score := 0
	if len(text.words) > longPromptWords {
		score++
	}
	if strings.Count(raw, "?") > 1 {
		score++
	}
	if text.containsAny(conditionalTerms) {
		score++
	}
	if text.containsAny(comparisonTerms) {
		score++
	}
	if rc.KeyCount() > contextKeysForHint {
		score++
	}
	return score
}

func complexityFromScore(score int) reasoning.Complexity {
	switch {
	case score >= 4:
		return reasoning.ComplexityHighlyComplex
	case score >= 3:
		return reasoning.ComplexityComplex
	case score >= 2:
		return reasoning.ComplexityModerate
	default:
		return reasoning.ComplexitySimple
	}
}

func (a *Analyzer) domain(text normalizedText) string {
	for _, d := range a.domains {
		if text.containsAny(d.keywords) {
			return d.name
		}
	}
	return DefaultDomain
}

func uncertainty(text normalizedText, rc reasoning.RequestContext) float64 {
	level := 0.3
	level += 0.2 * float64(text.countAny(uncertaintyTerms))
	if text.containsAny(hypotheticalTerms) {
		level += 0.3
	}
	if rc.KeyCount() > 2 {
		level -= 0.1
	}
	return reasoning.Clamp(level, 0, 1)
}

func stakeholders(text normalizedText) int {
	count := 1 + text.countAny(stakeholderTerms)
	if text.containsAny(multiplicityTerms) {
		count += 2
	}
	if count > maxStakeholders {
		count = maxStakeholders
	}
	return count
}

func timeConstraints(text normalizedText) reasoning.TimeConstraint {
	switch {
	case text.containsAny(urgentTerms):
		return reasoning.TimeStrict
	case text.containsAny(moderateUrgencyTerms):
		return reasoning.TimeModerate
	default:
		return reasoning.TimeNone
	}
}
