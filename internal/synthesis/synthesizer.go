// Package synthesis merges the primary and secondary strategy results into
// a single response with a consensus-adjusted confidence.
package synthesis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/reasoning"
)

const (
	minConfidence     = 0.1
	maxConfidence     = 1.0
	consensusVariance = 0.1
)

// Synthesizer combines strategy outputs
type Synthesizer struct{}

// NewSynthesizer creates a Synthesizer
func NewSynthesizer() *Synthesizer { return &Synthesizer{} }

// Synthesize returns primary unchanged when there are no secondaries
func (s *Synthesizer) Synthesize(primary *reasoning.Result, secondary []*reasoning.Result) *reasoning.Result {
	others := make([]*reasoning.Result, 0, len(secondary))
	for _, r := range secondary {
		if r != nil {
			others = append(others, r)
		}
	}
	if primary == nil {
		if len(others) == 0 {
			return nil
		}
		primary, others = others[0], others[1:]
	}
	if len(others) == 0 {
		return primary
	}

	all := append([]*reasoning.Result{primary}, others...)
	confs := make([]float64, len(all))
	for i, r := range all {
		confs[i] = r.Confidence
	}

	out := &reasoning.Result{
		ID:               uuid.New().String(),
		Type:             primary.Type,
		PrimaryResponse:  composeText(primary, others),
		ReasoningProcess: mergeSteps(all),
		Confidence:       CombinedConfidence(confs),
	}

	alternatives := newOrderedSet()
	resources := newOrderedSet()
	sources := newOrderedSet()
	for _, r := range all {
		alternatives.add(r.Alternatives...)
		resources.add(r.Metadata.ResourcesUsed...)
		if len(r.Metadata.SynthesizedFrom) > 0 {
			for _, n := range r.Metadata.SynthesizedFrom {
				sources.add(string(n))
			}
		} else {
			sources.add(string(r.Type))
		}
		out.Metadata.ProcessingTimeMs += r.Metadata.ProcessingTimeMs
		if r.Metadata.ComplexityScore > out.Metadata.ComplexityScore {
			out.Metadata.ComplexityScore = r.Metadata.ComplexityScore
		}
	}
	out.Alternatives = alternatives.items
	out.Metadata.ResourcesUsed = resources.items
	for _, n := range sources.items {
		out.Metadata.SynthesizedFrom = append(out.Metadata.SynthesizedFrom, reasoning.StrategyName(n))
	}
	return out
}

// CombinedConfidence is the mean plus ConsensusBonus, clamped to [0.1, 1]
func CombinedConfidence(confs []float64) float64 {
	if len(confs) == 0 {
		return minConfidence
	}
	mean, _ := meanVariance(confs)
	return reasoning.Clamp(mean+ConsensusBonus(confs), minConfidence, maxConfidence)
}

// ConsensusBonus rewards agreement: max(0, (0.1 - variance) * 2)
func ConsensusBonus(confs []float64) float64 {
	if len(confs) < 2 {
		return 0
	}
	_, variance := meanVariance(confs)
	bonus := (consensusVariance - variance) * 2
	if bonus < 0 {
		return 0
	}
	return bonus
}

// meanVariance uses the population variance
func meanVariance(xs []float64) (float64, float64) {
	var sum float64
	for _, x := range xs {
		sum += reasoning.Clamp(x, 0, 1)
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		d := reasoning.Clamp(x, 0, 1) - mean
		sq += d * d
	}
	return mean, sq / float64(len(xs))
}

func composeText(primary *reasoning.Result, others []*reasoning.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Primary Analysis (%s)\n\n%s\n", label(primary.Type), strings.TrimSpace(primary.PrimaryResponse))
	for _, r := range others {
		fmt.Fprintf(&b, "\n## %s Analysis\n\n%s\n", label(r.Type), strings.TrimSpace(r.PrimaryResponse))
	}

	names := make([]string, 0, len(others)+1)
	names = append(names, label(primary.Type))
	for _, r := range others {
		names = append(names, label(r.Type))
	}
	fmt.Fprintf(&b, "\n## Synthesis\n\nThis response draws on %d reasoning approaches: %s. ",
		len(names), strings.Join(names, ", "))
	b.WriteString("Where the approaches agree the conclusion is reinforced; where they differ, the primary analysis takes precedence and the other perspectives are offered as supporting context.")
	return b.String()
}

func label(name reasoning.StrategyName) string {
	if name == "" {
		return "unknown"
	}
	words := strings.Split(string(name), "_")
	for i, w := range words {
		if w == "of" {
			continue
		}
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// mergeSteps orders steps by timestamp (stable, so ties keep strategy order)
// and renumbers them from 1.
func mergeSteps(results []*reasoning.Result) []reasoning.Step {
	var steps []reasoning.Step
	for _, r := range results {
		for _, st := range r.ReasoningProcess {
			if st.Type == "" {
				st.Type = string(r.Type)
			}
			steps = append(steps, st)
		}
	}
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].Timestamp.Before(steps[j].Timestamp)
	})
	for i := range steps {
		steps[i].Step = i + 1
	}
	return steps
}

type orderedSet struct {
	seen  map[string]bool
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: map[string]bool{}, items: []string{}}
}

func (s *orderedSet) add(vals ...string) {
	for _, v := range vals {
		if v == "" || s.seen[v] {
			continue
		}
		s.seen[v] = true
		s.items = append(s.items, v)
	}
}
