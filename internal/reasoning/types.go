// Package reasoning holds the data model shared by every stage of the
// reasoning pipeline: analysis, selection, execution, synthesis, escalation
// and reflection.
package reasoning

import (
	"math"
	"time"
)

// StrategyName identifies a registered reasoning strategy
type StrategyName string

const (
	StrategyBasic            StrategyName = "basic"
	StrategyChainOfDraft     StrategyName = "chain_of_draft"
	StrategyReAct            StrategyName = "react"
	StrategyCouncilOfCritics StrategyName = "council_of_critics"
	StrategyTreeOfThoughts   StrategyName = "tree_of_thoughts"
	StrategyMetaCognitive    StrategyName = "meta_cognitive"
)

// Complexity is the coarse difficulty bucket of a problem
type Complexity string

const (
	ComplexitySimple        Complexity = "simple"
	ComplexityModerate      Complexity = "moderate"
	ComplexityComplex       Complexity = "complex"
	ComplexityHighlyComplex Complexity = "highly_complex"
)

// TimeConstraint expresses how urgent a request is
type TimeConstraint string

const (
	TimeNone     TimeConstraint = "none"
	TimeModerate TimeConstraint = "moderate"
	TimeStrict   TimeConstraint = "strict"
)

// ProblemAnalysis is produced once per request and never mutated afterwards
type ProblemAnalysis struct {
	Complexity                   Complexity     `json:"complexity"`
	ComplexityScore              int            `json:"complexity_score"`
	Domain                       string         `json:"domain"`
	RequiresToolUse              bool           `json:"requires_tool_use"`
	RequiresMultiplePerspectives bool           `json:"requires_multiple_perspectives"`
	RequiresIterativeRefinement  bool           `json:"requires_iterative_refinement"`
	RequiresExploration          bool           `json:"requires_exploration"`
	UncertaintyLevel             float64        `json:"uncertainty_level"`
	StakeholderCount             int            `json:"stakeholder_count"`
	TimeConstraints              TimeConstraint `json:"time_constraints"`
}

// Step is one entry of a strategy's reasoning trace
type Step struct {
	Step       int       `json:"step"`
	Type       string    `json:"type"`
	Content    string    `json:"content"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// ResultMetadata carries bookkeeping about how a result was produced
type ResultMetadata struct {
	ProcessingTimeMs int64          `json:"processing_time_ms"`
	ComplexityScore  float64        `json:"complexity_score"`
	ResourcesUsed    []string       `json:"resources_used"`
	SynthesizedFrom  []StrategyName `json:"synthesized_from,omitempty"`
}

// Result is the outcome of one strategy invocation. Treat as immutable once returned.
type Result struct {
	ID               string         `json:"id"`
	Type             StrategyName   `json:"type"`
	PrimaryResponse  string         `json:"primary_response"`
	ReasoningProcess []Step         `json:"reasoning_process"`
	Confidence       float64        `json:"confidence"`
	Alternatives     []string       `json:"alternatives"`
	Metadata         ResultMetadata `json:"metadata"`
}

// ContextVersion is the current version of RequestContext
const ContextVersion = 1

// Personality describes the relationship with the requesting user. All fields optional.
type Personality struct {
	RelationshipStrength *float64 `json:"relationship_strength,omitempty"`
	UserMood             string   `json:"user_mood,omitempty"`
	PersonaSupportive    *float64 `json:"persona_supportiveness,omitempty"`
}

// RequestContext is the typed caller context. Defaults are resolved once by Normalize.
type RequestContext struct {
	Version      int               `json:"version"`
	Type         string            `json:"type"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	Personality  *Personality      `json:"personality,omitempty"`
	SystemLoad   *float64          `json:"system_load,omitempty"`
	ParallelSafe bool              `json:"parallel_safe"`
	Knowledge    []string          `json:"knowledge,omitempty"`
}

// Normalize returns a copy with defaults filled in
func (c *RequestContext) Normalize() RequestContext {
	if c == nil {
		return RequestContext{Version: ContextVersion, Type: "general", Attributes: map[string]string{}}
	}
	out := *c
	if out.Version == 0 {
		out.Version = ContextVersion
	}
	if out.Type == "" {
		out.Type = "general"
	}
	attrs := make(map[string]string, len(c.Attributes))
	for k, v := range c.Attributes {
		attrs[k] = v
	}
	out.Attributes = attrs
	if c.Knowledge != nil {
		out.Knowledge = append([]string(nil), c.Knowledge...)
	}
	return out
}

// KeyCount is the number of caller-supplied attributes
func (c RequestContext) KeyCount() int { return len(c.Attributes) }

// Config toggles strategies and sets the success threshold for a request
type Config struct {
	EnableReAct            bool    `json:"enable_react" mapstructure:"enable_react" yaml:"enable_react"`
	EnableChainOfDraft     bool    `json:"enable_chain_of_draft" mapstructure:"enable_chain_of_draft" yaml:"enable_chain_of_draft"`
	EnableTreeOfThoughts   bool    `json:"enable_tree_of_thoughts" mapstructure:"enable_tree_of_thoughts" yaml:"enable_tree_of_thoughts"`
	EnableCouncilOfCritics bool    `json:"enable_council_of_critics" mapstructure:"enable_council_of_critics" yaml:"enable_council_of_critics"`
	EnableMetaCognitive    bool    `json:"enable_meta_cognitive" mapstructure:"enable_meta_cognitive" yaml:"enable_meta_cognitive"`
	EnableSelfReflection   bool    `json:"enable_self_reflection" mapstructure:"enable_self_reflection" yaml:"enable_self_reflection"`
	ConfidenceThreshold    float64 `json:"confidence_threshold" mapstructure:"confidence_threshold" yaml:"confidence_threshold"`
}

// DefaultConfig enables every strategy
func DefaultConfig() Config {
	return Config{
		EnableReAct:            true,
		EnableChainOfDraft:     true,
		EnableTreeOfThoughts:   true,
		EnableCouncilOfCritics: true,
		EnableMetaCognitive:    true,
		EnableSelfReflection:   true,
		ConfidenceThreshold:    0.7,
	}
}

// Preferences is a partial Config supplied by the caller. Nil fields keep the base value.
type Preferences struct {
	EnableReAct            *bool    `json:"enable_react,omitempty"`
	EnableChainOfDraft     *bool    `json:"enable_chain_of_draft,omitempty"`
	EnableTreeOfThoughts   *bool    `json:"enable_tree_of_thoughts,omitempty"`
	EnableCouncilOfCritics *bool    `json:"enable_council_of_critics,omitempty"`
	EnableMetaCognitive    *bool    `json:"enable_meta_cognitive,omitempty"`
	EnableSelfReflection   *bool    `json:"enable_self_reflection,omitempty"`
	ConfidenceThreshold    *float64 `json:"confidence_threshold,omitempty"`
}

// Merge applies preferences over c
func (c Config) Merge(p *Preferences) Config {
	if p == nil {
		return c
	}
	set := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	set(&c.EnableReAct, p.EnableReAct)
	set(&c.EnableChainOfDraft, p.EnableChainOfDraft)
	set(&c.EnableTreeOfThoughts, p.EnableTreeOfThoughts)
	set(&c.EnableCouncilOfCritics, p.EnableCouncilOfCritics)
	set(&c.EnableMetaCognitive, p.EnableMetaCognitive)
	set(&c.EnableSelfReflection, p.EnableSelfReflection)
	if p.ConfidenceThreshold != nil {
		c.ConfidenceThreshold = Clamp(*p.ConfidenceThreshold, 0, 1)
	}
	return c
}

// Enabled reports whether the named strategy is switched on. basic is always on.
func (c Config) Enabled(name StrategyName) bool {
	switch name {
	case StrategyBasic:
		return true
	case StrategyReAct:
		return c.EnableReAct
	case StrategyChainOfDraft:
		return c.EnableChainOfDraft
	case StrategyTreeOfThoughts:
		return c.EnableTreeOfThoughts
	case StrategyCouncilOfCritics:
		return c.EnableCouncilOfCritics
	case StrategyMetaCognitive:
		return c.EnableMetaCognitive
	}
	return false
}

// Capabilities maps each config flag to its current value
func (c Config) Capabilities() map[string]bool {
	return map[string]bool{
		"enableReAct":            c.EnableReAct,
		"enableChainOfDraft":     c.EnableChainOfDraft,
		"enableTreeOfThoughts":   c.EnableTreeOfThoughts,
		"enableCouncilOfCritics": c.EnableCouncilOfCritics,
		"enableMetaCognitive":    c.EnableMetaCognitive,
		"enableSelfReflection":   c.EnableSelfReflection,
	}
}

// Clamp bounds v to [lo, hi]. NaN maps to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
