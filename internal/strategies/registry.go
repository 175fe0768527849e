// Package strategies maps strategy names to the backends that implement them.
package strategies

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/reasoning"
)

// Capability describes what a strategy is good at
type Capability string

const (
	CapabilityDirectAnswer      Capability = "direct_answer"
	CapabilityIterativeRefine   Capability = "iterative_refinement"
	CapabilityToolUse           Capability = "tool_use"
	CapabilityMultiPerspective  Capability = "multi_perspective"
	CapabilityExploration       Capability = "exploration"
	CapabilitySelfMonitoring    Capability = "self_monitoring"
	CapabilityConflictResolving Capability = "conflict_resolution"
)

var (
	ErrUnknownStrategy = errors.New("unknown strategy")
	ErrNilBackend      = errors.New("cannot register nil backend")
	ErrEmptyName       = errors.New("strategy name is required")
)

// BackendContext is what a backend receives besides the prompt
type BackendContext struct {
	Request  reasoning.RequestContext  `json:"request"`
	Analysis reasoning.ProblemAnalysis `json:"analysis"`
	// PreviousResponses holds outputs of strategies this one depends on
	PreviousResponses []string          `json:"previous_responses,omitempty"`
	Knowledge         []string          `json:"knowledge,omitempty"`
	Parameters        map[string]string `json:"parameters,omitempty"`
}

// Backend generates a response for one strategy
type Backend interface {
	GenerateResponse(ctx context.Context, sessionID, prompt string, bc BackendContext) (*reasoning.Result, error)
}

// BackendFunc adapts a function to Backend
type BackendFunc func(ctx context.Context, sessionID, prompt string, bc BackendContext) (*reasoning.Result, error)

// GenerateResponse calls f
func (f BackendFunc) GenerateResponse(ctx context.Context, sessionID, prompt string, bc BackendContext) (*reasoning.Result, error) {
	return f(ctx, sessionID, prompt, bc)
}

// BackendError wraps a failure from a named strategy
type BackendError struct {
	Strategy reasoning.StrategyName
	Err      error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("strategy %s failed: %v", e.Strategy, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Registration is one row of the strategy table
type Registration struct {
	Name     reasoning.StrategyName
	Strength int
	// After lists strategies that must finish first when both run as secondaries
	After        []reasoning.StrategyName
	Capabilities []Capability
	Backend      Backend
}

// Catalog is the built-in strategy table without backends
func Catalog() []Registration {
	return []Registration{
		{Name: reasoning.StrategyBasic, Strength: 0, Capabilities: []Capability{CapabilityDirectAnswer}},
		{Name: reasoning.StrategyChainOfDraft, Strength: 1, Capabilities: []Capability{CapabilityIterativeRefine}},
		{Name: reasoning.StrategyReAct, Strength: 2, Capabilities: []Capability{CapabilityToolUse, CapabilityIterativeRefine}},
		{Name: reasoning.StrategyCouncilOfCritics, Strength: 3, Capabilities: []Capability{CapabilityMultiPerspective, CapabilityConflictResolving}},
		{Name: reasoning.StrategyTreeOfThoughts, Strength: 4, Capabilities: []Capability{CapabilityExploration}},
		{
			Name:         reasoning.StrategyMetaCognitive,
			Strength:     5,
			After:        []reasoning.StrategyName{reasoning.StrategyCouncilOfCritics},
			Capabilities: []Capability{CapabilitySelfMonitoring},
		},
	}
}

// Registry holds the active registrations
type Registry struct {
	mu   sync.RWMutex
	regs map[reasoning.StrategyName]Registration
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{regs: make(map[reasoning.StrategyName]Registration)}
}

// NewDefaultRegistry registers every catalog entry with the backend produced by factory
func NewDefaultRegistry(factory func(reasoning.StrategyName) Backend) (*Registry, error) {
	r := NewRegistry()
	for _, reg := range Catalog() {
		reg.Backend = factory(reg.Name)
		if err := r.Register(reg); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds or replaces a registration
func (r *Registry) Register(reg Registration) error {
	if reg.Name == "" {
		return ErrEmptyName
	}
	if reg.Backend == nil {
		return fmt.Errorf("%w: %s", ErrNilBackend, reg.Name)
	}
	reg.After = append([]reasoning.StrategyName(nil), reg.After...)
	reg.Capabilities = append([]Capability(nil), reg.Capabilities...)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.regs[reg.Name] = reg
	return nil
}

// Get returns the registration for name
func (r *Registry) Get(name reasoning.StrategyName) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.regs[name]
	return reg, ok
}

// Backend returns the backend for name or ErrUnknownStrategy
func (r *Registry) Backend(name reasoning.StrategyName) (Backend, error) {
	reg, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
	return reg.Backend, nil
}

// Strength returns the escalation strength of name, -1 if unknown
func (r *Registry) Strength(name reasoning.StrategyName) int {
	reg, ok := r.Get(name)
	if !ok {
		return -1
	}
	return reg.Strength
}

// List returns registrations ordered by strength, then name
func (r *Registry) List() []Registration {
	r.mu.RLock()
	out := make([]Registration, 0, len(r.regs))
	for _, reg := range r.regs {
		out = append(out, reg)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Strength != out[j].Strength {
			return out[i].Strength < out[j].Strength
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Names returns registered names in List order
func (r *Registry) Names() []reasoning.StrategyName {
	regs := r.List()
	names := make([]reasoning.StrategyName, len(regs))
	for i, reg := range regs {
		names[i] = reg.Name
	}
	return names
}

// Dependencies returns the After edges of every registration
func (r *Registry) Dependencies() map[reasoning.StrategyName][]reasoning.StrategyName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	deps := make(map[reasoning.StrategyName][]reasoning.StrategyName, len(r.regs))
	for name, reg := range r.regs {
		if len(reg.After) > 0 {
			deps[name] = append([]reasoning.StrategyName(nil), reg.After...)
		}
	}
	return deps
}
