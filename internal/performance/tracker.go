// Package performance keeps per-strategy running statistics used to route
// future requests.
package performance

import (
	"sort"
	"sync"
	"time"

	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/reasoning"
)

// DefaultSuccessThreshold is the confidence above which an execution counts as a success
const DefaultSuccessThreshold = 0.7

// maxContexts bounds the per-strategy context set
const maxContexts = 100

// StrategyPerformance is the running record for one strategy
type StrategyPerformance struct {
	Name              reasoning.StrategyName `json:"name"`
	SuccessRate       float64                `json:"success_rate"`
	AverageConfidence float64                `json:"average_confidence"`
	AverageTimeMs     float64                `json:"average_time_ms"`
	UseCount          int64                  `json:"use_count"`
	Contexts          []string               `json:"contexts"`
	LastUpdated       time.Time              `json:"last_updated"`
}

// Score is the performance-mode ranking value
func (p StrategyPerformance) Score() float64 {
	return 0.6*p.SuccessRate + 0.4*p.AverageConfidence
}

// Observation is one completed strategy execution
type Observation struct {
	Strategy    reasoning.StrategyName
	Confidence  float64
	LatencyMs   float64
	ContextType string
	// SuccessThreshold overrides the tracker default when > 0
	SuccessThreshold float64
}

// Sink receives a copy of every updated record
type Sink interface {
	Enqueue(p StrategyPerformance)
}

type entry struct {
	mu       sync.Mutex
	perf     StrategyPerformance
	contexts map[string]struct{}
}

// Tracker is the process-wide performance store. Updates to one strategy are
// serialized by a per-key lock; different strategies update concurrently.
type Tracker struct {
	mu        sync.RWMutex
	entries   map[reasoning.StrategyName]*entry
	threshold float64
	sink      Sink
	now       func() time.Time
}

// Option configures a Tracker
type Option func(*Tracker)

// WithSink forwards updates to s
func WithSink(s Sink) Option {
	return func(t *Tracker) { t.sink = s }
}

// WithSuccessThreshold sets the default success cut-off
func WithSuccessThreshold(v float64) Option {
	return func(t *Tracker) { t.threshold = reasoning.Clamp(v, 0, 1) }
}

// NewTracker creates an empty tracker
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		entries:   make(map[reasoning.StrategyName]*entry),
		threshold: DefaultSuccessThreshold,
		now:       time.Now,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Tracker) entryFor(name reasoning.StrategyName) *entry {
	t.mu.RLock()
	e, ok := t.entries[name]
	t.mu.RUnlock()
	if ok {
		return e
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok = t.entries[name]; ok {
		return e
	}
	e = &entry{perf: StrategyPerformance{Name: name}, contexts: make(map[string]struct{})}
	t.entries[name] = e
	return e
}

// Update records one execution using the default success threshold
func (t *Tracker) Update(name reasoning.StrategyName, confidence, latencyMs float64, contextType string) StrategyPerformance {
	return t.Observe(Observation{Strategy: name, Confidence: confidence, LatencyMs: latencyMs, ContextType: contextType})
}

// Observe applies the incremental mean update for o and returns the new record
func (t *Tracker) Observe(o Observation) StrategyPerformance {
	threshold := t.threshold
	if o.SuccessThreshold > 0 {
		threshold = o.SuccessThreshold
	}
	conf := reasoning.Clamp(o.Confidence, 0, 1)
	latency := o.LatencyMs
	if latency < 0 {
		latency = 0
	}
	success := 0.0
	if conf > threshold {
		success = 1
	}

	e := t.entryFor(o.Strategy)
	e.mu.Lock()
	p := &e.perf
	p.UseCount++
	n := float64(p.UseCount)
	p.AverageConfidence += (conf - p.AverageConfidence) / n
	p.AverageTimeMs += (latency - p.AverageTimeMs) / n
	p.SuccessRate += (success - p.SuccessRate) / n
	p.AverageConfidence = reasoning.Clamp(p.AverageConfidence, 0, 1)
	p.SuccessRate = reasoning.Clamp(p.SuccessRate, 0, 1)
	if o.ContextType != "" {
		if _, seen := e.contexts[o.ContextType]; !seen && len(e.contexts) < maxContexts {
			e.contexts[o.ContextType] = struct{}{}
			p.Contexts = append(p.Contexts, o.ContextType)
		}
	}
	p.LastUpdated = t.now()
	out := copyPerf(*p)
	e.mu.Unlock()

	if t.sink != nil {
		t.sink.Enqueue(out)
	}
	return out
}

// Get returns the record for name
func (t *Tracker) Get(name reasoning.StrategyName) (StrategyPerformance, bool) {
	t.mu.RLock()
	e, ok := t.entries[name]
	t.mu.RUnlock()
	if !ok {
		return StrategyPerformance{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyPerf(e.perf), true
}

// SuccessRate returns the tracked success rate, or ok=false for unseen strategies
func (t *Tracker) SuccessRate(name reasoning.StrategyName) (float64, bool) {
	p, ok := t.Get(name)
	if !ok || p.UseCount == 0 {
		return 0, false
	}
	return p.SuccessRate, true
}

// Snapshot returns every record ordered by name
func (t *Tracker) Snapshot() []StrategyPerformance {
	t.mu.RLock()
	names := make([]reasoning.StrategyName, 0, len(t.entries))
	for n := range t.entries {
		names = append(names, n)
	}
	t.mu.RUnlock()
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	out := make([]StrategyPerformance, 0, len(names))
	for _, n := range names {
		if p, ok := t.Get(n); ok {
			out = append(out, p)
		}
	}
	return out
}

// Restore replaces records with previously persisted values
func (t *Tracker) Restore(records []StrategyPerformance) {
	for _, r := range records {
		if r.Name == "" {
			continue
		}
		e := t.entryFor(r.Name)
		e.mu.Lock()
		e.perf = copyPerf(r)
		e.perf.SuccessRate = reasoning.Clamp(r.SuccessRate, 0, 1)
		e.perf.AverageConfidence = reasoning.Clamp(r.AverageConfidence, 0, 1)
		e.contexts = make(map[string]struct{}, len(r.Contexts))
		e.perf.Contexts = e.perf.Contexts[:0]
		for _, c := range r.Contexts {
			if _, dup := e.contexts[c]; dup || len(e.contexts) >= maxContexts {
				continue
			}
			e.contexts[c] = struct{}{}
			e.perf.Contexts = append(e.perf.Contexts, c)
		}
		e.mu.Unlock()
	}
}

// Reset drops every record. Intended for tests.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.entries = make(map[reasoning.StrategyName]*entry)
	t.mu.Unlock()
}

func copyPerf(p StrategyPerformance) StrategyPerformance {
	p.Contexts = append([]string(nil), p.Contexts...)
	return p
}
