package orchestrator

import (
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/analysis"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/db"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/escalation"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/execution"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/knowledge"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/performance"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/reasoning"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/reflection"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/selection"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/strategies"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/synthesis"
)

// Settings configures NewFromRegistry. Zero values select defaults.
type Settings struct {
	Defaults      reasoning.Config
	Escalation    escalation.Config
	SelectionMode selection.Mode
	MaxSessions   int
	Knowledge     knowledge.Searcher
	Recorder      db.Recorder
	// Sink receives every tracker update, typically a performance.RedisStore
	Sink performance.Sink
}

// NewFromRegistry builds the standard component graph around registry
func NewFromRegistry(registry *strategies.Registry, s Settings, logger *zap.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if s.Defaults == (reasoning.Config{}) {
		s.Defaults = reasoning.DefaultConfig()
	}
	if s.SelectionMode == "" {
		s.SelectionMode = selection.ModeHybrid
	}
	if s.MaxSessions <= 0 {
		s.MaxSessions = execution.DefaultMaxSessions
	}

	var trackerOpts []performance.Option
	if s.Sink != nil {
		trackerOpts = append(trackerOpts, performance.WithSink(s.Sink))
	}
	tracker := performance.NewTracker(trackerOpts...)
	engine := reflection.NewEngine(tracker, logger.Named("reflection"))

	executor := execution.NewExecutor(registry, logger.Named("executor"),
		execution.WithArena(execution.NewArena(s.MaxSessions)),
		execution.WithObserver(func(o execution.Outcome) {
			conf := 0.0
			if o.Err == nil && o.Result != nil {
				conf = o.Result.Confidence
			}
			engine.Record(performance.Observation{
				Strategy:         o.Strategy,
				Confidence:       conf,
				LatencyMs:        float64(o.Duration.Milliseconds()),
				ContextType:      o.ContextType,
				SuccessThreshold: o.SuccessThreshold,
			})
		}),
	)

	selector := selection.NewSelector(tracker,
		selection.WithEffectiveness(engine),
		selection.WithStrengths(registry),
		selection.WithMode(s.SelectionMode),
		selection.WithLogger(logger.Named("selector")),
	)

	return New(Dependencies{
		Analyzer:    analysis.NewAnalyzer(),
		Tracker:     tracker,
		Executor:    executor,
		Selector:    selector,
		Synthesizer: synthesis.NewSynthesizer(),
		Escalator:   escalation.NewEscalator(s.Escalation, executor, selector, logger.Named("escalation")),
		Reflection:  engine,
		Knowledge:   s.Knowledge,
		Recorder:    s.Recorder,
		Logger:      logger,
		Defaults:    s.Defaults,
	})
}
