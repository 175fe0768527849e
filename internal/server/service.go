// Package server assembles the reasoning service from configuration.
package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/activities"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/config"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/db"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/health"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/httpapi"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/knowledge"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/orchestrator"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/performance"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/selection"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/tracing"
)

const (
	restoreTimeout  = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

// ReasoningService owns the orchestrator and its optional backing stores
type ReasoningService struct {
	cfg    *config.ReasoningConfig
	logger *zap.Logger

	orch    *orchestrator.Orchestrator
	store   *performance.RedisStore
	db      *db.Client
	health  *health.Manager
	watcher *config.Watcher
	tracing tracing.ShutdownFunc
}

// New builds the service. Redis and the database are optional: when either
// is enabled but unreachable the service starts without it.
func New(ctx context.Context, cfg *config.ReasoningConfig, logger *zap.Logger) (*ReasoningService, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ReasoningService{cfg: cfg, logger: logger, health: health.NewManager(logger.Named("health"))}

	shutdownTracing, err := tracing.Initialize(cfg.Tracing, logger)
	if err != nil {
		logger.Warn("Tracing disabled", zap.Error(err))
	} else {
		s.tracing = shutdownTracing
	}

	settings := orchestrator.Settings{
		Defaults:      cfg.Reasoning,
		Escalation:    cfg.Escalation,
		SelectionMode: selection.Mode(cfg.Selection.Mode),
		MaxSessions:   cfg.Sessions.MaxSessions,
	}

	if cfg.Redis.Enabled {
		store, err := performance.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, logger.Named("perf-store"))
		if err != nil {
			logger.Warn("Performance store unavailable, tracking in memory only", zap.Error(err))
		} else {
			store.Start()
			s.store = store
			settings.Sink = store
			if err := s.health.RegisterChecker(health.NewRedisChecker(store.Healthy)); err != nil {
				logger.Warn("Failed to register redis health check", zap.Error(err))
			}
		}
	}

	if cfg.Database.Enabled {
		client, err := db.NewClient(cfg.Database.Conn, logger.Named("db"))
		switch {
		case err != nil:
			logger.Warn("Database unavailable, persistence disabled", zap.Error(err))
		default:
			if err := client.Migrate(ctx); err != nil {
				logger.Warn("Database migration failed, persistence disabled", zap.Error(err))
				_ = client.Close()
				break
			}
			s.db = client
			settings.Recorder = client
			if err := s.health.RegisterChecker(health.NewDatabaseChecker(client)); err != nil {
				logger.Warn("Failed to register database health check", zap.Error(err))
			}
		}
	}

	if cfg.Knowledge.Enabled {
		settings.Knowledge = knowledge.NewClient(cfg.Knowledge, logger.Named("knowledge"))
	}

	registry, err := cfg.Backends.Registry(logger.Named("backends"))
	if err != nil {
		s.Shutdown()
		return nil, fmt.Errorf("build strategy registry: %w", err)
	}
	s.orch, err = orchestrator.NewFromRegistry(registry, settings, logger.Named("orchestrator"))
	if err != nil {
		s.Shutdown()
		return nil, err
	}
	if err := s.health.RegisterChecker(health.NewStrategyChecker(s.orch.Executor())); err != nil {
		logger.Warn("Failed to register strategy health check", zap.Error(err))
	}

	if s.store != nil {
		s.restore(ctx)
	}
	return s, nil
}

func (s *ReasoningService) restore(ctx context.Context) {
	rctx, cancel := context.WithTimeout(ctx, restoreTimeout)
	defer cancel()
	records, err := s.store.LoadAll(rctx)
	if err != nil {
		s.logger.Warn("Failed to restore strategy performance", zap.Error(err))
		return
	}
	s.orch.Tracker().Restore(records)
	s.logger.Info("Restored strategy performance", zap.Int("strategies", len(records)))
}

// WatchConfig hot-reloads the reasoning and escalation sections of path
func (s *ReasoningService) WatchConfig(ctx context.Context, path string) error {
	w, err := config.NewWatcher(path, config.ReloadableFrom(s.cfg), s.logger.Named("config"))
	if err != nil {
		return err
	}
	w.OnChange(s.ApplyReload)
	if err := w.Start(ctx); err != nil {
		return err
	}
	s.watcher = w
	return nil
}

// ApplyReload pushes hot-reloaded values into the running pipeline
func (s *ReasoningService) ApplyReload(r config.Reloadable) error {
	s.orch.UpdateDefaults(r.Reasoning)
	s.orch.Escalator().UpdateConfig(r.Escalation)
	s.orch.Audit(orchestrator.AuditConfigReload, "", db.JSONB{
		"confidence_threshold":     r.Reasoning.ConfidenceThreshold,
		"low_confidence_threshold": r.Escalation.LowConfidenceThreshold,
		"max_attempts":             r.Escalation.MaxAttempts,
	})
	return nil
}

// Orchestrator returns the pipeline
func (s *ReasoningService) Orchestrator() *orchestrator.Orchestrator { return s.orch }

// Health returns the health manager with every configured checker registered
func (s *ReasoningService) Health() *health.Manager { return s.health }

// DB returns the persistence client, or nil when persistence is disabled
func (s *ReasoningService) DB() *db.Client { return s.db }

// Activities returns the Temporal activity set backed by this service
func (s *ReasoningService) Activities() *activities.ReasoningActivities {
	return activities.NewReasoningActivities(s.orch, s.logger.Named("activities"))
}

// APIHandler returns the HTTP handler for the reasoning routes
func (s *ReasoningService) APIHandler() *httpapi.ReasoningHandler {
	var history httpapi.HistorySource
	if s.db != nil {
		history = s.db
	}
	return httpapi.NewReasoningHandler(s.orch, history, s.logger.Named("http"), s.cfg.HTTP.AuthToken)
}

// Shutdown gracefully stops all background services
func (s *ReasoningService) Shutdown() {
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			s.logger.Debug("Config watcher stop", zap.Error(err))
		}
	}
	if err := s.health.Stop(); err != nil {
		s.logger.Debug("Health manager stop", zap.Error(err))
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("Failed to close performance store", zap.Error(err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database client", zap.Error(err))
		}
	}
	if s.tracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.tracing(ctx); err != nil {
			s.logger.Warn("Tracing shutdown", zap.Error(err))
		}
	}
}
