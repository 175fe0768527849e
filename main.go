package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	temporalclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/config"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/health"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/httpapi"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/server"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/temporal"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/workflows"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// No logger yet; fall back to a production logger for the fatal line
		zap.Must(zap.NewProduction()).Fatal("Failed to load configuration", zap.Error(err))
	}

	logger, err := newLogger(cfg.Logging.Level)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopMetrics := make(chan struct{})
	circuitbreaker.StartMetricsCollection(stopMetrics)

	svc, err := server.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create reasoning service", zap.Error(err))
	}

	if err := svc.WatchConfig(ctx, config.Path()); err != nil {
		logger.Warn("Config hot-reload disabled", zap.String("path", config.Path()), zap.Error(err))
	}
	if err := svc.Health().Start(ctx); err != nil {
		logger.Warn("Health manager start failed", zap.Error(err))
	}

	srv := httpapi.StartServer(cfg.HTTP.Port, logger,
		health.NewHTTPHandler(svc.Health(), logger),
		svc.APIHandler(),
	)

	// Temporal is optional; the HTTP API serves requests without it
	type durable struct {
		client temporalclient.Client
		worker worker.Worker
	}
	started := make(chan durable, 1)
	var wg sync.WaitGroup
	if cfg.Temporal.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tc, err := temporal.Dial(ctx, temporal.Options{
				HostPort:  cfg.Temporal.HostPort,
				Namespace: cfg.Temporal.Namespace,
			}, logger)
			if err != nil {
				logger.Error("Temporal unavailable, durable mode disabled", zap.Error(err))
				return
			}
			acts := svc.Activities()
			w, err := temporal.StartWorker(tc, cfg.Temporal.TaskQueue, 0, func(r worker.Registry) {
				workflows.Register(r, acts)
			}, logger)
			if err != nil {
				logger.Error("Failed to start Temporal worker", zap.Error(err))
				tc.Close()
				return
			}
			started <- durable{client: tc, worker: w}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down reasoning service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown", zap.Error(err))
	}
	cancel()
	// Dial gives up once ctx is cancelled
	wg.Wait()
	select {
	case d := <-started:
		d.worker.Stop()
		d.client.Close()
	default:
	}
	close(stopMetrics)
	svc.Shutdown()
}

func newLogger(level string) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, err
		}
		zc.Level = lvl
	}
	return zc.Build()
}
