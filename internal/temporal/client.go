package temporal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"
)

const maxDialBackoff = 15 * time.Second

// Options configure Dial
type Options struct {
	HostPort  string
	Namespace string
	// MaxAttempts bounds dial retries; zero retries until ctx is done
	MaxAttempts int
}

// Dial waits for the frontend to accept TCP connections, then dials the SDK
// client with linear backoff.
func Dial(ctx context.Context, opts Options, logger *zap.Logger) (client.Client, error) {
	if opts.HostPort == "" {
		return nil, errors.New("temporal host_port is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	for attempt := 1; ; attempt++ {
		err := probe(ctx, opts.HostPort)
		if err == nil {
			var c client.Client
			c, err = client.DialContext(ctx, client.Options{
				HostPort:  opts.HostPort,
				Namespace: opts.Namespace,
				Logger:    NewLogger(logger),
			})
			if err == nil {
				logger.Info("Connected to Temporal", zap.String("host", opts.HostPort), zap.Int("attempt", attempt))
				return c, nil
			}
		}
		if opts.MaxAttempts > 0 && attempt >= opts.MaxAttempts {
			return nil, fmt.Errorf("temporal dial %s: %w", opts.HostPort, err)
		}

		delay := min(time.Duration(attempt)*time.Second, maxDialBackoff)
		logger.Warn("Temporal not ready, retrying",
			zap.String("host", opts.HostPort),
			zap.Int("attempt", attempt),
			zap.Duration("sleep", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

func probe(ctx context.Context, hostPort string) error {
	var d net.Dialer
	dctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	conn, err := d.DialContext(dctx, "tcp", hostPort)
	if err != nil {
		return err
	}
	return conn.Close()
}

// RegisterFunc adds workflows and activities to a worker
type RegisterFunc func(worker.Registry)

// StartWorker creates a worker on queue, registers through register and runs
// it in the background. Stop the returned worker on shutdown.
func StartWorker(c client.Client, queue string, concurrency int, register RegisterFunc, logger *zap.Logger) (worker.Worker, error) {
	if concurrency <= 0 {
		concurrency = 10
	}
	w := worker.New(c, queue, worker.Options{
		MaxConcurrentActivityExecutionSize:     concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: concurrency,
	})
	register(w)
	if err := w.Start(); err != nil {
		return nil, fmt.Errorf("start worker on %s: %w", queue, err)
	}
	logger.Info("Temporal worker started", zap.String("queue", queue), zap.Int("concurrency", concurrency))
	return w, nil
}
