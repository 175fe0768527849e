package performance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/reasoning"
)

const keyPrefix = "reasoning:perf:"

// ErrStoreClosed is returned when writing to a closed store
var ErrStoreClosed = errors.New("performance store closed")

// RedisStore snapshots tracker records to Redis. Writes are queued and
// flushed by a background worker so the request path never waits on Redis.
type RedisStore struct {
	client *circuitbreaker.RedisWrapper
	logger *zap.Logger
	ttl    time.Duration

	queue   chan StrategyPerformance
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	started bool
}

// NewRedisStore connects to addr and verifies the connection
func NewRedisStore(addr, password string, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	wrapped := circuitbreaker.NewRedisWrapper(client, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wrapped.Ping(ctx); err != nil {
		_ = wrapped.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisStoreWithClient(wrapped, logger), nil
}

// NewRedisStoreWithClient builds a store on an existing wrapped client
func NewRedisStoreWithClient(client *circuitbreaker.RedisWrapper, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client: client,
		logger: logger,
		ttl:    30 * 24 * time.Hour,
		queue:  make(chan StrategyPerformance, 256),
	}
}

// Start launches the flush worker
func (s *RedisStore) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true
	s.wg.Add(1)
	go s.worker()
}

// Enqueue schedules p for persistence. Drops the write when the queue is full.
func (s *RedisStore) Enqueue(p StrategyPerformance) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- p:
		metrics.PersistenceQueueDepth.Set(float64(len(s.queue)))
	default:
		metrics.PersistenceWrites.WithLabelValues("performance", "dropped").Inc()
		s.logger.Warn("Performance snapshot queue full, dropping write",
			zap.String("strategy", string(p.Name)))
	}
}

func (s *RedisStore) worker() {
	defer s.wg.Done()
	for p := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := s.Save(ctx, p)
		cancel()
		if err != nil {
			s.logger.Warn("Failed to persist strategy performance",
				zap.String("strategy", string(p.Name)), zap.Error(err))
		}
	}
}

// Save writes p synchronously
func (s *RedisStore) Save(ctx context.Context, p StrategyPerformance) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal performance: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+string(p.Name), data, s.ttl); err != nil {
		metrics.PersistenceWrites.WithLabelValues("performance", "error").Inc()
		return err
	}
	metrics.PersistenceWrites.WithLabelValues("performance", "ok").Inc()
	return nil
}

// LoadAll reads every persisted record. Undecodable entries are skipped.
func (s *RedisStore) LoadAll(ctx context.Context) ([]StrategyPerformance, error) {
	keys, err := s.client.ScanKeys(ctx, keyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to scan performance keys: %w", err)
	}
	out := make([]StrategyPerformance, 0, len(keys))
	for _, k := range keys {
		raw, err := s.client.Get(ctx, k)
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return out, err
		}
		var p StrategyPerformance
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			s.logger.Warn("Skipping corrupt performance record", zap.String("key", k), zap.Error(err))
			continue
		}
		if p.Name == "" {
			p.Name = reasoning.StrategyName(strings.TrimPrefix(k, keyPrefix))
		}
		out = append(out, p)
	}
	return out, nil
}

// Healthy reports whether the store can reach Redis
func (s *RedisStore) Healthy(ctx context.Context) error {
	if s.client.IsCircuitBreakerOpen() {
		return errors.New("redis circuit breaker open")
	}
	return s.client.Ping(ctx)
}

// Close drains pending writes and closes the client
func (s *RedisStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	started := s.started
	s.mu.Unlock()

	if started {
		s.wg.Wait()
	}
	return s.client.Close()
}
