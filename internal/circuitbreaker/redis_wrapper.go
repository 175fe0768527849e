package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisService = "performance-store"

// RedisWrapper wraps the Redis client used by the performance snapshot store
type RedisWrapper struct {
	client *redis.Client
	cb     *CircuitBreaker
	logger *zap.Logger
}

// NewRedisWrapper creates a Redis wrapper with circuit breaker
func NewRedisWrapper(client *redis.Client, logger *zap.Logger) *RedisWrapper {
	cb := NewCircuitBreaker("redis", GetRedisConfig().ToConfig(), logger)
	GlobalMetricsCollector.RegisterCircuitBreaker("redis", redisService, cb)
	return &RedisWrapper{client: client, cb: cb, logger: logger}
}

func (rw *RedisWrapper) run(ctx context.Context, fn func() error) error {
	err := rw.cb.Execute(ctx, fn)
	GlobalMetricsCollector.RecordRequest("redis", redisService, rw.cb.State(), err == nil)
	return err
}

// Ping checks connectivity
func (rw *RedisWrapper) Ping(ctx context.Context) error {
	return rw.run(ctx, func() error { return rw.client.Ping(ctx).Err() })
}

// Get returns redis.Nil when the key is missing; a miss does not trip the breaker.
func (rw *RedisWrapper) Get(ctx context.Context, key string) (string, error) {
	var val string
	var missErr error
	err := rw.run(ctx, func() error {
		v, err := rw.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			missErr = err
			return nil
		}
		val = v
		return err
	})
	if err != nil {
		return "", err
	}
	return val, missErr
}

// Set stores value under key
func (rw *RedisWrapper) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return rw.run(ctx, func() error { return rw.client.Set(ctx, key, value, expiration).Err() })
}

// ScanKeys collects every key matching pattern using SCAN
func (rw *RedisWrapper) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	err := rw.run(ctx, func() error {
		iter := rw.client.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		return iter.Err()
	})
	return keys, err
}

// Close closes the underlying client
func (rw *RedisWrapper) Close() error {
	return rw.client.Close()
}

// IsCircuitBreakerOpen returns true if the circuit breaker is open
func (rw *RedisWrapper) IsCircuitBreakerOpen() bool {
	return rw.cb.IsOpen()
}
