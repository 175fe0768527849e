package health

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Pinger is anything that can verify its own connectivity
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

// Ping calls f
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type breakerState interface {
	IsCircuitBreakerOpen() bool
}

// PingChecker reports a dependency healthy when Ping succeeds quickly
type PingChecker struct {
	name     string
	critical bool
	pinger   Pinger
	timeout  time.Duration
	// slow marks a successful ping as degraded
	slow time.Duration
}

// NewPingChecker creates a checker around p. When p also reports breaker
// state, an open breaker short-circuits the ping.
func NewPingChecker(name string, critical bool, p Pinger) *PingChecker {
	return &PingChecker{name: name, critical: critical, pinger: p, timeout: 5 * time.Second, slow: 100 * time.Millisecond}
}

// NewRedisChecker checks the performance snapshot store. Redis only backs
// snapshots, so it is not critical.
func NewRedisChecker(healthy func(context.Context) error) *PingChecker {
	return NewPingChecker("redis", false, PingFunc(healthy))
}

// NewDatabaseChecker checks the persistence database
func NewDatabaseChecker(p Pinger) *PingChecker {
	return NewPingChecker("database", false, p)
}

func (c *PingChecker) Name() string           { return c.name }
func (c *PingChecker) IsCritical() bool       { return c.critical }
func (c *PingChecker) Timeout() time.Duration { return c.timeout }

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Component: c.name, Critical: c.critical, Timestamp: start}

	if b, ok := c.pinger.(breakerState); ok && b.IsCircuitBreakerOpen() {
		result.Status = StatusUnhealthy
		result.Error = "circuit breaker open"
		result.Message = fmt.Sprintf("%s circuit breaker is open", c.name)
		return result
	}

	err := c.pinger.Ping(ctx)
	result.Duration = time.Since(start)
	result.Details = map[string]interface{}{"latency_ms": result.Duration.Milliseconds()}

	switch {
	case err != nil:
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Message = fmt.Sprintf("%s ping failed", c.name)
	case result.Duration > c.slow:
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("%s responding but with high latency", c.name)
	default:
		result.Status = StatusHealthy
		result.Message = fmt.Sprintf("%s healthy", c.name)
	}
	return result
}

// BreakerSource lists strategies and whether their breaker is open
type BreakerSource interface {
	OpenBreakers() []string
	Total() int
}

// StrategyChecker reports degraded while some strategy breakers are open and
// unhealthy when all of them are.
type StrategyChecker struct {
	source BreakerSource
}

func NewStrategyChecker(source BreakerSource) *StrategyChecker {
	return &StrategyChecker{source: source}
}

func (s *StrategyChecker) Name() string           { return "strategies" }
func (s *StrategyChecker) IsCritical() bool       { return true }
func (s *StrategyChecker) Timeout() time.Duration { return time.Second }

func (s *StrategyChecker) Check(ctx context.Context) CheckResult {
	open := s.source.OpenBreakers()
	total := s.source.Total()
	result := CheckResult{
		Details: map[string]interface{}{"open_breakers": open, "total": total},
	}
	switch {
	case total == 0:
		result.Status = StatusUnhealthy
		result.Message = "no strategies registered"
	case len(open) == 0:
		result.Status = StatusHealthy
		result.Message = fmt.Sprintf("%d strategies available", total)
	case len(open) >= total:
		result.Status = StatusUnhealthy
		result.Message = "all strategy breakers open"
	default:
		result.Status = StatusDegraded
		result.Message = "breaker open for " + strings.Join(open, ", ")
	}
	return result
}

// CustomHealthChecker wraps a function as a checker
type CustomHealthChecker struct {
	name     string
	critical bool
	timeout  time.Duration
	checkFn  func(ctx context.Context) CheckResult
}

// NewCustomHealthChecker creates a custom health checker
func NewCustomHealthChecker(name string, critical bool, timeout time.Duration, checkFn func(ctx context.Context) CheckResult) *CustomHealthChecker {
	return &CustomHealthChecker{name: name, critical: critical, timeout: timeout, checkFn: checkFn}
}

func (c *CustomHealthChecker) Name() string           { return c.name }
func (c *CustomHealthChecker) IsCritical() bool       { return c.critical }
func (c *CustomHealthChecker) Timeout() time.Duration { return c.timeout }

func (c *CustomHealthChecker) Check(ctx context.Context) CheckResult {
	return c.checkFn(ctx)
}
