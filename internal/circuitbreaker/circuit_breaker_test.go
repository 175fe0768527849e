package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestCircuitBreakerStates(t *testing.T) {
	config := DefaultConfig()
	config.FailureThreshold = 3
	config.SuccessThreshold = 2
	config.MaxRequests = 5
	config.Timeout = 100 * time.Millisecond
	config.Interval = 200 * time.Millisecond

	cb := NewCircuitBreaker("backend:react", config, zaptest.NewLogger(t))
	ctx := context.Background()

	if cb.State() != StateClosed {
		t.Fatalf("Expected initial state to be closed, got %s", cb.State())
	}

	for i := 0; i < 3; i++ {
		if err := cb.Execute(ctx, func() error { return errors.New("backend down") }); err == nil {
			t.Error("Expected error, got nil")
		}
	}
	if !cb.IsOpen() {
		t.Fatalf("Expected state to be open, got %s", cb.State())
	}

	if err := cb.Execute(ctx, func() error { return nil }); err != ErrCircuitBreakerOpen {
		t.Errorf("Expected circuit breaker open error, got %v", err)
	}

	time.Sleep(150 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatalf("Expected state to be half-open, got %s", cb.State())
	}

	for i := 0; i < 2; i++ {
		if err := cb.Execute(ctx, func() error { return nil }); err != nil {
			t.Errorf("Expected success, got error: %v", err)
		}
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected state to be closed, got %s", cb.State())
	}
}

func TestCircuitBreakerHalfOpenLimitsRequests(t *testing.T) {
	config := DefaultConfig()
	config.MaxRequests = 2
	config.SuccessThreshold = 5

	cb := NewCircuitBreaker("test", config, zaptest.NewLogger(t))
	ctx := context.Background()

	cb.mutex.Lock()
	cb.state = StateHalfOpen
	cb.generation++
	cb.counts = Counts{}
	cb.mutex.Unlock()

	for i := 0; i < 2; i++ {
		if err := cb.Execute(ctx, func() error { return nil }); err != nil {
			t.Errorf("Expected success, got error: %v", err)
		}
	}
	if err := cb.Execute(ctx, func() error { return nil }); err != ErrTooManyRequests {
		t.Errorf("Expected too many requests error, got %v", err)
	}
}

func TestCircuitBreakerRejectsCancelledContext(t *testing.T) {
	cb := NewCircuitBreaker("test", DefaultConfig(), zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := cb.Execute(ctx, func() error { called = true; return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if called {
		t.Error("fn must not run for a cancelled context")
	}
	if cb.Counts().Requests != 0 {
		t.Errorf("cancelled call must not be counted, got %d", cb.Counts().Requests)
	}
}

func TestCircuitBreakerCountsAndCallback(t *testing.T) {
	config := DefaultConfig()
	config.FailureThreshold = 2

	var from, to State
	calls := 0
	config.OnStateChange = func(name string, f State, tt State) {
		calls++
		from, to = f, tt
	}
	cb := NewCircuitBreaker("test", config, zaptest.NewLogger(t))
	ctx := context.Background()

	_ = cb.Execute(ctx, func() error { return nil })
	_ = cb.Execute(ctx, func() error { return errors.New("x") })
	counts := cb.Counts()
	if counts.Requests != 2 || counts.TotalSuccesses != 1 || counts.TotalFailures != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}

	_ = cb.Execute(ctx, func() error { return errors.New("x") })
	if calls != 1 || from != StateClosed || to != StateOpen {
		t.Errorf("Expected one closed->open transition, got %d calls %s->%s", calls, from, to)
	}
}

func TestMetricsCollectorSnapshot(t *testing.T) {
	mc := NewMetricsCollector()
	cb := NewCircuitBreaker("react", DefaultConfig(), zaptest.NewLogger(t))
	mc.RegisterCircuitBreaker("react", "strategy-backend", cb)

	snap := mc.Snapshot()
	if st, ok := snap["strategy-backend:react"]; !ok || st != StateClosed {
		t.Fatalf("unexpected snapshot: %v", snap)
	}
	mc.UpdateMetrics()
}
