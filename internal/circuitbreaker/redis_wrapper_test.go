package circuitbreaker

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRedisWrapperRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rw := NewRedisWrapper(redis.NewClient(&redis.Options{Addr: mr.Addr()}), zaptest.NewLogger(t))
	defer rw.Close()
	ctx := context.Background()

	require.NoError(t, rw.Ping(ctx))
	require.NoError(t, rw.Set(ctx, "perf:react", "1", 0))
	require.NoError(t, rw.Set(ctx, "perf:basic", "2", 0))

	v, err := rw.Get(ctx, "perf:react")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	_, err = rw.Get(ctx, "perf:missing")
	assert.True(t, errors.Is(err, redis.Nil))
	assert.False(t, rw.IsCircuitBreakerOpen(), "a cache miss must not count as failure")

	keys, err := rw.ScanKeys(ctx, "perf:*")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"perf:basic", "perf:react"}, keys)
}

func TestRedisWrapperOpensWhenServerGone(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	rw := NewRedisWrapper(redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}), zaptest.NewLogger(t))
	defer rw.Close()
	mr.Close()

	ctx := context.Background()
	for i := 0; i < int(GetRedisConfig().FailureThreshold); i++ {
		assert.Error(t, rw.Ping(ctx))
	}
	assert.True(t, rw.IsCircuitBreakerOpen())
	assert.ErrorIs(t, rw.Ping(ctx), ErrCircuitBreakerOpen)
}
