package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/config"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/db"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/orchestrator"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/reasoning"
)

func defaultConfig(t *testing.T) *config.ReasoningConfig {
	t.Helper()
	cfg, err := config.LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	return cfg
}

func TestNewWithoutBackingStores(t *testing.T) {
	svc, err := New(t.Context(), defaultConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer svc.Shutdown()

	assert.Nil(t, svc.DB())
	assert.Equal(t, []string{"strategies"}, svc.Health().Names())

	resp := svc.Orchestrator().ProcessAdvancedReasoning(t.Context(), "Explain how DNS resolution works", nil, nil)
	require.NotNil(t, resp)
	assert.NotEmpty(t, resp.Response)
	assert.Greater(t, resp.Confidence, 0.0)

	caps := svc.Orchestrator().GetCapabilitiesStatus()
	assert.False(t, caps["persistence"])
}

func TestNewWithRedisAndSQLite(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	require.NoError(t, mr.Set("reasoning:perf:react", `{"use_count":7,"average_confidence":0.8,"success_rate":0.9}`))

	cfg := defaultConfig(t)
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()
	cfg.Database.Enabled = true
	cfg.Database.Conn = db.Config{Driver: db.DriverSQLite, Path: filepath.Join(t.TempDir(), "reasoning.db")}

	svc, err := New(t.Context(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer svc.Shutdown()

	require.NotNil(t, svc.DB())
	assert.ElementsMatch(t, []string{"redis", "database", "strategies"}, svc.Health().Names())

	p, ok := svc.Orchestrator().Tracker().Get(reasoning.StrategyReAct)
	require.True(t, ok)
	assert.Equal(t, int64(7), p.UseCount)

	svc.Orchestrator().ProcessAdvancedReasoning(t.Context(), "Compare two caching designs for our api", nil, nil)
	require.Eventually(t, func() bool {
		rows, err := svc.DB().RecentSessions(context.Background(), 10)
		return err == nil && len(rows) == 1
	}, 3*time.Second, 20*time.Millisecond)

	assert.True(t, svc.Orchestrator().GetCapabilitiesStatus()["persistence"])
}

func TestUnreachableRedisIsNotFatal(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	cfg := defaultConfig(t)
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = addr

	svc, err := New(t.Context(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer svc.Shutdown()
	assert.NotContains(t, svc.Health().Names(), "redis")
}

func TestApplyReloadUpdatesDefaults(t *testing.T) {
	svc, err := New(t.Context(), defaultConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer svc.Shutdown()

	next := config.Reloadable{Reasoning: reasoning.DefaultConfig()}
	next.Reasoning.ConfidenceThreshold = 0.55
	next.Reasoning.EnableCouncilOfCritics = false
	require.NoError(t, svc.ApplyReload(next))

	got := svc.Orchestrator().Defaults()
	assert.Equal(t, 0.55, got.ConfidenceThreshold)
	assert.False(t, got.EnableCouncilOfCritics)
}

func TestApplyReloadWritesAuditEntry(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Database.Enabled = true
	cfg.Database.Conn = db.Config{Driver: db.DriverSQLite, Path: filepath.Join(t.TempDir(), "reasoning.db")}

	svc, err := New(t.Context(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer svc.Shutdown()
	require.NotNil(t, svc.DB())

	next := config.ReloadableFrom(cfg)
	next.Escalation.MaxAttempts = 2
	require.NoError(t, svc.ApplyReload(next))

	var entries []db.AuditLog
	require.Eventually(t, func() bool {
		entries, err = svc.DB().RecentAuditLogs(context.Background(), 10)
		return err == nil && len(entries) == 1
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, orchestrator.AuditConfigReload, entries[0].Action)
	assert.Equal(t, float64(2), entries[0].Details["max_attempts"])
}

func TestAPIHandlerServesCapabilities(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.HTTP.AuthToken = "secret"
	svc, err := New(t.Context(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer svc.Shutdown()

	mux := http.NewServeMux()
	svc.APIHandler().RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/reasoning/capabilities", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/reasoning/capabilities", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
