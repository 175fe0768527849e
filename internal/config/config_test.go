package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/reasoning"
)

func writeFile(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, "reasoning.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadFromMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, reasoning.DefaultConfig(), cfg.Reasoning)
	assert.Equal(t, "hybrid", cfg.Selection.Mode)
	assert.Equal(t, 0.6, cfg.Escalation.LowConfidenceThreshold)
	assert.Equal(t, 0.3, cfg.Escalation.CriticalConfidenceThreshold)
	assert.Equal(t, 3, cfg.Escalation.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Escalation.MaxEscalationTime)
	assert.Equal(t, 1000, cfg.Sessions.MaxSessions)
	assert.Equal(t, 8090, cfg.HTTP.Port)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "postgres", cfg.Database.Conn.Driver)
	assert.Equal(t, 5432, cfg.Database.Conn.Port)
}

func TestLoadFromFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), `
reasoning:
  enable_tree_of_thoughts: false
  confidence_threshold: 0.8
selection:
  mode: performance
escalation:
  max_attempts: 2
  max_escalation_time: 5s
  strategies:
    react:
      escalation_threshold: 0.65
      max_attempts: 1
database:
  enabled: true
  driver: sqlite3
  path: /tmp/reasoning.db
backends:
  default_url: http://strategies:9000
  overrides:
    tree_of_thoughts:
      base_url: http://tot:9000
      timeout: 90s
`)
	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.False(t, cfg.Reasoning.EnableTreeOfThoughts)
	assert.True(t, cfg.Reasoning.EnableReAct)
	assert.Equal(t, 0.8, cfg.Reasoning.ConfidenceThreshold)
	assert.Equal(t, "performance", cfg.Selection.Mode)
	assert.Equal(t, 2, cfg.Escalation.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Escalation.MaxEscalationTime)
	assert.Equal(t, 0.65, cfg.Escalation.Strategies["react"].EscalationThreshold)
	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, "sqlite3", cfg.Database.Conn.Driver)
	assert.Equal(t, "/tmp/reasoning.db", cfg.Database.Conn.Path)

	tot, ok := cfg.Backends.For(reasoning.StrategyTreeOfThoughts)
	require.True(t, ok)
	assert.Equal(t, "http://tot:9000", tot.BaseURL)
	assert.Equal(t, 90*time.Second, tot.Timeout)

	basic, ok := cfg.Backends.For(reasoning.StrategyBasic)
	require.True(t, ok)
	assert.Equal(t, "http://strategies:9000", basic.BaseURL)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "reasoning:\n  confidence_threshold: 0.8\n")
	t.Setenv("REASONING_CONFIDENCE_THRESHOLD", "0.55")
	t.Setenv("ESCALATION_MAX_ATTEMPTS", "5")
	t.Setenv("ESCALATION_MAX_TIME", "12s")
	t.Setenv("REDIS_ADDR", "cache:6380")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, 0.55, cfg.Reasoning.ConfidenceThreshold)
	assert.Equal(t, 5, cfg.Escalation.MaxAttempts)
	assert.Equal(t, 12*time.Second, cfg.Escalation.MaxEscalationTime)
	assert.Equal(t, "cache:6380", cfg.Redis.Addr)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFrom(writeFile(t, dir, "reasoning:\n  confidence_threshold: 1.5\n"))
	assert.Error(t, err)

	_, err = LoadFrom(writeFile(t, dir, "selection:\n  mode: random\n"))
	assert.Error(t, err)

	_, err = LoadFrom(writeFile(t, dir, "escalation:\n  strategies:\n    react:\n      escalation_threshold: 2\n"))
	assert.Error(t, err)
}

func TestPathHonoursEnv(t *testing.T) {
	t.Setenv("REASONING_CONFIG_PATH", "")
	assert.Equal(t, DefaultPath, Path())
	t.Setenv("REASONING_CONFIG_PATH", "/etc/r.yaml")
	assert.Equal(t, "/etc/r.yaml", Path())
}

func TestBackendsWithoutURL(t *testing.T) {
	_, ok := BackendsConfig{}.For(reasoning.StrategyReAct)
	assert.False(t, ok)
}
