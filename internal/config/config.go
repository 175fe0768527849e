package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/db"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/escalation"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/knowledge"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/reasoning"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/strategies"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/tracing"
)

// DefaultPath is used when REASONING_CONFIG_PATH is unset
const DefaultPath = "/app/config/reasoning.yaml"

type SelectionConfig struct {
	// Mode is performance, context or hybrid
	Mode string `mapstructure:"mode" yaml:"mode"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
}

type DatabaseConfig struct {
	Enabled bool      `mapstructure:"enabled" yaml:"enabled"`
	Conn    db.Config `mapstructure:",squash" yaml:",inline"`
}

// BackendsConfig points strategies at remote services. Strategies without a
// URL (neither an override nor DefaultURL) use the local backend.
type BackendsConfig struct {
	DefaultURL    string                                  `mapstructure:"default_url" yaml:"default_url"`
	Timeout       time.Duration                           `mapstructure:"timeout" yaml:"timeout"`
	RatePerSecond float64                                 `mapstructure:"rate_per_second" yaml:"rate_per_second"`
	Burst         int                                     `mapstructure:"burst" yaml:"burst"`
	Overrides     map[string]strategies.HTTPBackendConfig `mapstructure:"overrides" yaml:"overrides"`
}

// For resolves the endpoint for one strategy. ok is false when no URL is set.
func (b BackendsConfig) For(name reasoning.StrategyName) (strategies.HTTPBackendConfig, bool) {
	cfg := strategies.HTTPBackendConfig{
		BaseURL:       b.DefaultURL,
		Timeout:       b.Timeout,
		RatePerSecond: b.RatePerSecond,
		Burst:         b.Burst,
	}
	if o, ok := b.Overrides[string(name)]; ok {
		if o.BaseURL != "" {
			cfg.BaseURL = o.BaseURL
		}
		if o.Timeout > 0 {
			cfg.Timeout = o.Timeout
		}
		if o.RatePerSecond > 0 {
			cfg.RatePerSecond = o.RatePerSecond
		}
		if o.Burst > 0 {
			cfg.Burst = o.Burst
		}
	}
	return cfg, cfg.BaseURL != ""
}

type HTTPConfig struct {
	Port int `mapstructure:"port" yaml:"port"`
	// AuthToken, when set, is required as a bearer token on /v1 routes
	AuthToken string `mapstructure:"auth_token" yaml:"auth_token"`
}

type TemporalConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	HostPort  string `mapstructure:"host_port" yaml:"host_port"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
	TaskQueue string `mapstructure:"task_queue" yaml:"task_queue"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

type SessionsConfig struct {
	MaxSessions int `mapstructure:"max_sessions" yaml:"max_sessions"`
}

// ReasoningConfig is the full service configuration
type ReasoningConfig struct {
	Reasoning  reasoning.Config  `mapstructure:"reasoning" yaml:"reasoning"`
	Selection  SelectionConfig   `mapstructure:"selection" yaml:"selection"`
	Escalation escalation.Config `mapstructure:"escalation" yaml:"escalation"`
	Sessions   SessionsConfig    `mapstructure:"sessions" yaml:"sessions"`
	Redis      RedisConfig       `mapstructure:"redis" yaml:"redis"`
	Database   DatabaseConfig    `mapstructure:"database" yaml:"database"`
	Knowledge  knowledge.Config  `mapstructure:"knowledge" yaml:"knowledge"`
	Backends   BackendsConfig    `mapstructure:"backends" yaml:"backends"`
	Tracing    tracing.Config    `mapstructure:"tracing" yaml:"tracing"`
	HTTP       HTTPConfig        `mapstructure:"http" yaml:"http"`
	Temporal   TemporalConfig    `mapstructure:"temporal" yaml:"temporal"`
	Logging    LoggingConfig     `mapstructure:"logging" yaml:"logging"`
}

// envBindings maps config keys to the environment variables that override them
var envBindings = map[string]string{
	"reasoning.confidence_threshold":      "REASONING_CONFIDENCE_THRESHOLD",
	"selection.mode":                      "REASONING_SELECTION_MODE",
	"escalation.max_attempts":             "ESCALATION_MAX_ATTEMPTS",
	"escalation.max_escalation_time":      "ESCALATION_MAX_TIME",
	"escalation.low_confidence_threshold": "ESCALATION_LOW_CONFIDENCE_THRESHOLD",
	"redis.enabled":                       "REDIS_ENABLED",
	"redis.addr":                          "REDIS_ADDR",
	"redis.password":                      "REDIS_PASSWORD",
	"database.enabled":                    "DATABASE_ENABLED",
	"database.driver":                     "DATABASE_DRIVER",
	"database.host":                       "POSTGRES_HOST",
	"database.port":                       "POSTGRES_PORT",
	"database.user":                       "POSTGRES_USER",
	"database.password":                   "POSTGRES_PASSWORD",
	"database.database":                   "POSTGRES_DB",
	"database.path":                       "SQLITE_PATH",
	"knowledge.enabled":                   "KNOWLEDGE_ENABLED",
	"knowledge.base_url":                  "KNOWLEDGE_URL",
	"backends.default_url":                "STRATEGY_BACKEND_URL",
	"tracing.enabled":                     "TRACING_ENABLED",
	"tracing.otlp_endpoint":               "OTEL_EXPORTER_OTLP_ENDPOINT",
	"http.port":                           "HTTP_PORT",
	"http.auth_token":                     "REASONING_API_TOKEN",
	"temporal.enabled":                    "TEMPORAL_ENABLED",
	"temporal.host_port":                  "TEMPORAL_HOST",
	"logging.level":                       "LOG_LEVEL",
}

func setDefaults(v *viper.Viper) {
	r := reasoning.DefaultConfig()
	v.SetDefault("reasoning.enable_react", r.EnableReAct)
	v.SetDefault("reasoning.enable_chain_of_draft", r.EnableChainOfDraft)
	v.SetDefault("reasoning.enable_tree_of_thoughts", r.EnableTreeOfThoughts)
	v.SetDefault("reasoning.enable_council_of_critics", r.EnableCouncilOfCritics)
	v.SetDefault("reasoning.enable_meta_cognitive", r.EnableMetaCognitive)
	v.SetDefault("reasoning.enable_self_reflection", r.EnableSelfReflection)
	v.SetDefault("reasoning.confidence_threshold", r.ConfidenceThreshold)

	v.SetDefault("selection.mode", "hybrid")

	e := escalation.DefaultConfig()
	v.SetDefault("escalation.low_confidence_threshold", e.LowConfidenceThreshold)
	v.SetDefault("escalation.critical_confidence_threshold", e.CriticalConfidenceThreshold)
	v.SetDefault("escalation.max_attempts", e.MaxAttempts)
	v.SetDefault("escalation.max_escalation_time", e.MaxEscalationTime)
	v.SetDefault("escalation.success_buffer", e.SuccessBuffer)

	v.SetDefault("sessions.max_sessions", 1000)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.driver", db.DriverPostgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "reasoning")
	v.SetDefault("database.database", "reasoning")
	v.SetDefault("database.ssl_mode", "disable")

	v.SetDefault("knowledge.enabled", false)
	v.SetDefault("knowledge.top_k", 5)
	v.SetDefault("knowledge.timeout", 5*time.Second)

	v.SetDefault("backends.timeout", 30*time.Second)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "reasoning-orchestrator")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4317")

	v.SetDefault("http.port", 8090)

	v.SetDefault("temporal.enabled", false)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "reasoning")

	v.SetDefault("logging.level", "info")
}

// Path returns REASONING_CONFIG_PATH or DefaultPath
func Path() string {
	if p := os.Getenv("REASONING_CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads the config at Path()
func Load() (*ReasoningConfig, error) {
	return LoadFrom(Path())
}

// LoadFrom reads path when it exists, then applies env overrides and
// defaults. A missing file is not an error.
func LoadFrom(path string) (*ReasoningConfig, error) {
	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat config: %w", err)
		}
	}

	var cfg ReasoningConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the pipeline cannot run with
func (c *ReasoningConfig) Validate() error {
	if t := c.Reasoning.ConfidenceThreshold; t < 0 || t > 1 {
		return fmt.Errorf("reasoning.confidence_threshold must be within [0,1], got %v", t)
	}
	switch c.Selection.Mode {
	case "", "performance", "context", "hybrid":
	default:
		return fmt.Errorf("selection.mode %q is not one of performance, context, hybrid", c.Selection.Mode)
	}
	return validateEscalation(c.Escalation)
}

func validateEscalation(e escalation.Config) error {
	if e.MaxAttempts < 0 {
		return fmt.Errorf("escalation.max_attempts must not be negative")
	}
	if e.MaxEscalationTime < 0 {
		return fmt.Errorf("escalation.max_escalation_time must not be negative")
	}
	for name, s := range e.Strategies {
		if s.EscalationThreshold < 0 || s.EscalationThreshold > 1 {
			return fmt.Errorf("escalation.strategies.%s.escalation_threshold must be within [0,1]", name)
		}
	}
	return nil
}
