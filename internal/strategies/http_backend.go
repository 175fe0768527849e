package strategies

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/reasoning"
)

const maxResponseBytes = 4 << 20

// HTTPBackendConfig configures a remote strategy backend
type HTTPBackendConfig struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// RatePerSecond of zero disables client-side limiting
	RatePerSecond float64 `mapstructure:"rate_per_second" yaml:"rate_per_second"`
	Burst         int     `mapstructure:"burst" yaml:"burst"`
}

// HTTPBackend calls a remote strategy service at POST {base}/v1/strategies/{name}/generate
type HTTPBackend struct {
	name    reasoning.StrategyName
	url     string
	client  *circuitbreaker.HTTPWrapper
	limiter *rate.Limiter
	logger  *zap.Logger
}

type generateRequest struct {
	SessionID string         `json:"session_id"`
	Prompt    string         `json:"prompt"`
	Context   BackendContext `json:"context"`
}

type generateResponse struct {
	ID               string           `json:"id"`
	PrimaryResponse  string           `json:"primary_response"`
	ReasoningProcess []reasoning.Step `json:"reasoning_process"`
	Confidence       float64          `json:"confidence"`
	Alternatives     []string         `json:"alternatives"`
	Metadata         struct {
		ResourcesUsed   []string `json:"resources_used"`
		ComplexityScore float64  `json:"complexity_score"`
	} `json:"metadata"`
}

// NewHTTPBackend creates a backend for name
func NewHTTPBackend(name reasoning.StrategyName, cfg HTTPBackendConfig, logger *zap.Logger) *HTTPBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	client := circuitbreaker.NewHTTPWrapper(
		&http.Client{Timeout: cfg.Timeout},
		"backend-http-"+string(name), "strategy-backend",
		circuitbreaker.GetHTTPConfig(), logger,
	)
	return &HTTPBackend{
		name:    name,
		url:     strings.TrimRight(cfg.BaseURL, "/") + "/v1/strategies/" + string(name) + "/generate",
		client:  client,
		limiter: limiter,
		logger:  logger,
	}
}

// GenerateResponse implements Backend
func (b *HTTPBackend) GenerateResponse(ctx context.Context, sessionID, prompt string, bc BackendContext) (*reasoning.Result, error) {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	body, err := json.Marshal(generateRequest{SessionID: sessionID, Prompt: prompt, Context: bc})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("backend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out generateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	elapsed := time.Since(start).Milliseconds()
	b.logger.Debug("Strategy backend responded",
		zap.String("strategy", string(b.name)),
		zap.String("session_id", sessionID),
		zap.Int64("latency_ms", elapsed),
		zap.Float64("confidence", out.Confidence),
	)

	id := out.ID
	if id == "" {
		id = uuid.New().String()
	}
	return &reasoning.Result{
		ID:               id,
		Type:             b.name,
		PrimaryResponse:  out.PrimaryResponse,
		ReasoningProcess: out.ReasoningProcess,
		Confidence:       reasoning.Clamp(out.Confidence, 0, 1),
		Alternatives:     out.Alternatives,
		Metadata: reasoning.ResultMetadata{
			ProcessingTimeMs: elapsed,
			ComplexityScore:  out.Metadata.ComplexityScore,
			ResourcesUsed:    out.Metadata.ResourcesUsed,
		},
	}, nil
}
