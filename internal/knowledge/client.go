// Package knowledge fetches optional grounding snippets for a prompt.
package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/tracing"
)

// Searcher returns snippets relevant to query
type Searcher interface {
	Search(ctx context.Context, query string) ([]string, error)
}

// Config configures the HTTP knowledge client
type Config struct {
	Enabled  bool          `mapstructure:"enabled"`
	BaseURL  string        `mapstructure:"base_url"`
	TopK     int           `mapstructure:"top_k"`
	Timeout  time.Duration `mapstructure:"timeout"`
	MinScore float64       `mapstructure:"min_score"`
}

// Client queries a knowledge service at POST {base}/v1/search
type Client struct {
	cfg   Config
	url   string
	httpw *circuitbreaker.HTTPWrapper
	log   *zap.Logger
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type searchHit struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

type searchResponse struct {
	Results []searchHit `json:"results"`
}

// NewClient creates a knowledge client. Zero TopK and Timeout take defaults.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TopK == 0 {
		cfg.TopK = 5
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	httpw := circuitbreaker.NewHTTPWrapper(&http.Client{Timeout: cfg.Timeout}, "knowledge", "knowledge", circuitbreaker.GetHTTPConfig(), logger)
	return &Client{
		cfg:   cfg,
		url:   strings.TrimRight(cfg.BaseURL, "/") + "/v1/search",
		httpw: httpw,
		log:   logger,
	}
}

// Search implements Searcher. A disabled client returns no snippets.
func (c *Client) Search(ctx context.Context, query string) ([]string, error) {
	if c == nil || !c.cfg.Enabled || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodPost, c.url)
	defer span.End()

	body, err := json.Marshal(searchRequest{Query: query, TopK: c.cfg.TopK})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := c.httpw.Do(req)
	if err != nil {
		metrics.KnowledgeSearches.WithLabelValues("error").Inc()
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("knowledge search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		metrics.KnowledgeSearches.WithLabelValues("error").Inc()
		_, _ = io.Copy(io.Discard, resp.Body)
		err := fmt.Errorf("knowledge search: status %d", resp.StatusCode)
		tracing.RecordError(span, err)
		return nil, err
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.KnowledgeSearches.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("knowledge search decode: %w", err)
	}

	snippets := make([]string, 0, len(out.Results))
	for _, h := range out.Results {
		if h.Score < c.cfg.MinScore || strings.TrimSpace(h.Text) == "" {
			continue
		}
		snippets = append(snippets, h.Text)
		if len(snippets) == c.cfg.TopK {
			break
		}
	}
	metrics.KnowledgeSearches.WithLabelValues("success").Inc()
	c.log.Debug("Knowledge search completed", zap.Int("snippets", len(snippets)))
	return snippets, nil
}
