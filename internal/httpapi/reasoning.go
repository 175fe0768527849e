package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/db"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/orchestrator"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/reasoning"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/reflection"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/strategies"
)

const (
	maxPromptBytes = 64 << 10
	maxBodyBytes   = 1 << 20
	requestTimeout = 2 * time.Minute
	defaultRecentN = 20
	maxRecentN     = 200
	statsTimeout   = 5 * time.Second
)

// Reasoner is the orchestrator surface exposed over HTTP
type Reasoner interface {
	ProcessAdvancedReasoning(ctx context.Context, prompt string, rc *reasoning.RequestContext, prefs *reasoning.Preferences) *orchestrator.AdvancedReasoningResponse
	GetCapabilitiesStatus() map[string]bool
	GetPerformanceAnalytics() orchestrator.Analytics
	RecordFeedback(strategy reasoning.StrategyName, score float64) (reflection.SelfReflection, error)
}

// HistorySource serves persisted aggregates. Optional.
type HistorySource interface {
	StrategyStats(ctx context.Context) ([]db.StrategyStat, error)
	RecentSessions(ctx context.Context, limit int) ([]db.ReasoningSession, error)
}

// ReasoningHandler serves the reasoning API.
//
//	POST /v1/reasoning
//	GET  /v1/reasoning/capabilities
//	GET  /v1/reasoning/analytics
//	GET  /v1/reasoning/sessions
//	POST /v1/reasoning/feedback
type ReasoningHandler struct {
	reasoner  Reasoner
	history   HistorySource
	logger    *zap.Logger
	authToken string
}

// NewReasoningHandler creates a handler. history may be nil.
func NewReasoningHandler(r Reasoner, history HistorySource, logger *zap.Logger, authToken string) *ReasoningHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReasoningHandler{reasoner: r, history: history, logger: logger, authToken: authToken}
}

// RegisterRoutes registers reasoning routes and /metrics on the provided mux.
func (h *ReasoningHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/reasoning", h.authorized(h.handleReason))
	mux.HandleFunc("/v1/reasoning/capabilities", h.authorized(h.handleCapabilities))
	mux.HandleFunc("/v1/reasoning/analytics", h.authorized(h.handleAnalytics))
	mux.HandleFunc("/v1/reasoning/sessions", h.authorized(h.handleSessions))
	mux.HandleFunc("/v1/reasoning/feedback", h.authorized(h.handleFeedback))
	mux.Handle("/metrics", promhttp.Handler())
}

func (h *ReasoningHandler) authorized(next http.HandlerFunc) http.HandlerFunc {
	if h.authToken == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != h.authToken {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

type reasonRequest struct {
	Prompt      string                    `json:"prompt"`
	Context     *reasoning.RequestContext `json:"context,omitempty"`
	Preferences *reasoning.Preferences    `json:"preferences,omitempty"`
}

func (h *ReasoningHandler) handleReason(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	var req reasonRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.logger.Warn("reasoning decode error", zap.Error(err))
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		http.Error(w, `{"error":"prompt is required"}`, http.StatusBadRequest)
		return
	}
	if len(req.Prompt) > maxPromptBytes {
		http.Error(w, `{"error":"prompt too large"}`, http.StatusRequestEntityTooLarge)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	resp := h.reasoner.ProcessAdvancedReasoning(ctx, req.Prompt, req.Context, req.Preferences)
	writeJSON(w, http.StatusOK, resp)
}

func (h *ReasoningHandler) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.reasoner.GetCapabilitiesStatus())
}

type analyticsResponse struct {
	orchestrator.Analytics
	Persisted []db.StrategyStat `json:"persisted,omitempty"`
}

func (h *ReasoningHandler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	out := analyticsResponse{Analytics: h.reasoner.GetPerformanceAnalytics()}
	if h.history != nil {
		ctx, cancel := context.WithTimeout(r.Context(), statsTimeout)
		defer cancel()
		stats, err := h.history.StrategyStats(ctx)
		if err != nil {
			// In-memory analytics are still useful without the database
			h.logger.Warn("Failed to load persisted strategy stats", zap.Error(err))
		} else {
			out.Persisted = stats
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type sessionView struct {
	SessionID        string    `json:"session_id"`
	Prompt           string    `json:"prompt"`
	PrimaryStrategy  string    `json:"primary_strategy"`
	Secondary        []string  `json:"secondary_strategies"`
	Complexity       string    `json:"complexity"`
	Domain           string    `json:"domain"`
	Confidence       float64   `json:"confidence"`
	Escalated        bool      `json:"escalated"`
	Recommendation   string    `json:"recommendation,omitempty"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`
	ErrorRecovery    bool      `json:"error_recovery"`
	CreatedAt        time.Time `json:"created_at"`
}

func (h *ReasoningHandler) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	if h.history == nil {
		http.Error(w, `{"error":"persistence disabled"}`, http.StatusNotFound)
		return
	}

	limit := defaultRecentN
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, `{"error":"invalid limit"}`, http.StatusBadRequest)
			return
		}
		limit = min(n, maxRecentN)
	}

	ctx, cancel := context.WithTimeout(r.Context(), statsTimeout)
	defer cancel()
	rows, err := h.history.RecentSessions(ctx, limit)
	if err != nil {
		h.logger.Error("Failed to load recent sessions", zap.Error(err))
		http.Error(w, `{"error":"failed to load sessions"}`, http.StatusBadGateway)
		return
	}

	views := make([]sessionView, 0, len(rows))
	for _, s := range rows {
		var secondary []string
		if s.SecondaryStrategy != "" {
			secondary = strings.Split(s.SecondaryStrategy, ",")
		}
		views = append(views, sessionView{
			SessionID:        s.SessionID,
			Prompt:           s.Prompt,
			PrimaryStrategy:  s.PrimaryStrategy,
			Secondary:        secondary,
			Complexity:       s.Complexity,
			Domain:           s.Domain,
			Confidence:       s.Confidence,
			Escalated:        s.Escalated,
			Recommendation:   s.Recommendation,
			ProcessingTimeMs: s.ProcessingTimeMs,
			ErrorRecovery:    s.ErrorRecovery,
			CreatedAt:        s.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": views, "count": len(views)})
}

type feedbackRequest struct {
	Strategy reasoning.StrategyName `json:"strategy"`
	Score    *float64               `json:"score"`
}

func (h *ReasoningHandler) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	var req feedbackRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Strategy == "" || req.Score == nil {
		http.Error(w, `{"error":"strategy and score are required"}`, http.StatusBadRequest)
		return
	}

	ref, err := h.reasoner.RecordFeedback(req.Strategy, *req.Score)
	switch {
	case errors.Is(err, strategies.ErrUnknownStrategy):
		http.Error(w, `{"error":"unknown strategy"}`, http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, `{"error":"`+sanitizeErr(err.Error())+`"}`, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, ref)
}

// StartServer starts the API server on port with the given handlers registered.
func StartServer(port int, logger *zap.Logger, routes ...interface{ RegisterRoutes(*http.ServeMux) }) *http.Server {
	mux := http.NewServeMux()
	for _, r := range routes {
		r.RegisterRoutes(mux)
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      requestTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		logger.Info("Starting reasoning API server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Reasoning API server failed", zap.Error(err))
		}
	}()
	return srv
}

// writeJSON writes a JSON response with status and content-type.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sanitizeErr trims error messages for safe client output (UTF-8 safe).
func sanitizeErr(s string) string {
	s = strings.ReplaceAll(s, `"`, `'`)
	runes := []rune(s)
	if len(runes) > 200 {
		return string(runes[:200])
	}
	return s
}
