package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/escalation"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/reasoning"
)

// Reloadable is the part of reasoning.yaml applied without a restart
type Reloadable struct {
	Reasoning  reasoning.Config  `yaml:"reasoning"`
	Escalation escalation.Config `yaml:"escalation"`
}

// ChangeHandler receives each successfully parsed reload
type ChangeHandler func(Reloadable) error

// Watcher hot-reloads reasoning.yaml
type Watcher struct {
	path     string
	base     Reloadable
	watcher  *fsnotify.Watcher
	handlers []ChangeHandler
	debounce time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	timer   *time.Timer
	loadMu  sync.Mutex
}

// NewWatcher watches path. base supplies values for keys absent from the file.
func NewWatcher(path string, base Reloadable, logger *zap.Logger) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		path:     filepath.Clean(path),
		base:     base,
		watcher:  w,
		debounce: 100 * time.Millisecond,
		stopCh:   make(chan struct{}),
		logger:   logger,
	}, nil
}

// ReloadableFrom extracts the hot-reloadable section of cfg
func ReloadableFrom(cfg *ReasoningConfig) Reloadable {
	return Reloadable{Reasoning: cfg.Reasoning, Escalation: cfg.Escalation}
}

// OnChange registers a handler. Register before Start.
func (w *Watcher) OnChange(h ChangeHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, h)
}

// Start watches the directory holding the file, so editors that replace the
// file atomically are still seen.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = true
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}
	go w.watchLoop(ctx)

	w.logger.Info("Configuration watcher started", zap.String("path", w.path))
	return nil
}

// Stop ends watching
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return w.watcher.Close()
	}
	w.started = false
	close(w.stopCh)
	if w.timer != nil {
		w.timer.Stop()
	}
	return w.watcher.Close()
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Watch loop panicked", zap.Any("panic", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	// Coalesce bursts of writes into one reload
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if err := w.Reload(); err != nil {
			w.logger.Error("Failed to reload config", zap.String("path", w.path), zap.Error(err))
		}
	})
}

// Reload parses the file and hands the result to every handler
func (w *Watcher) Reload() error {
	w.loadMu.Lock()
	defer w.loadMu.Unlock()

	data, err := os.ReadFile(w.path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", w.path, err)
	}
	next, err := ParseReloadable(data, w.base)
	if err != nil {
		return err
	}

	w.mu.Lock()
	handlers := append([]ChangeHandler(nil), w.handlers...)
	w.mu.Unlock()

	for _, h := range handlers {
		if err := h(next); err != nil {
			w.logger.Error("Configuration change handler failed", zap.Error(err))
		}
	}
	w.logger.Info("Configuration reloaded",
		zap.String("path", w.path),
		zap.Float64("confidence_threshold", next.Reasoning.ConfidenceThreshold),
		zap.Int("escalation_max_attempts", next.Escalation.MaxAttempts),
	)
	return nil
}

// ParseReloadable decodes yaml over base and re-applies env overrides
func ParseReloadable(data []byte, base Reloadable) (Reloadable, error) {
	out := base
	if base.Escalation.Strategies != nil {
		out.Escalation.Strategies = make(map[string]escalation.StrategyThreshold, len(base.Escalation.Strategies))
		for k, v := range base.Escalation.Strategies {
			out.Escalation.Strategies[k] = v
		}
	}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return Reloadable{}, fmt.Errorf("parse config: %w", err)
	}
	applyReloadableEnv(&out)

	if t := out.Reasoning.ConfidenceThreshold; t < 0 || t > 1 {
		return Reloadable{}, fmt.Errorf("reasoning.confidence_threshold must be within [0,1], got %v", t)
	}
	if err := validateEscalation(out.Escalation); err != nil {
		return Reloadable{}, err
	}
	return out, nil
}

// env wins over the file, same as at startup
func applyReloadableEnv(r *Reloadable) {
	if v := os.Getenv("REASONING_CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			r.Reasoning.ConfidenceThreshold = f
		}
	}
	if v := os.Getenv("ESCALATION_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			r.Escalation.MaxAttempts = n
		}
	}
	if v := os.Getenv("ESCALATION_MAX_TIME"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			r.Escalation.MaxEscalationTime = d
		}
	}
	if v := os.Getenv("ESCALATION_LOW_CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			r.Escalation.LowConfidenceThreshold = f
		}
	}
}
