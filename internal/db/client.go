package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/metrics"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// ErrClientClosed is returned by QueueWrite after Close.
var ErrClientClosed = errors.New("database client closed")

// Config holds database configuration
type Config struct {
	Driver          string        `mapstructure:"driver" yaml:"driver"`
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	User            string        `mapstructure:"user" yaml:"user"`
	Password        string        `mapstructure:"password" yaml:"password"`
	Database        string        `mapstructure:"database" yaml:"database"`
	SSLMode         string        `mapstructure:"ssl_mode" yaml:"ssl_mode"`
	Path            string        `mapstructure:"path" yaml:"path"`
	MaxConnections  int           `mapstructure:"max_connections" yaml:"max_connections"`
	IdleConnections int           `mapstructure:"idle_connections" yaml:"idle_connections"`
	MaxLifetime     time.Duration `mapstructure:"max_lifetime" yaml:"max_lifetime"`
	Workers         int           `mapstructure:"workers" yaml:"workers"`
	QueueSize       int           `mapstructure:"queue_size" yaml:"queue_size"`
}

func (c *Config) applyDefaults() {
	if c.Driver == "" {
		c.Driver = DriverPostgres
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = 25
	}
	if c.IdleConnections == 0 {
		c.IdleConnections = 5
	}
	if c.MaxLifetime == 0 {
		c.MaxLifetime = 5 * time.Minute
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1000
	}
}

// DSN builds the driver-specific connection string.
func (c *Config) DSN() (string, error) {
	switch c.Driver {
	case DriverPostgres, "":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
		), nil
	case DriverSQLite:
		if c.Path == "" {
			return "", errors.New("sqlite3 driver requires a path")
		}
		return fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", c.Path), nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", c.Driver)
	}
}

// Recorder receives fire-and-forget persistence of reasoning activity.
type Recorder interface {
	RecordSession(s *ReasoningSession)
	RecordEscalationAttempt(a *EscalationAttemptRecord)
	RecordReflection(r *ReflectionRecord)
	RecordAudit(a *AuditLog)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) RecordSession(*ReasoningSession)                  {}
func (NopRecorder) RecordEscalationAttempt(*EscalationAttemptRecord) {}
func (NopRecorder) RecordReflection(*ReflectionRecord)               {}
func (NopRecorder) RecordAudit(*AuditLog)                            {}

// Client manages database connections and operations
type Client struct {
	db     *circuitbreaker.DatabaseWrapper
	logger *zap.Logger
	config Config

	// Write queue for async operations
	writeQueue chan WriteRequest
	stopCh     chan struct{}
	workerWg   sync.WaitGroup
	closed     atomic.Bool
	closeOnce  sync.Once
}

// WriteRequest represents an async write operation
type WriteRequest struct {
	Type     WriteType
	Data     interface{}
	Callback func(error)
}

type WriteType int

const (
	WriteTypeReasoningSession WriteType = iota
	WriteTypeEscalationAttempt
	WriteTypeReflection
	WriteTypeAuditLog
)

// String returns the string representation of WriteType
func (wt WriteType) String() string {
	switch wt {
	case WriteTypeReasoningSession:
		return "ReasoningSession"
	case WriteTypeEscalationAttempt:
		return "EscalationAttempt"
	case WriteTypeReflection:
		return "Reflection"
	case WriteTypeAuditLog:
		return "AuditLog"
	default:
		return "Unknown"
	}
}

// NewClient opens the configured database, verifies connectivity and starts
// the async write workers.
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	config.applyDefaults()
	dsn, err := config.DSN()
	if err != nil {
		return nil, err
	}

	rawDB, err := sqlx.Open(config.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	rawDB.SetMaxOpenConns(config.MaxConnections)
	rawDB.SetMaxIdleConns(config.IdleConnections)
	rawDB.SetConnMaxLifetime(config.MaxLifetime)

	db := circuitbreaker.NewDatabaseWrapper(rawDB, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		rawDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	client := newClient(db, config, logger)
	logger.Info("Database client initialized",
		zap.String("driver", config.Driver),
		zap.Int("max_connections", config.MaxConnections),
		zap.Int("workers", config.Workers),
	)
	return client, nil
}

// NewClientWithDB wraps an already opened handle. The caller's Config only
// contributes worker and queue sizing.
func NewClientWithDB(rawDB *sqlx.DB, config Config, logger *zap.Logger) *Client {
	config.Driver = rawDB.DriverName()
	config.applyDefaults()
	return newClient(circuitbreaker.NewDatabaseWrapper(rawDB, logger), config, logger)
}

func newClient(db *circuitbreaker.DatabaseWrapper, config Config, logger *zap.Logger) *Client {
	c := &Client{
		db:         db,
		logger:     logger,
		config:     config,
		writeQueue: make(chan WriteRequest, config.QueueSize),
		stopCh:     make(chan struct{}),
	}
	for i := 0; i < config.Workers; i++ {
		c.workerWg.Add(1)
		go c.writeWorker(i)
	}
	go c.healthCheck()
	return c
}

// Migrate creates the tables if they do not exist.
func (c *Client) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (c *Client) writeWorker(id int) {
	defer c.workerWg.Done()
	c.logger.Debug("Write worker started", zap.Int("worker_id", id))

	for {
		select {
		case <-c.stopCh:
			c.drainQueue()
			c.logger.Debug("Write worker stopped", zap.Int("worker_id", id))
			return
		case req := <-c.writeQueue:
			metrics.PersistenceQueueDepth.Set(float64(len(c.writeQueue)))
			c.processWrite(req)
		}
	}
}

func (c *Client) processWrite(req WriteRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	switch req.Type {
	case WriteTypeReasoningSession:
		if s, ok := req.Data.(*ReasoningSession); ok {
			err = c.SaveReasoningSession(ctx, s)
		}
	case WriteTypeEscalationAttempt:
		if a, ok := req.Data.(*EscalationAttemptRecord); ok {
			err = c.SaveEscalationAttempt(ctx, a)
		}
	case WriteTypeReflection:
		if r, ok := req.Data.(*ReflectionRecord); ok {
			err = c.SaveReflection(ctx, r)
		}
	case WriteTypeAuditLog:
		if a, ok := req.Data.(*AuditLog); ok {
			err = c.SaveAuditLog(ctx, a)
		}
	default:
		err = fmt.Errorf("unknown write type %d", req.Type)
	}

	status := "success"
	if err != nil {
		status = "error"
		c.logger.Error("Failed to process write request",
			zap.String("type", req.Type.String()),
			zap.Error(err),
		)
	}
	metrics.PersistenceWrites.WithLabelValues(req.Type.String(), status).Inc()

	if req.Callback != nil {
		req.Callback(err)
	}
}

// drainQueue processes remaining requests during shutdown
func (c *Client) drainQueue() {
	timeout := time.After(10 * time.Second)
	for {
		select {
		case req := <-c.writeQueue:
			c.processWrite(req)
		case <-timeout:
			c.logger.Warn("Timeout draining write queue")
			return
		default:
			return
		}
	}
}

// QueueWrite adds a write request to the async queue. A full queue falls
// back to a synchronous write so nothing is dropped.
func (c *Client) QueueWrite(writeType WriteType, data interface{}, callback func(error)) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	req := WriteRequest{Type: writeType, Data: data, Callback: callback}
	select {
	case c.writeQueue <- req:
		metrics.PersistenceQueueDepth.Set(float64(len(c.writeQueue)))
		return nil
	default:
		c.logger.Warn("Write queue is full, falling back to synchronous write",
			zap.String("type", writeType.String()))
		c.processWrite(req)
		return nil
	}
}

func (c *Client) enqueue(t WriteType, data interface{}) {
	if err := c.QueueWrite(t, data, nil); err != nil {
		c.logger.Debug("Dropping write", zap.String("type", t.String()), zap.Error(err))
	}
}

// RecordSession queues a session row.
func (c *Client) RecordSession(s *ReasoningSession) { c.enqueue(WriteTypeReasoningSession, s) }

// RecordEscalationAttempt queues an escalation attempt row.
func (c *Client) RecordEscalationAttempt(a *EscalationAttemptRecord) {
	c.enqueue(WriteTypeEscalationAttempt, a)
}

// RecordReflection queues a reflection row.
func (c *Client) RecordReflection(r *ReflectionRecord) { c.enqueue(WriteTypeReflection, r) }

// RecordAudit queues an audit_logs row.
func (c *Client) RecordAudit(a *AuditLog) { c.enqueue(WriteTypeAuditLog, a) }

// SaveReasoningSession inserts one reasoning_sessions row.
func (c *Client) SaveReasoningSession(ctx context.Context, s *ReasoningSession) error {
	if s == nil {
		return nil
	}
	stampID(&s.ID, &s.CreatedAt)
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO reasoning_sessions (
			id, session_id, prompt, primary_strategy, secondary_strategies, selection_mode,
			complexity, domain, confidence, original_confidence, escalated, recommendation,
			processing_time_ms, error_recovery, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (id) DO NOTHING`,
		s.ID.String(), s.SessionID, s.Prompt, s.PrimaryStrategy, s.SecondaryStrategy, s.SelectionMode,
		s.Complexity, s.Domain, s.Confidence, s.OriginalConfidence, s.Escalated, s.Recommendation,
		s.ProcessingTimeMs, s.ErrorRecovery, s.CreatedAt,
	)
	return err
}

// SaveEscalationAttempt inserts one escalation_attempts row.
func (c *Client) SaveEscalationAttempt(ctx context.Context, a *EscalationAttemptRecord) error {
	if a == nil {
		return nil
	}
	stampID(&a.ID, &a.CreatedAt)
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO escalation_attempts (
			id, session_id, attempt_number, strategy, parameters, result_confidence,
			success, error_message, duration_ms, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (id) DO NOTHING`,
		a.ID.String(), a.SessionID, a.AttemptNumber, a.Strategy, a.Parameters, a.ResultConfidence,
		a.Success, a.ErrorMessage, a.DurationMs, a.CreatedAt,
	)
	return err
}

// SaveReflection inserts one reflections row.
func (c *Client) SaveReflection(ctx context.Context, r *ReflectionRecord) error {
	if r == nil {
		return nil
	}
	stampID(&r.ID, &r.CreatedAt)
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO reflections (
			id, session_id, trigger_type, strategy, original_confidence,
			updated_confidence, needs_human_input, details, created_at
		) VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT (id) DO NOTHING`,
		r.ID.String(), r.SessionID, r.Trigger, r.Strategy, r.OriginalConfidence,
		r.UpdatedConfidence, r.NeedsHumanInput, r.Details, r.CreatedAt,
	)
	return err
}

// SaveAuditLog inserts one audit_logs row.
func (c *Client) SaveAuditLog(ctx context.Context, a *AuditLog) error {
	if a == nil {
		return nil
	}
	stampID(&a.ID, &a.CreatedAt)
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, action, session_id, details, created_at)
		VALUES (?,?,?,?,?)`,
		a.ID.String(), a.Action, a.SessionID, a.Details, a.CreatedAt,
	)
	return err
}

// StrategyStats aggregates persisted sessions per primary strategy.
func (c *Client) StrategyStats(ctx context.Context) ([]StrategyStat, error) {
	var stats []StrategyStat
	err := c.db.SelectContext(ctx, &stats, `
		SELECT primary_strategy AS strategy,
		       COUNT(*) AS uses,
		       AVG(confidence) AS avg_confidence,
		       SUM(CASE WHEN escalated THEN 1 ELSE 0 END) AS escalations
		FROM reasoning_sessions
		GROUP BY primary_strategy
		ORDER BY primary_strategy`)
	if err != nil {
		return nil, fmt.Errorf("strategy stats: %w", err)
	}
	return stats, nil
}

// RecentSessions returns the newest sessions, newest first.
func (c *Client) RecentSessions(ctx context.Context, limit int) ([]ReasoningSession, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []ReasoningSession
	err := c.db.SelectContext(ctx, &rows, `
		SELECT id, session_id, prompt, primary_strategy, secondary_strategies, selection_mode,
		       complexity, domain, confidence, original_confidence, escalated, recommendation,
		       processing_time_ms, error_recovery, created_at
		FROM reasoning_sessions
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent sessions: %w", err)
	}
	return rows, nil
}

// RecentAuditLogs returns the newest audit entries, newest first.
func (c *Client) RecentAuditLogs(ctx context.Context, limit int) ([]AuditLog, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []AuditLog
	err := c.db.SelectContext(ctx, &rows, `
		SELECT id, action, session_id, details, created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent audit logs: %w", err)
	}
	return rows, nil
}

// Ping checks connectivity through the circuit breaker.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// IsCircuitBreakerOpen reports whether the database breaker is rejecting calls.
func (c *Client) IsCircuitBreakerOpen() bool {
	return c.db.IsCircuitBreakerOpen()
}

// Driver returns the sql driver name in use.
func (c *Client) Driver() string {
	return c.config.Driver
}

// healthCheck periodically checks database connectivity
func (c *Client) healthCheck() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := c.db.PingContext(ctx); err != nil {
				c.logger.Error("Database health check failed", zap.Error(err))
			}
			cancel()
		}
	}
}

// Close drains queued writes and closes the connection pool.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.stopCh)
		c.workerWg.Wait()
		err = c.db.Close()
		c.logger.Info("Database client closed")
	})
	return err
}

func stampID(id *uuid.UUID, createdAt *time.Time) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
	if createdAt.IsZero() {
		*createdAt = time.Now().UTC()
	}
}

// JoinStrategies joins non-empty names for the secondary_strategies column.
func JoinStrategies(names []string) string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return strings.Join(out, ",")
}
