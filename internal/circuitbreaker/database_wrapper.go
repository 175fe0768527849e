package circuitbreaker

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const databaseService = "persistence"

// DatabaseWrapper wraps the persistence connection pool with a circuit breaker
type DatabaseWrapper struct {
	db     *sqlx.DB
	cb     *CircuitBreaker
	logger *zap.Logger
}

// NewDatabaseWrapper creates a database wrapper with circuit breaker
func NewDatabaseWrapper(db *sqlx.DB, logger *zap.Logger) *DatabaseWrapper {
	cb := NewCircuitBreaker("database", GetDatabaseConfig().ToConfig(), logger)
	GlobalMetricsCollector.RegisterCircuitBreaker("database", databaseService, cb)
	return &DatabaseWrapper{db: db, cb: cb, logger: logger}
}

func (dw *DatabaseWrapper) run(ctx context.Context, fn func() error) error {
	err := dw.cb.Execute(ctx, fn)
	GlobalMetricsCollector.RecordRequest("database", databaseService, dw.cb.State(), err == nil)
	return err
}

// PingContext wraps database ping
func (dw *DatabaseWrapper) PingContext(ctx context.Context) error {
	return dw.run(ctx, func() error { return dw.db.PingContext(ctx) })
}

// ExecContext wraps a statement execution
func (dw *DatabaseWrapper) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	var result sql.Result
	err := dw.run(ctx, func() error {
		var err error
		result, err = dw.db.ExecContext(ctx, dw.db.Rebind(query), args...)
		return err
	})
	return result, err
}

// SelectContext scans all rows of query into dest
func (dw *DatabaseWrapper) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return dw.run(ctx, func() error { return dw.db.SelectContext(ctx, dest, dw.db.Rebind(query), args...) })
}

// Close closes the pool
func (dw *DatabaseWrapper) Close() error {
	return dw.db.Close()
}

// DB exposes the pool for health checks
func (dw *DatabaseWrapper) DB() *sqlx.DB {
	return dw.db
}

// IsCircuitBreakerOpen returns true if the circuit breaker is open
func (dw *DatabaseWrapper) IsCircuitBreakerOpen() bool {
	return dw.cb.IsOpen()
}
