package db

// schema uses types both postgres and sqlite accept.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS reasoning_sessions (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		prompt TEXT NOT NULL,
		primary_strategy TEXT NOT NULL,
		secondary_strategies TEXT NOT NULL DEFAULT '',
		selection_mode TEXT NOT NULL DEFAULT '',
		complexity TEXT NOT NULL DEFAULT '',
		domain TEXT NOT NULL DEFAULT '',
		confidence DOUBLE PRECISION NOT NULL,
		original_confidence DOUBLE PRECISION NOT NULL,
		escalated BOOLEAN NOT NULL DEFAULT FALSE,
		recommendation TEXT NOT NULL DEFAULT '',
		processing_time_ms BIGINT NOT NULL DEFAULT 0,
		error_recovery BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reasoning_sessions_strategy ON reasoning_sessions (primary_strategy)`,
	`CREATE TABLE IF NOT EXISTS escalation_attempts (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		attempt_number INTEGER NOT NULL,
		strategy TEXT NOT NULL DEFAULT '',
		parameters TEXT,
		result_confidence DOUBLE PRECISION,
		success BOOLEAN NOT NULL DEFAULT FALSE,
		error_message TEXT,
		duration_ms BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reflections (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		trigger_type TEXT NOT NULL,
		strategy TEXT NOT NULL,
		original_confidence DOUBLE PRECISION NOT NULL,
		updated_confidence DOUBLE PRECISION NOT NULL,
		needs_human_input BOOLEAN NOT NULL DEFAULT FALSE,
		details TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		session_id TEXT NOT NULL DEFAULT '',
		details TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
}
