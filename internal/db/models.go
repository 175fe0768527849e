package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JSONB represents a json column. Postgres stores it as jsonb, sqlite as TEXT.
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONB", value)
	}
	if len(raw) == 0 {
		*j = nil
		return nil
	}
	return json.Unmarshal(raw, j)
}

// ReasoningSession is one completed ProcessAdvancedReasoning call.
type ReasoningSession struct {
	ID                 uuid.UUID `db:"id"`
	SessionID          string    `db:"session_id"`
	Prompt             string    `db:"prompt"`
	PrimaryStrategy    string    `db:"primary_strategy"`
	SecondaryStrategy  string    `db:"secondary_strategies"`
	SelectionMode      string    `db:"selection_mode"`
	Complexity         string    `db:"complexity"`
	Domain             string    `db:"domain"`
	Confidence         float64   `db:"confidence"`
	OriginalConfidence float64   `db:"original_confidence"`
	Escalated          bool      `db:"escalated"`
	Recommendation     string    `db:"recommendation"`
	ProcessingTimeMs   int64     `db:"processing_time_ms"`
	ErrorRecovery      bool      `db:"error_recovery"`
	CreatedAt          time.Time `db:"created_at"`
}

// EscalationAttemptRecord mirrors one escalation attempt.
type EscalationAttemptRecord struct {
	ID               uuid.UUID `db:"id"`
	SessionID        string    `db:"session_id"`
	AttemptNumber    int       `db:"attempt_number"`
	Strategy         string    `db:"strategy"`
	Parameters       JSONB     `db:"parameters"`
	ResultConfidence *float64  `db:"result_confidence"`
	Success          bool      `db:"success"`
	ErrorMessage     *string   `db:"error_message"`
	DurationMs       int64     `db:"duration_ms"`
	CreatedAt        time.Time `db:"created_at"`
}

// ReflectionRecord stores a self-reflection produced by the reflection engine.
type ReflectionRecord struct {
	ID                 uuid.UUID `db:"id"`
	SessionID          string    `db:"session_id"`
	Trigger            string    `db:"trigger_type"`
	Strategy           string    `db:"strategy"`
	OriginalConfidence float64   `db:"original_confidence"`
	UpdatedConfidence  float64   `db:"updated_confidence"`
	NeedsHumanInput    bool      `db:"needs_human_input"`
	Details            JSONB     `db:"details"`
	CreatedAt          time.Time `db:"created_at"`
}

// AuditLog represents an audit trail entry
type AuditLog struct {
	ID        uuid.UUID `db:"id"`
	Action    string    `db:"action"`
	SessionID string    `db:"session_id"`
	Details   JSONB     `db:"details"`
	CreatedAt time.Time `db:"created_at"`
}

// StrategyStat is an aggregate over persisted sessions.
type StrategyStat struct {
	Strategy      string  `db:"strategy" json:"strategy"`
	Uses          int64   `db:"uses" json:"uses"`
	AvgConfidence float64 `db:"avg_confidence" json:"avg_confidence"`
	Escalations   int64   `db:"escalations" json:"escalations"`
}
