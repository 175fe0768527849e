package execution

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/reasoning/internal/reasoning"
)

// SessionState is the lifecycle state of one strategy session
type SessionState string

const (
	StateCreated   SessionState = "created"
	StateRunning   SessionState = "running"
	StateCompleted SessionState = "completed"
	StateFailed    SessionState = "failed"
)

// DefaultMaxSessions bounds the arena
const DefaultMaxSessions = 1000

var (
	ErrInvalidTransition = errors.New("invalid session state transition")
	ErrSessionNotFound   = errors.New("session not found")
)

var transitions = map[SessionState][]SessionState{
	StateCreated: {StateRunning},
	StateRunning: {StateCompleted, StateFailed},
}

// Session tracks one strategy invocation
type Session struct {
	ID         string                 `json:"id"`
	RequestID  string                 `json:"request_id"`
	Strategy   reasoning.StrategyName `json:"strategy"`
	State      SessionState           `json:"state"`
	Confidence float64                `json:"confidence,omitempty"`
	Error      string                 `json:"error,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// Arena owns strategy sessions keyed by id. Oldest sessions are evicted
// once the arena is full.
type Arena struct {
	mu       sync.Mutex
	sessions map[string]*Session
	order    []string
	max      int
}

// NewArena creates an arena holding at most max sessions
func NewArena(max int) *Arena {
	if max <= 0 {
		max = DefaultMaxSessions
	}
	return &Arena{sessions: make(map[string]*Session), max: max}
}

// Create registers a new session in the created state
func (a *Arena) Create(requestID string, strategy reasoning.StrategyName) Session {
	now := time.Now()
	s := &Session{
		ID:        uuid.New().String(),
		RequestID: requestID,
		Strategy:  strategy,
		State:     StateCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for len(a.order) >= a.max {
		a.evictOldest()
	}
	a.sessions[s.ID] = s
	a.order = append(a.order, s.ID)
	return *s
}

func (a *Arena) evictOldest() {
	id := a.order[0]
	a.order = a.order[1:]
	if s, ok := a.sessions[id]; ok {
		if s.State == StateRunning {
			metrics.SessionsActive.Dec()
		}
		delete(a.sessions, id)
		metrics.SessionEvictions.Inc()
	}
}

// Transition moves session id to state to
func (a *Arena) Transition(id string, to SessionState) error {
	return a.finish(id, to, 0, "")
}

// Complete moves a running session to completed
func (a *Arena) Complete(id string, confidence float64) error {
	return a.finish(id, StateCompleted, confidence, "")
}

// Fail moves a running session to failed
func (a *Arena) Fail(id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return a.finish(id, StateFailed, 0, msg)
}

func (a *Arena) finish(id string, to SessionState, confidence float64, errMsg string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if !allowed(s.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.State, to)
	}
	if s.State == StateRunning {
		metrics.SessionsActive.Dec()
	}
	if to == StateRunning {
		metrics.SessionsActive.Inc()
	}
	s.State = to
	s.Confidence = confidence
	s.Error = errMsg
	s.UpdatedAt = time.Now()
	return nil
}

func allowed(from, to SessionState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Get returns a copy of the session
func (a *Arena) Get(id string) (Session, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Len is the number of sessions held
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

// CountByState tallies sessions per state
func (a *Arena) CountByState() map[SessionState]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[SessionState]int, 4)
	for _, s := range a.sessions {
		out[s.State]++
	}
	return out
}

// Reset drops every session. Intended for tests.
func (a *Arena) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range a.sessions {
		if s.State == StateRunning {
			metrics.SessionsActive.Dec()
		}
	}
	a.sessions = make(map[string]*Session)
	a.order = nil
}
