// Package session tracks active client sessions on the streaming transport.
// The manager enforces a global session ceiling and evicts idle sessions on a
// background sweep. It owns all session state; no other component keeps a
// session reference beyond a single request.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrSessionNotFound is returned by Touch for closed, expired, or unknown
// sessions. The caller must open a fresh session.
var ErrSessionNotFound = errors.New("session not found")

// Session is the bookkeeping record for one client connection.
type Session struct {
	ID             string
	CreatedAt      time.Time
	LastActivityAt time.Time
}

// ExpiresAt is always LastActivityAt + idleTimeout; any activity resets it.
func (s *Session) ExpiresAt(idleTimeout time.Duration) time.Time {
	return s.LastActivityAt.Add(idleTimeout)
}

// Config holds the manager's admission-control knobs.
type Config struct {
	// IdleTimeout is how long a session may sit without activity.
	IdleTimeout time.Duration
	// MaxSessions is the global ceiling. Opening past it evicts the
	// least-recently-active session.
	MaxSessions int
	// SweepInterval is how often the background sweep runs.
	SweepInterval time.Duration
}

// DefaultConfig returns the default session policy.
func DefaultConfig() Config {
	return Config{
		IdleTimeout:   15 * time.Minute,
		MaxSessions:   64,
		SweepInterval: time.Minute,
	}
}

// Manager owns the session table.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock injects a clock for idle-timeout tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a session manager.
func NewManager(cfg Config, logger *zap.Logger, opts ...Option) *Manager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultConfig().IdleTimeout
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultConfig().MaxSessions
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultConfig().SweepInterval
	}

	m := &Manager{
		sessions: make(map[string]*Session),
		cfg:      cfg,
		logger:   logger.Named("session"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open creates a new session and returns its ID. If the table is at the
// ceiling, exactly one session is evicted first: the least recently active.
// Open never blocks.
func (m *Manager) Open() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) >= m.cfg.MaxSessions {
		m.evictOldestLocked()
	}

	now := m.now()
	s := &Session{
		ID:             uuid.NewString(),
		CreatedAt:      now,
		LastActivityAt: now,
	}
	m.sessions[s.ID] = s

	m.logger.Debug("Session opened",
		zap.String("session_id", s.ID),
		zap.Int("active", len(m.sessions)),
	)
	return s.ID
}

// Touch resets the session's idle clock. Returns ErrSessionNotFound if the
// session was evicted or never existed.
func (m *Manager) Touch(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	s.LastActivityAt = m.now()
	return nil
}

// Close removes the session immediately. Idempotent: closing an unknown
// session is not an error.
func (m *Manager) Close(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sessionID]; ok {
		delete(m.sessions, sessionID)
		m.logger.Debug("Session closed",
			zap.String("session_id", sessionID),
			zap.Int("active", len(m.sessions)),
		)
	}
}

// Get returns a copy of the session record, if it exists.
func (m *Manager) Get(sessionID string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// ActiveCount returns the number of live sessions.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// IdleTimeout returns the configured idle timeout.
func (m *Manager) IdleTimeout() time.Duration {
	return m.cfg.IdleTimeout
}

// Sweep removes all sessions whose expiry has passed and returns how many
// were removed. The expiry decision reads LastActivityAt under the table
// lock, so a Touch racing the sweep always wins if it lands first.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, s := range m.sessions {
		if now.After(s.ExpiresAt(m.cfg.IdleTimeout)) {
			delete(m.sessions, id)
			removed++
		}
	}

	if removed > 0 {
		m.logger.Debug("Idle sessions swept",
			zap.Int("removed", removed),
			zap.Int("active", len(m.sessions)),
		)
	}
	return removed
}

// Run drives the background sweep until ctx is cancelled. Eviction only
// removes gateway bookkeeping; connection teardown belongs to the transport.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// evictOldestLocked removes the least-recently-active session. Must hold mu.
func (m *Manager) evictOldestLocked() {
	var oldestID string
	var oldestTime time.Time
	first := true

	for id, s := range m.sessions {
		if first || s.LastActivityAt.Before(oldestTime) {
			oldestID = id
			oldestTime = s.LastActivityAt
			first = false
		}
	}

	if oldestID != "" {
		delete(m.sessions, oldestID)
		m.logger.Info("Session evicted at ceiling",
			zap.String("session_id", oldestID),
			zap.Time("last_activity", oldestTime),
		)
	}
}
