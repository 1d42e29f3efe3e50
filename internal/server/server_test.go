package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/datavis-labs/lightdash-mcp-server/internal/session"
)

func TestEnsureSession_ReusesLiveSession(t *testing.T) {
	mgr := session.NewManager(session.Config{
		IdleTimeout:   time.Minute,
		MaxSessions:   4,
		SweepInterval: time.Minute,
	}, zap.NewNop())

	s := &Server{sessions: mgr, logger: zap.NewNop()}
	s.sessionID = mgr.Open()

	first := s.ensureSession()
	assert.Equal(t, s.sessionID, first)
	assert.Equal(t, first, s.ensureSession())
	assert.Equal(t, 1, mgr.ActiveCount())
}

func TestEnsureSession_ReopensAfterEviction(t *testing.T) {
	mgr := session.NewManager(session.Config{
		IdleTimeout:   time.Minute,
		MaxSessions:   4,
		SweepInterval: time.Minute,
	}, zap.NewNop())

	s := &Server{sessions: mgr, logger: zap.NewNop()}
	s.sessionID = mgr.Open()
	first := s.ensureSession()

	// The sweeper evicting the connection's session must not strand the
	// still-open transport.
	mgr.Close(first)

	second := s.ensureSession()
	require.NotEqual(t, first, second)
	assert.Equal(t, second, s.sessionID)

	_, ok := mgr.Get(second)
	assert.True(t, ok)
}
