package workmem

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Allreality/my-twin/internal/model"
)

type session struct {
	turns      []model.Turn
	lastAppend time.Time
}

// MemoryStore keeps sessions in a process-local map. It is safe for
// concurrent use.
type MemoryStore struct {
	mu       sync.Mutex
	opts     Options
	sessions map[string]*session
	logger   logrus.FieldLogger

	now func() time.Time
}

// NewMemoryStore creates an in-memory working memory.
func NewMemoryStore(opts Options, logger logrus.FieldLogger) *MemoryStore {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MemoryStore{
		opts:     opts.WithDefaults(),
		sessions: make(map[string]*session),
		logger:   logger,
		now:      time.Now,
	}
}

func (m *MemoryStore) Append(_ context.Context, sessionID string, turns ...model.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	s := m.live(sessionID, now)
	if s == nil {
		s = &session{}
		m.sessions[sessionID] = s
	}

	for _, t := range turns {
		if t.Timestamp.IsZero() {
			t.Timestamp = now.UTC()
		}
		s.turns = append(s.turns, t)
	}
	if excess := len(s.turns) - m.opts.MaxTurns; excess > 0 {
		s.turns = append([]model.Turn(nil), s.turns[excess:]...)
		m.logger.WithFields(logrus.Fields{
			"session_id": sessionID,
			"evicted":    excess,
		}).Debug("workmem: evicted oldest turns")
	}
	s.lastAppend = now
	return nil
}

func (m *MemoryStore) Recent(_ context.Context, sessionID string, n int) ([]model.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.live(sessionID, m.now())
	if s == nil {
		return []model.Turn{}, nil
	}
	return tail(s.turns, n), nil
}

func (m *MemoryStore) Clear(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

// SweepExpired drops every session idle longer than IdleTTL and returns
// how many were dropped.
func (m *MemoryStore) SweepExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	dropped := 0
	for id, s := range m.sessions {
		if now.Sub(s.lastAppend) > m.opts.IdleTTL {
			delete(m.sessions, id)
			dropped++
		}
	}
	return dropped
}

// live returns the session or nil, discarding it first if it has expired.
// Must be called with mu held.
func (m *MemoryStore) live(sessionID string, now time.Time) *session {
	s := m.sessions[sessionID]
	if s == nil {
		return nil
	}
	if now.Sub(s.lastAppend) > m.opts.IdleTTL {
		delete(m.sessions, sessionID)
		m.logger.WithField("session_id", sessionID).Debug("workmem: session expired")
		return nil
	}
	return s
}

var _ Store = (*MemoryStore)(nil)
