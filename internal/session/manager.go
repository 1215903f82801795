package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/videoprompt/internal/logger"
	"github.com/local/videoprompt/internal/metrics"
)

var ErrNotFound = errors.New("session not found")

// Manager keeps sessions in memory. Nothing survives a restart.
type Manager struct {
	deps    Deps
	idleTTL time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(deps Deps, idleTTL time.Duration) *Manager {
	return &Manager{deps: deps, idleTTL: idleTTL, sessions: make(map[string]*Session)}
}

func (m *Manager) Create() *Session {
	s := New(uuid.NewString(), m.deps)
	m.mu.Lock()
	m.sessions[s.ID()] = s
	n := len(m.sessions)
	m.mu.Unlock()

	metrics.SetActiveSessions(n)
	log.Debug().Str("session_id", s.ID()).Msg("session created")
	return s
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Delete drops a session. A generation still in flight finishes in the
// background and its outcome is discarded.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	metrics.SetActiveSessions(n)
	m.forget(ctx, id)
	return nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep evicts sessions idle for longer than the TTL and returns how many
// were dropped. Busy sessions are never evicted. The mirrored status of an
// evicted session is left for the store to expire, so Archived can still
// report it.
func (m *Manager) Sweep(ctx context.Context, now time.Time) int {
	if m.idleTTL <= 0 {
		return 0
	}
	var expired []string
	m.mu.Lock()
	for id, s := range m.sessions {
		last, idle := s.idleSince()
		if idle && now.Sub(last) > m.idleTTL {
			expired = append(expired, id)
			delete(m.sessions, id)
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()

	if len(expired) > 0 {
		metrics.SetActiveSessions(n)
		log.Info().Int("evicted", len(expired)).Int("active", n).Msg("idle sessions evicted")
	}
	return len(expired)
}

// Run sweeps every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	lg := logger.Component("janitor")
	lg.Info().Dur("every", every).Dur("idle_ttl", m.idleTTL).Msg("session janitor started")

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			lg.Info().Int("active", m.Len()).Msg("session janitor stopped")
			return
		case now := <-t.C:
			m.Sweep(ctx, now)
		}
	}
}

// Archived returns the last mirrored status of a session that is no longer
// held in memory. It reports false when there is no status store, when the
// session is still live, or when the entry has expired.
func (m *Manager) Archived(ctx context.Context, id string) (Status, bool) {
	if m.deps.Status == nil {
		return Status{}, false
	}
	if _, err := m.Get(id); err == nil {
		return Status{}, false
	}
	st, ok, err := m.deps.Status.Get(ctx, id)
	if err != nil {
		log.Debug().Err(err).Str("session_id", id).Msg("status lookup failed")
		return Status{}, false
	}
	return st, ok
}

func (m *Manager) forget(ctx context.Context, id string) {
	if m.deps.Status == nil {
		return
	}
	if err := m.deps.Status.Delete(ctx, id); err != nil {
		log.Debug().Err(err).Str("session_id", id).Msg("status delete failed")
	}
}
