// Package sessionmgr is the top-level registry of live terminal sessions:
// it owns id generation, session creation/lookup/removal, and fans a
// Close out to every session on shutdown.
package sessionmgr

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ptyfan/ptyfan/internal/sessionstore"
	"github.com/ptyfan/ptyfan/internal/terminal"
)

const (
	idLength   = 8
	idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	maxIDTries = 16
)

// Manager tracks every live *terminal.Session, keyed by its id.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*terminal.Session

	store *sessionstore.Store
}

// New constructs an empty Manager. store may be nil, in which case
// lifecycle events are simply not persisted.
func New(store *sessionstore.Store) *Manager {
	return &Manager{
		sessions: make(map[string]*terminal.Session),
		store:    store,
	}
}

// CreateSession generates a fresh collision-free id, starts a new
// terminal session with cfg, and registers it. On success the session is
// already running (its PTY spawned).
func (m *Manager) CreateSession(ctx context.Context, cfg terminal.Config, cols, rows int, cmd string) (*terminal.Session, error) {
	id, err := m.newID()
	if err != nil {
		return nil, err
	}

	sess := terminal.New(id, cfg)
	if err := sess.Start(cols, rows, cmd); err != nil {
		sess.Close()
		return nil, fmt.Errorf("sessionmgr: starting session %q: %w", id, err)
	}

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()

	if err := m.store.RecordCreated(ctx, id, sess.CreatedAt()); err != nil {
		slog.Warn("sessionmgr: failed to persist session creation", "session_id", id, "error", err)
	}

	slog.Info("sessionmgr: session created", "session_id", id)
	return sess, nil
}

// GetSession returns the session with the given id, or false if not
// found.
func (m *Manager) GetSession(id string) (*terminal.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// RemoveSession closes and deregisters the session with the given id.
// Safe to call on an id that is absent or already removed.
func (m *Manager) RemoveSession(ctx context.Context, id string) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	peak := sess.PeakClients()
	sess.Close()

	if err := m.store.RecordClosed(ctx, id, time.Now().UTC(), peak); err != nil {
		slog.Warn("sessionmgr: failed to persist session close", "session_id", id, "error", err)
	}
	slog.Info("sessionmgr: session removed", "session_id", id)
}

// Shutdown closes every tracked session and waits for each to finish
// tearing down before returning, so no PTY fds or child processes remain
// once it returns.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(len(ids))
	for _, id := range ids {
		id := id
		go func() {
			defer wg.Done()
			m.RemoveSession(ctx, id)
		}()
	}
	wg.Wait()
}

// Count returns the number of currently registered sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Summary is a point-in-time view of one session's status, for the
// GET /api/sessions surface.
type Summary struct {
	ID      string    `json:"id"`
	Created time.Time `json:"created"`
	Clients int       `json:"clients"`
	Alive   bool      `json:"alive"`
}

// Snapshot returns a Summary for every currently registered session.
func (m *Manager) Snapshot() []Summary {
	m.mu.RLock()
	sessions := make([]*terminal.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	out := make([]Summary, 0, len(sessions))
	for _, s := range sessions {
		alive, clients := s.Status()
		out = append(out, Summary{
			ID:      s.ID(),
			Created: s.CreatedAt(),
			Clients: clients,
			Alive:   alive,
		})
	}
	return out
}

// newID generates an idLength-character [a-z0-9] id, retrying on
// collision against the live registry.
func (m *Manager) newID() (string, error) {
	for i := 0; i < maxIDTries; i++ {
		id, err := randomID()
		if err != nil {
			return "", err
		}

		m.mu.RLock()
		_, exists := m.sessions[id]
		m.mu.RUnlock()

		if !exists {
			return id, nil
		}
	}
	return "", fmt.Errorf("sessionmgr: could not generate a unique session id after %d tries", maxIDTries)
}

func randomID() (string, error) {
	b := make([]byte, idLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("sessionmgr: generating random id: %w", err)
	}
	out := make([]byte, idLength)
	for i, c := range b {
		out[i] = idAlphabet[int(c)%len(idAlphabet)]
	}
	return string(out), nil
}
