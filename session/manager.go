package session

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// ErrUnknownSession is wrapped when an id does not name an open session.
var ErrUnknownSession = errors.New("session: unknown session")

// Manager owns the open sessions (tabs) and which one is active. Sessions
// share the compiler and options but nothing else.
type Manager struct {
	compiler Compiler
	opts     []Option

	mu       sync.Mutex
	sessions []*Session
	active   string
}

// NewManager returns a manager creating sessions with compiler and opts.
func NewManager(compiler Compiler, opts ...Option) *Manager {
	return &Manager{compiler: compiler, opts: opts}
}

// Open creates a session holding e, activates it and returns it.
func (m *Manager) Open(e string) *Session {
	opts := append(slices.Clone(m.opts), WithID(uuid.NewString()))
	s := New(m.compiler, opts...)
	if e != "" {
		s.SetExpression(e)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions, s)
	m.active = s.ID()
	return s
}

// Duplicate opens a new session with the expression of session id.
func (m *Manager) Duplicate(id string) (*Session, error) {
	src, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return m.Open(src.Expression()), nil
}

// Get returns the session with the given id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.index(id); i >= 0 {
		return m.sessions[i], nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
}

// Close closes and removes a session. When it was active, the next session
// (or the previous one when it was last) becomes active.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	i := m.index(id)
	if i < 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	s := m.sessions[i]
	m.sessions = slices.Delete(m.sessions, i, i+1)
	if m.active == id {
		m.active = ""
		if n := len(m.sessions); n > 0 {
			m.active = m.sessions[min(i, n-1)].ID()
		}
	}
	m.mu.Unlock()

	s.Close()
	return nil
}

// Activate makes session id the active one.
func (m *Manager) Activate(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index(id) < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	m.active = id
	return nil
}

// Active returns the active session, or nil when none is open.
func (m *Manager) Active() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.index(m.active); i >= 0 {
		return m.sessions[i]
	}
	return nil
}

// List returns the open sessions in tab order.
func (m *Manager) List() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.sessions)
}

// CloseAll closes every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = nil
	m.active = ""
	m.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}

func (m *Manager) index(id string) int {
	return slices.IndexFunc(m.sessions, func(s *Session) bool { return s.ID() == id })
}
