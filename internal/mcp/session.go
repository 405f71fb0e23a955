package mcp

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one live protocol session. Requests within a session are
// serialized on its mutex; the registry itself only maps ids to sessions.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu sync.Mutex
}

func newSession() *Session {
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
}

// SessionStore maps session ids to live sessions. Implementations must be
// safe for concurrent use.
type SessionStore interface {
	Get(id string) (*Session, bool)
	Put(s *Session)
	Delete(id string)
	Len() int
}

// MemorySessionStore is the in-process SessionStore. It is the only
// implementation and makes the server single-instance: session ids are
// meaningless on any other process.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*Session)}
}

func (m *MemorySessionStore) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *MemorySessionStore) Put(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
}

func (m *MemorySessionStore) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

func (m *MemorySessionStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
