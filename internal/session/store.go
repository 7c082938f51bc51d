// Package session implements per-user batch capture: a start command opens a
// recording session, forwarded content is buffered silently, and an end
// command hands the batch to the archival pipeline.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/memohai/archivist/internal/channel"
)

// Session is one user's in-progress batch.
type Session struct {
	Key             string
	Channel         channel.ChannelType
	UserID          string
	ReplyTarget     string
	ContextLabel    string
	Texts           []string
	AttachmentPaths []string
	StartedAt       time.Time
	UpdatedAt       time.Time
}

func (s Session) clone() Session {
	s.Texts = append([]string(nil), s.Texts...)
	s.AttachmentPaths = append([]string(nil), s.AttachmentPaths...)
	return s
}

// Store keeps at most one session per user key. Implementations must be safe
// for concurrent use.
type Store interface {
	// Start stores s, replacing and returning any previous session.
	Start(s Session) (previous Session, replaced bool)
	// Append adds texts then attachment paths in order. It reports false when
	// no session is active for key.
	Append(key string, texts, attachmentPaths []string, at time.Time) bool
	// Pop removes and returns the session for key.
	Pop(key string) (Session, bool)
	Get(key string) (Session, bool)
	// Expire removes and returns every session idle since before cutoff.
	Expire(cutoff time.Time) []Session
}

// MemoryStore is an in-process Store. A restart loses every session.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string]*Session{}}
}

func (m *MemoryStore) Start(s Session) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.sessions[s.Key]
	fresh := s.clone()
	m.sessions[s.Key] = &fresh
	if !ok {
		return Session{}, false
	}
	return *prev, true
}

func (m *MemoryStore) Append(key string, texts, attachmentPaths []string, at time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		return false
	}
	s.Texts = append(s.Texts, texts...)
	s.AttachmentPaths = append(s.AttachmentPaths, attachmentPaths...)
	s.UpdatedAt = at
	return true
}

func (m *MemoryStore) Pop(key string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		return Session{}, false
	}
	delete(m.sessions, key)
	return *s, true
}

func (m *MemoryStore) Get(key string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		return Session{}, false
	}
	return s.clone(), true
}

func (m *MemoryStore) Expire(cutoff time.Time) []Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expired []Session
	for key, s := range m.sessions {
		if s.UpdatedAt.Before(cutoff) {
			expired = append(expired, *s)
			delete(m.sessions, key)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].Key < expired[j].Key })
	return expired
}
