package session

import (
	"context"
	"sync"
	"time"

	"github.com/crestwave/acs/internal/domain"
)

// MemoryStore is a process-local SessionStore for single-instance
// deployments and tests. Expired entries are dropped lazily on read.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]memoryEntry
	ttl      time.Duration
}

type memoryEntry struct {
	session  domain.CwmpSession
	deadline time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &MemoryStore{sessions: make(map[string]memoryEntry), ttl: ttl}
}

func (s *MemoryStore) Get(_ context.Context, deviceKey string) (*domain.CwmpSession, error) {
	s.mu.RLock()
	entry, ok := s.sessions[deviceKey]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	if time.Now().After(entry.deadline) {
		s.mu.Lock()
		delete(s.sessions, deviceKey)
		s.mu.Unlock()
		return nil, domain.ErrSessionExpired
	}
	sess := entry.session
	return &sess, nil
}

func (s *MemoryStore) Save(_ context.Context, sess *domain.CwmpSession) error {
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	sess.UpdatedAt = time.Now()
	s.mu.Lock()
	s.sessions[sess.DeviceKey] = memoryEntry{session: *sess, deadline: time.Now().Add(s.ttl)}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, deviceKey string) error {
	s.mu.Lock()
	delete(s.sessions, deviceKey)
	s.mu.Unlock()
	return nil
}
