package session

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is a process-local Store. Sessions do not survive restarts and
// are not shared between replicas.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	subject   string
	expiresAt time.Time
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{entries: make(map[string]memoryEntry), now: now}
}

func (s *MemoryStore) Put(_ context.Context, token, subject string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[token] = memoryEntry{subject: subject, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, token string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.live(token)
	return entry.subject, ok, nil
}

func (s *MemoryStore) Delete(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.live(token)
	delete(s.entries, token)
	return ok, nil
}

func (s *MemoryStore) RevokeAll(_ context.Context, subject string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	revoked := 0
	for token, entry := range s.entries {
		if entry.subject != subject {
			continue
		}
		if s.now().Before(entry.expiresAt) {
			revoked++
		}
		delete(s.entries, token)
	}
	return revoked, nil
}

// PruneIndexes drops expired entries.
func (s *MemoryStore) PruneIndexes(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pruned := 0
	for token, entry := range s.entries {
		if !s.now().Before(entry.expiresAt) {
			delete(s.entries, token)
			pruned++
		}
	}
	return pruned, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

// live must be called with mu held.
func (s *MemoryStore) live(token string) (memoryEntry, bool) {
	entry, ok := s.entries[token]
	if !ok {
		return memoryEntry{}, false
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.entries, token)
		return memoryEntry{}, false
	}
	return entry, true
}
