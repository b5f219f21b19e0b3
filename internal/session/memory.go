package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEntry struct {
	principal Principal
	expiresAt time.Time
}

// MemoryStore keeps sessions in process memory. It is the fallback when Redis
// is not configured and the double used by tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

// NewMemoryStore builds a store with the given session lifetime and starts the
// expiry janitor.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go s.janitor()
	return s
}

func (s *MemoryStore) Create(_ context.Context, principal *Principal) (string, error) {
	id := uuid.NewString()
	s.mu.Lock()
	s.entries[id] = memoryEntry{principal: *principal, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return id, nil
}

func (s *MemoryStore) Resolve(_ context.Context, id string) (*Principal, error) {
	s.mu.RLock()
	entry, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok || s.now().After(entry.expiresAt) {
		return nil, nil
	}
	principal := entry.principal
	return &principal, nil
}

func (s *MemoryStore) Destroy(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
	return nil
}

// Close stops the janitor goroutine.
func (s *MemoryStore) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *MemoryStore) janitor() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			now := s.now()
			s.mu.Lock()
			for id, entry := range s.entries {
				if now.After(entry.expiresAt) {
					delete(s.entries, id)
				}
			}
			s.mu.Unlock()
		}
	}
}
