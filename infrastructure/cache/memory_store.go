// Package cache provides ports.CacheStore implementations for catalog
// lookups: an in-process map for single runs and Redis for sharing results
// across runs and machines.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/ahrav/go-bomcheck/internal/ports"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is a mutex-guarded map with per-entry expiry. Expired entries
// are dropped lazily on read.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

var _ ports.CacheStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns a copy of the value stored under key.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		s.mu.Lock()
		if cur, still := s.entries[key]; still && cur.expiresAt.Equal(e.expiresAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

// Set stores a copy of value. A zero expiration never expires.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, expiration time.Duration) error {
	e := memoryEntry{value: append([]byte(nil), value...)}
	if expiration > 0 {
		e.expiresAt = s.now().Add(expiration)
	}

	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
	return nil
}

// Delete removes key. Missing keys are not an error.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Clear removes every entry.
func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	s.entries = make(map[string]memoryEntry)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
