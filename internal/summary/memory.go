package summary

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	entry     Entry
	expiresAt time.Time
}

// MemoryStore is a single-process Store for development and tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Put stores e under token for ttl. Expired entries are swept on each Put.
func (s *MemoryStore) Put(ctx context.Context, token string, e Entry, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, v := range s.entries {
		if !now.Before(v.expiresAt) {
			delete(s.entries, k)
		}
	}
	e.ExpiresAt = now.Add(ttl)
	s.entries[token] = memoryEntry{entry: e, expiresAt: e.ExpiresAt}
	return nil
}

// Claim returns and deletes the live entry under token if username may claim it.
func (s *MemoryStore) Claim(ctx context.Context, token, username string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.entries[token]
	if !ok {
		return nil, ErrNotFound
	}
	if !s.now().Before(v.expiresAt) {
		delete(s.entries, token)
		return nil, ErrNotFound
	}
	if !v.entry.claimableBy(username) {
		return nil, ErrNotOwner
	}
	delete(s.entries, token)
	e := v.entry
	return &e, nil
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
