package idempotency

import (
	"context"
	"sync"
	"time"
)

// InMemoryRepository implements Repository with in-memory storage.
type InMemoryRepository struct {
	mu   sync.RWMutex
	keys map[string]*Record
	now  func() time.Time
}

// NewInMemoryRepository creates a new in-memory idempotency key repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		keys: make(map[string]*Record),
		now:  time.Now,
	}
}

// Get retrieves a record by its key value.
// Returns ErrKeyNotFound if the key doesn't exist.
func (r *InMemoryRepository) Get(_ context.Context, key string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.keys[key]
	if !ok {
		return nil, ErrKeyNotFound
	}

	// Return a copy to prevent external mutation
	out := *record
	return &out, nil
}

// Reserve stores a processing record.
// Returns ErrKeyExists if the key already exists.
func (r *InMemoryRepository) Reserve(_ context.Context, record *Record) error {
	if err := ValidateKey(record.Key); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.keys[record.Key]; exists {
		return ErrKeyExists
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = r.now()
	}
	stored := *record
	stored.Status = StatusProcessing
	r.keys[record.Key] = &stored
	return nil
}

// Complete records the response for a reserved key.
func (r *InMemoryRepository) Complete(_ context.Context, record *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.keys[record.Key]
	if !ok {
		return ErrKeyNotFound
	}

	stored := *record
	stored.CreatedAt = existing.CreatedAt
	stored.Status = StatusCompleted
	r.keys[record.Key] = &stored
	return nil
}

// Release removes the key if present.
func (r *InMemoryRepository) Release(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.keys, key)
	return nil
}

// DeleteOlderThan removes records older than age.
// Returns the number of keys deleted.
func (r *InMemoryRepository) DeleteOlderThan(_ context.Context, age time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-age)
	var deleted int64
	for key, record := range r.keys {
		if record.CreatedAt.Before(cutoff) {
			delete(r.keys, key)
			deleted++
		}
	}
	return deleted, nil
}
