package badge

import (
	"context"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
type InMemoryRepository struct {
	mu     sync.Mutex
	scores map[string]int
}

var _ Repository = (*InMemoryRepository)(nil)

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{scores: make(map[string]int)}
}

// Add adds points to username's score under the lock.
func (r *InMemoryRepository) Add(ctx context.Context, username string, points int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if points <= 0 {
		return 0, ErrInvalidAward
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.scores[username] += points
	return r.scores[username], nil
}

// Score returns username's score.
func (r *InMemoryRepository) Score(ctx context.Context, username string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scores[username], nil
}
