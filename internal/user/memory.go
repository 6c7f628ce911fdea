package user

import (
	"context"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
type InMemoryRepository struct {
	mu    sync.RWMutex
	users map[string]User
}

var _ Repository = (*InMemoryRepository)(nil)

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{users: make(map[string]User)}
}

// Put stores u, replacing any existing row.
func (r *InMemoryRepository) Put(u User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.Username] = u
}

// Get returns a copy of the user row.
func (r *InMemoryRepository) Get(ctx context.Context, username string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[username]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

// SetPostCount upserts username's post count.
func (r *InMemoryRepository) SetPostCount(ctx context.Context, username string, n int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[username]
	if !ok {
		u = User{Username: username, PreferredLanguage: DefaultPreferredLanguage}
	}
	u.PostCount = n
	r.users[username] = u
	return nil
}
