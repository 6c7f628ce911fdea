package spot

import (
	"context"
	"sync"
	"time"

	"github.com/echospot/echospot/internal/geo"
	"github.com/google/uuid"
)

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex; spots are kept in insertion order.
type InMemoryRepository struct {
	mu    sync.RWMutex
	spots []*Spot
	byID  map[string]*Spot
	now   func() time.Time
}

var _ Repository = (*InMemoryRepository)(nil)

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		byID: make(map[string]*Spot),
		now:  time.Now,
	}
}

// Insert stores a deep copy of s and writes the assigned ID and CreatedAt back.
func (r *InMemoryRepository) Insert(ctx context.Context, s *Spot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = r.now().UTC()
	}

	stored := s.Clone()
	r.spots = append(r.spots, stored)
	r.byID[stored.ID] = stored
	return nil
}

// ListProjections returns every spot's projection in insertion order.
func (r *InMemoryRepository) ListProjections(ctx context.Context) ([]Projection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Projection, 0, len(r.spots))
	for _, s := range r.spots {
		out = append(out, s.Projection())
	}
	return out, nil
}

// FindNear returns copies of matching spots in insertion order.
func (r *InMemoryRepository) FindNear(ctx context.Context, username string, lat, lon, tolerance float64) ([]*Spot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Spot
	for _, s := range r.spots {
		if s.Username == username && geo.SamePoint(s.Latitude, s.Longitude, lat, lon, tolerance) {
			out = append(out, s.Clone())
		}
	}
	return out, nil
}

// IncrementViews adds one to the spot's view count.
func (r *InMemoryRepository) IncrementViews(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	s.ViewCount++
	return nil
}

// CountByUsername returns the number of spots submitted by username.
func (r *InMemoryRepository) CountByUsername(ctx context.Context, username string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, s := range r.spots {
		if s.Username == username {
			n++
		}
	}
	return n, nil
}

// ListByUsername returns username's projections in insertion order.
func (r *InMemoryRepository) ListByUsername(ctx context.Context, username string) ([]Projection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []Projection{}
	for _, s := range r.spots {
		if s.Username == username {
			out = append(out, s.Projection())
		}
	}
	return out, nil
}
