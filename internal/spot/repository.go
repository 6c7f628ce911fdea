package spot

import "context"

// Repository persists spots.
type Repository interface {
	// Insert stores a new spot, assigning ID and CreatedAt when empty.
	Insert(ctx context.Context, s *Spot) error

	// ListProjections returns every spot's projection.
	ListProjections(ctx context.Context) ([]Projection, error)

	// FindNear returns the spots of username whose coordinates are within
	// tolerance degrees on each axis, in insertion order.
	FindNear(ctx context.Context, username string, lat, lon, tolerance float64) ([]*Spot, error)

	// IncrementViews adds one to the spot's view count.
	// Returns ErrNotFound if the ID is unknown.
	IncrementViews(ctx context.Context, id string) error

	// CountByUsername returns the number of spots submitted by username.
	CountByUsername(ctx context.Context, username string) (int, error)

	// ListByUsername returns the projections of username's spots in insertion order.
	ListByUsername(ctx context.Context, username string) ([]Projection, error)
}
