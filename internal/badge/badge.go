// Package badge keeps per-user badge scores and post counters up to date
// after each successful spot ingestion.
package badge

import (
	"context"
	"errors"
	"fmt"

	"github.com/echospot/echospot/internal/spot"
	"github.com/echospot/echospot/internal/user"
)

// DefaultAward is the score added per ingested spot.
const DefaultAward = 10

// ErrInvalidAward is returned for non-positive award values.
var ErrInvalidAward = errors.New("award must be positive")

// Repository stores badge scores.
type Repository interface {
	// Add atomically adds points to username's score, creating the row when
	// absent, and returns the new score.
	Add(ctx context.Context, username string, points int) (int, error)

	// Score returns username's score, 0 when no row exists.
	Score(ctx context.Context, username string) (int, error)
}

// Counter applies the post-ingestion counter updates.
type Counter struct {
	badges Repository
	spots  spot.Repository
	users  user.Repository
	award  int
}

// NewCounter creates a Counter. award <= 0 uses DefaultAward.
func NewCounter(badges Repository, spots spot.Repository, users user.Repository, award int) *Counter {
	if award <= 0 {
		award = DefaultAward
	}
	return &Counter{badges: badges, spots: spots, users: users, award: award}
}

// AwardOnIngestion adds the configured award to username's badge score and
// returns the new score. Concurrent calls never lose updates.
func (c *Counter) AwardOnIngestion(ctx context.Context, username string) (int, error) {
	score, err := c.badges.Add(ctx, username, c.award)
	if err != nil {
		return 0, fmt.Errorf("failed to award badge points: %w", err)
	}
	return score, nil
}

// RecomputePostCount sets username's post count to the number of stored spots
// and returns it. Repeating it without new spots yields the same value.
func (c *Counter) RecomputePostCount(ctx context.Context, username string) (int, error) {
	n, err := c.spots.CountByUsername(ctx, username)
	if err != nil {
		return 0, fmt.Errorf("failed to count spots: %w", err)
	}
	if err := c.users.SetPostCount(ctx, username, n); err != nil {
		return 0, fmt.Errorf("failed to store post count: %w", err)
	}
	return n, nil
}

// Score returns username's badge score.
func (c *Counter) Score(ctx context.Context, username string) (int, error) {
	return c.badges.Score(ctx, username)
}
