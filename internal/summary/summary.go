// Package summary holds pending spot summaries between the title suggestion
// and the submission that consumes them.
//
// Each entry is keyed by a random token handed to the client. Entries expire
// after a short TTL and are deleted when claimed, so one summary can be
// attached to at most one spot. Only the recording's owner can claim an owned
// entry; a claim by anyone else leaves it in place.
package summary

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL is how long a pending summary stays claimable.
const DefaultTTL = 30 * time.Minute

// Claim errors.
var (
	// ErrNotFound is returned when a token is unknown, expired or already claimed.
	ErrNotFound = errors.New("pending summary not found")

	// ErrNotOwner is returned when the entry belongs to another user.
	ErrNotOwner = errors.New("pending summary belongs to another user")
)

// Entry is a pending summary produced by chaptered transcription.
type Entry struct {
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Username  string    `json:"username,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is set by Put.
	ExpiresAt time.Time `json:"expires_at"`
}

// TTL returns how long e stays claimable after now, 0 once expired.
func (e Entry) TTL(now time.Time) time.Duration {
	if d := e.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// claimableBy reports whether username may claim e. Entries without an owner
// are claimable by anyone.
func (e Entry) claimableBy(username string) bool {
	return e.Username == "" || e.Username == username
}

// Store keeps pending summaries.
type Store interface {
	// Put stores e under token for ttl.
	Put(ctx context.Context, token string, e Entry, ttl time.Duration) error

	// Claim returns and deletes the entry under token in one step when it
	// is claimable by username. Returns ErrNotFound when no live entry exists
	// and ErrNotOwner, leaving the entry in place, when it belongs to
	// another user.
	Claim(ctx context.Context, token, username string) (*Entry, error)
}
