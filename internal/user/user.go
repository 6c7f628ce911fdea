// Package user provides profile rows and their post counters.
package user

import (
	"context"
	"errors"
)

// DefaultPreferredLanguage is recorded for rows created outside signup.
const DefaultPreferredLanguage = "EN"

// ErrNotFound is returned when a user row does not exist.
var ErrNotFound = errors.New("user not found")

// User is a profile row.
type User struct {
	Username          string `json:"username"`
	ProfilePic        string `json:"profile_pic"`
	PreferredLanguage string `json:"preferlng"`
	PostCount         int    `json:"post_count"`
}

// Repository persists user rows.
type Repository interface {
	// Get returns the user row for username or ErrNotFound.
	Get(ctx context.Context, username string) (*User, error)

	// SetPostCount stores n as username's post count, creating the row
	// with defaults when it does not exist.
	SetPostCount(ctx context.Context, username string, n int) error
}
