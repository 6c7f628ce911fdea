// Package validate provides centralized input validation and sanitization
// for spot submissions and discovery queries.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// String validation errors
var (
	ErrStringTooShort    = errors.New("string is too short")
	ErrStringTooLong     = errors.New("string is too long")
	ErrInvalidCharacters = errors.New("string contains invalid characters")
	ErrEmpty             = errors.New("string is empty")
)

// StringConstraints defines validation constraints for a string.
type StringConstraints struct {
	MinLength      int            // Minimum length (0 = no minimum)
	MaxLength      int            // Maximum length (0 = no maximum)
	AllowedPattern *regexp.Regexp // Optional regex pattern for allowed characters
	AllowEmpty     bool           // Whether empty strings are allowed
	TrimSpace      bool           // Whether to trim whitespace before validation
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// String validates a string against the given constraints.
// Returns the validated (and optionally trimmed) string and an error if validation fails.
func String(s string, constraints StringConstraints) (string, error) {
	if constraints.TrimSpace {
		s = strings.TrimSpace(s)
	}

	if s == "" {
		if !constraints.AllowEmpty {
			return "", ErrEmpty
		}
		return s, nil
	}

	// Character count, not byte count
	length := utf8.RuneCountInString(s)

	if constraints.MinLength > 0 && length < constraints.MinLength {
		return "", fmt.Errorf("%w: got %d chars, need at least %d", ErrStringTooShort, length, constraints.MinLength)
	}

	if constraints.MaxLength > 0 && length > constraints.MaxLength {
		return "", fmt.Errorf("%w: got %d chars, maximum is %d", ErrStringTooLong, length, constraints.MaxLength)
	}

	if constraints.AllowedPattern != nil && !constraints.AllowedPattern.MatchString(s) {
		return "", fmt.Errorf("%w: does not match required pattern", ErrInvalidCharacters)
	}

	return s, nil
}

// Username validates a submitting username:
// - 1-64 characters
// - Letters, numbers, dot, dash, underscore only
//
// Usernames are part of a spot's identity, so they are never HTML-escaped.
func Username(name string) (string, error) {
	return String(name, StringConstraints{
		MinLength:      1,
		MaxLength:      64,
		AllowedPattern: usernamePattern,
		TrimSpace:      true,
	})
}

// SpotName validates a spot's display name: required, max 120 characters.
func SpotName(name string) (string, error) {
	return String(name, StringConstraints{
		MinLength: 1,
		MaxLength: 120,
		TrimSpace: true,
	})
}

// Category validates an optional spot category, max 60 characters.
func Category(category string) (string, error) {
	return String(category, StringConstraints{
		MaxLength:  60,
		AllowEmpty: true,
		TrimSpace:  true,
	})
}

// Description validates a description field:
// - Optional (can be empty)
// - Max 5000 characters
func Description(desc string) (string, error) {
	return String(desc, StringConstraints{
		MaxLength:  5000,
		AllowEmpty: true,
		TrimSpace:  true,
	})
}
