package translate

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoProvider is returned for every target when no provider is configured.
var ErrNoProvider = errors.New("no translation provider configured")

// Provider translates text between locales.
type Provider interface {
	Translate(ctx context.Context, text, sourceLocale, targetLocale string) (string, error)
}

// Captions maps language code to caption text.
type Captions map[string]string

// FailedError reports a single target language that could not be translated.
type FailedError struct {
	Target string
	Cause  error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("translation to %s failed: %v", e.Target, e.Cause)
}

func (e *FailedError) Unwrap() error {
	return e.Cause
}
