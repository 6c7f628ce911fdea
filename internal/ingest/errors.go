package ingest

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
	"go.mongodb.org/mongo-driver/mongo"
)

// ValidationError reports a submission rejected before any side effect.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// StorageError reports a blob upload failure. Nothing was persisted.
type StorageError struct {
	Bucket string
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("failed to store object in %s: %v", e.Bucket, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PersistenceError reports a failed spot insert with the store's diagnostics.
type PersistenceError struct {
	Code       string // SQLSTATE or Mongo error code
	Constraint string
	Detail     string
	Hint       string
	Err        error
}

func (e *PersistenceError) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("failed to persist spot (constraint %s): %v", e.Constraint, e.Err)
	}
	return fmt.Sprintf("failed to persist spot: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// newPersistenceError copies diagnostics from Postgres and MongoDB errors.
func newPersistenceError(err error) *PersistenceError {
	pe := &PersistenceError{Err: err}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		pe.Code = string(pqErr.Code)
		pe.Constraint = pqErr.Constraint
		pe.Detail = pqErr.Detail
		pe.Hint = pqErr.Hint
		if pe.Detail == "" {
			pe.Detail = pqErr.Message
		}
		return pe
	}

	var writeErr mongo.WriteException
	if errors.As(err, &writeErr) && len(writeErr.WriteErrors) > 0 {
		first := writeErr.WriteErrors[0]
		pe.Code = fmt.Sprint(first.Code)
		pe.Detail = first.Message
		if mongo.IsDuplicateKeyError(err) {
			pe.Constraint = "duplicate_key"
		}
	}
	return pe
}

// ProviderError aborts a submission when a provider fails under the fail policy.
type ProviderError struct {
	Stage string
	Err   error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider failed during %s: %v", e.Stage, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Warning kinds reported on an otherwise successful submission.
const (
	WarningProviderDegraded   = "provider_degraded"
	WarningSummaryUnavailable = "summary_unavailable"
	WarningImageUnsanitized   = "image_unsanitized"
)

// Warning describes a degraded stage of a successful submission.
type Warning struct {
	Kind    string `json:"kind"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// Side effects run after the spot is persisted.
const (
	EffectBadgeAward = "badge_award"
	EffectPostCount  = "post_count"
)

// SideEffectError reports a post-insert hook that failed. The spot stays persisted.
type SideEffectError struct {
	Effect string
	Err    error
}

func (e *SideEffectError) Error() string {
	return fmt.Sprintf("%s: %v", e.Effect, e.Err)
}

func (e *SideEffectError) Unwrap() error { return e.Err }
