// Package idempotency stores replayable responses for retried submissions,
// keyed by the client-supplied Idempotency-Key header.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// Status constants for idempotency keys.
//
// A key is StatusProcessing from the moment the first request reserves it
// until its response is recorded, then StatusCompleted.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
)

var (
	// ErrKeyNotFound is returned when an idempotency key is not found.
	ErrKeyNotFound = errors.New("idempotency key not found")

	// ErrKeyExists is returned when reserving a key that is already held.
	ErrKeyExists = errors.New("idempotency key already exists")

	// ErrInvalidKey is returned when the key is empty or contains control characters.
	ErrInvalidKey = errors.New("invalid idempotency key")

	// ErrKeyTooLong is returned when the key exceeds maximum length.
	ErrKeyTooLong = errors.New("idempotency key exceeds maximum length of 64 characters")
)

// MaxKeyLength is the maximum allowed length for an idempotency key.
const MaxKeyLength = 64

// DefaultExpiry is how long a completed response stays replayable.
const DefaultExpiry = 24 * time.Hour

// Record is a reserved or completed key with its cached response.
type Record struct {
	Key                string    `json:"key"`
	Method             string    `json:"method"`
	Route              string    `json:"route"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
	ResponseHash       string    `json:"response_hash,omitempty"`
	ResponseBody       string    `json:"response_body,omitempty"`
	ResponseStatusCode int       `json:"response_status_code,omitempty"`
}

// ValidateKey checks if an idempotency key is valid.
// Returns ErrInvalidKey if the key is empty or not printable ASCII.
// Returns ErrKeyTooLong if the key exceeds MaxKeyLength.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	for i := 0; i < len(key); i++ {
		if key[i] < 0x21 || key[i] > 0x7e {
			return ErrInvalidKey
		}
	}
	return nil
}

// ComputeResponseHash computes a SHA256 hash of the response body.
func ComputeResponseHash(responseBody string) string {
	hash := sha256.Sum256([]byte(responseBody))
	return hex.EncodeToString(hash[:])
}

// Repository persists idempotency keys.
type Repository interface {
	// Get returns the record for key or ErrKeyNotFound.
	Get(ctx context.Context, key string) (*Record, error)

	// Reserve atomically creates a StatusProcessing record.
	// Returns ErrKeyExists if the key is already held.
	Reserve(ctx context.Context, record *Record) error

	// Complete stores the response for a reserved key and marks it completed.
	Complete(ctx context.Context, record *Record) error

	// Release drops a reservation so the request can be retried.
	Release(ctx context.Context, key string) error

	// DeleteOlderThan removes records older than the given duration.
	DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error)
}
