package ingest

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestNewPersistenceError(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		wantCode       string
		wantConstraint string
		wantDetail     string
	}{
		{
			name:           "postgres check violation",
			err:            &pq.Error{Code: "23514", Constraint: "spots_longitude_check", Detail: "Failing row"},
			wantCode:       "23514",
			wantConstraint: "spots_longitude_check",
			wantDetail:     "Failing row",
		},
		{
			name:       "postgres message used when detail is empty",
			err:        fmt.Errorf("insert: %w", &pq.Error{Code: "23502", Message: "null value in column \"username\""}),
			wantCode:   "23502",
			wantDetail: "null value in column \"username\"",
		},
		{
			name: "mongo duplicate key",
			err: mongo.WriteException{WriteErrors: []mongo.WriteError{
				{Code: 11000, Message: "E11000 duplicate key error collection: echospot.spots"},
			}},
			wantCode:       "11000",
			wantConstraint: "duplicate_key",
			wantDetail:     "E11000 duplicate key error collection: echospot.spots",
		},
		{
			name: "plain error",
			err:  errors.New("connection reset"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe := newPersistenceError(tt.err)
			if pe.Code != tt.wantCode || pe.Constraint != tt.wantConstraint || pe.Detail != tt.wantDetail {
				t.Errorf("got code=%q constraint=%q detail=%q", pe.Code, pe.Constraint, pe.Detail)
			}
			if pe.Unwrap() == nil {
				t.Error("PersistenceError should wrap the original error")
			}
		})
	}
}

func TestSideEffectError(t *testing.T) {
	err := &SideEffectError{Effect: EffectBadgeAward, Err: errors.New("timeout")}
	if got := err.Error(); got != "badge_award: timeout" {
		t.Errorf("Error() = %q", got)
	}
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{Field: "latitude", Message: "out of range"}
	if got := err.Error(); got != "invalid latitude: out of range" {
		t.Errorf("Error() = %q", got)
	}
}
