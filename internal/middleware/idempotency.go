package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/echospot/echospot/internal/idempotency"
)

// IdempotencyKeyHeader is the HTTP header name for idempotency keys.
const IdempotencyKeyHeader = "Idempotency-Key"

// IdempotentReplayHeader marks a response served from the idempotency cache.
const IdempotentReplayHeader = "Idempotent-Replayed"

// Error codes written by Idempotency.
const (
	ErrorCodeInvalidIdempotencyKey = "invalid_idempotency_key"
	ErrorCodeIdempotencyKeyTooLong = "idempotency_key_too_long"
	ErrorCodeIdempotencyKeyInUse   = "idempotency_key_in_use"
	ErrorCodeIdempotencyKeyReused  = "idempotency_key_reused"
)

// idempotencyResponseWriter passes the response through and keeps a copy.
type idempotencyResponseWriter struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
	written    bool
}

func (w *idempotencyResponseWriter) WriteHeader(statusCode int) {
	if !w.written {
		w.statusCode = statusCode
		w.written = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *idempotencyResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.statusCode = http.StatusOK
		w.written = true
	}
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency replays the first successful response for a repeated
// Idempotency-Key. Requests without the header pass through unchanged.
// A key still being processed yields 409; a key first used on another route
// yields 422. Non-2xx responses release the key so the client can retry.
// Repository errors fail open.
func Idempotency(repo idempotency.Repository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyKeyHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			if err := idempotency.ValidateKey(key); err != nil {
				if errors.Is(err, idempotency.ErrKeyTooLong) {
					writeIdempotencyError(ctx, w, http.StatusBadRequest, ErrorCodeIdempotencyKeyTooLong,
						"Idempotency-Key exceeds maximum length of 64 characters")
					return
				}
				writeIdempotencyError(ctx, w, http.StatusBadRequest, ErrorCodeInvalidIdempotencyKey,
					"Invalid Idempotency-Key format")
				return
			}

			route := r.Method + " " + r.URL.Path
			existing, err := repo.Get(ctx, key)
			switch {
			case err == nil:
				replay(ctx, w, existing, route, key)
				return
			case !errors.Is(err, idempotency.ErrKeyNotFound):
				slog.ErrorContext(ctx, "failed to check idempotency key", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			err = repo.Reserve(ctx, &idempotency.Record{Key: key, Method: r.Method, Route: route})
			switch {
			case errors.Is(err, idempotency.ErrKeyExists):
				writeIdempotencyError(ctx, w, http.StatusConflict, ErrorCodeIdempotencyKeyInUse,
					"A request with this Idempotency-Key is still being processed")
				return
			case err != nil:
				slog.ErrorContext(ctx, "failed to reserve idempotency key", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			capture := &idempotencyResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(capture, r)

			// The client may be gone; the record must still be written.
			storeCtx := context.WithoutCancel(ctx)
			if capture.statusCode < 200 || capture.statusCode >= 300 {
				if err := repo.Release(storeCtx, key); err != nil {
					slog.ErrorContext(ctx, "failed to release idempotency key", "key", key, "error", err)
				}
				return
			}

			body := capture.body.String()
			if err := repo.Complete(storeCtx, &idempotency.Record{
				Key:                key,
				Method:             r.Method,
				Route:              route,
				ResponseHash:       idempotency.ComputeResponseHash(body),
				ResponseBody:       body,
				ResponseStatusCode: capture.statusCode,
			}); err != nil {
				slog.ErrorContext(ctx, "failed to store idempotency key", "key", key, "error", err)
			}
		})
	}
}

func replay(ctx context.Context, w http.ResponseWriter, rec *idempotency.Record, route, key string) {
	if rec.Route != route {
		writeIdempotencyError(ctx, w, http.StatusUnprocessableEntity, ErrorCodeIdempotencyKeyReused,
			"Idempotency-Key was already used for a different request")
		return
	}
	if rec.Status != idempotency.StatusCompleted {
		writeIdempotencyError(ctx, w, http.StatusConflict, ErrorCodeIdempotencyKeyInUse,
			"A request with this Idempotency-Key is still being processed")
		return
	}
	if idempotency.ComputeResponseHash(rec.ResponseBody) != rec.ResponseHash {
		slog.WarnContext(ctx, "idempotency record hash mismatch", "key", key)
	}

	slog.InfoContext(ctx, "idempotency key found, returning cached response",
		"key", key,
		"status", rec.ResponseStatusCode,
	)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(IdempotentReplayHeader, "true")
	w.WriteHeader(rec.ResponseStatusCode)
	_, _ = io.WriteString(w, rec.ResponseBody)
}

func writeIdempotencyError(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	SetErrorCode(ctx, code)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]map[string]string{
		"error": {"code": code, "message": message},
	})
}
