// Package api provides the HTTP surface of the echospot service: handlers,
// routing and the standard JSON error envelope.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/echospot/echospot/internal/discovery"
	"github.com/echospot/echospot/internal/ingest"
	"github.com/echospot/echospot/internal/middleware"
	"github.com/echospot/echospot/internal/spot"
	"github.com/echospot/echospot/internal/transcribe"
)

// Common error codes used throughout the API.
const (
	// ErrCodeValidation indicates input validation failure.
	ErrCodeValidation = "validation_error"

	// ErrCodeBadRequest indicates a malformed request.
	ErrCodeBadRequest = "bad_request"

	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound = "not_found"

	// ErrCodeLanguageNotSupported indicates a caption language outside the supported set.
	ErrCodeLanguageNotSupported = "language_not_supported"

	// ErrCodeTranslationNotFound indicates the spot has no caption for the language.
	ErrCodeTranslationNotFound = "translation_not_found"

	// ErrCodeSummaryUnavailable indicates the spot was stored without a summary.
	ErrCodeSummaryUnavailable = "summary_unavailable"

	// ErrCodeSpeechUnavailable indicates no speech provider is configured.
	ErrCodeSpeechUnavailable = "speech_unavailable"

	// ErrCodeRateLimited indicates rate limit exceeded.
	ErrCodeRateLimited = middleware.ErrorCodeRateLimited

	// ErrCodeStorage indicates a blob upload failure.
	ErrCodeStorage = "storage_error"

	// ErrCodePersistence indicates the spot row could not be written.
	ErrCodePersistence = "persistence_error"

	// ErrCodeProviderDegraded indicates a speech or translation provider failed.
	ErrCodeProviderDegraded = "provider_degraded"

	// ErrCodeProviderTimeout indicates a provider did not answer in time.
	ErrCodeProviderTimeout = "provider_timeout"

	// ErrCodeMethodNotAllowed indicates the route exists for another method.
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal = "internal_error"
)

// ErrorResponse represents the standard error response format.
// All API errors return JSON in this structure: {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message. Details
// carries store diagnostics for persistence errors and the offending field
// for validation errors.
type ErrorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// WriteError writes a standardized JSON error response and records code for
// the logging middleware.
//
// Format: {"error": {"code": "error_code", "message": "Error description"}}
//
// Example:
//
//	api.WriteError(w, r.Context(), http.StatusNotFound, api.ErrCodeNotFound, "Spot not found")
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	writeError(w, ctx, status, ErrorDetail{Code: code, Message: message})
}

func writeError(w http.ResponseWriter, ctx context.Context, status int, detail ErrorDetail) {
	middleware.SetErrorCode(ctx, detail.Code)

	data, err := json.Marshal(ErrorResponse{Error: detail})
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// StatusCodeMapping returns the recommended HTTP status code for an error code.
func StatusCodeMapping(code string) int {
	switch code {
	case ErrCodeValidation, ErrCodeBadRequest:
		return http.StatusBadRequest
	case ErrCodeNotFound, ErrCodeLanguageNotSupported, ErrCodeTranslationNotFound, ErrCodeSummaryUnavailable:
		return http.StatusNotFound
	case ErrCodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeProviderTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeSpeechUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError maps an error returned by the ingest or discovery layers
// onto the envelope. Infrastructure failures are logged here; their raw
// messages are not exposed except for persistence diagnostics.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	detail := ErrorDetail{Code: ErrCodeInternal, Message: "Internal server error"}

	var (
		validationErr  *ingest.ValidationError
		storageErr     *ingest.StorageError
		persistenceErr *ingest.PersistenceError
		providerErr    *ingest.ProviderError
		failedErr      *transcribe.FailedError
	)

	switch {
	case errors.As(err, &validationErr):
		detail = ErrorDetail{
			Code:    ErrCodeValidation,
			Message: validationErr.Error(),
			Details: map[string]string{"field": validationErr.Field},
		}
	case errors.Is(err, spot.ErrNotFound):
		detail = ErrorDetail{Code: ErrCodeNotFound, Message: "No spot matches the given user and coordinates"}
	case errors.Is(err, discovery.ErrLanguageNotSupported):
		detail = ErrorDetail{Code: ErrCodeLanguageNotSupported, Message: "Language is not supported"}
	case errors.Is(err, discovery.ErrTranslationNotFound):
		detail = ErrorDetail{Code: ErrCodeTranslationNotFound, Message: "No caption stored for this language"}
	case errors.Is(err, discovery.ErrSummaryUnavailable):
		detail = ErrorDetail{Code: ErrCodeSummaryUnavailable, Message: "No summary stored for this spot"}
	case errors.Is(err, discovery.ErrSpeechUnavailable):
		detail = ErrorDetail{Code: ErrCodeSpeechUnavailable, Message: "Speech is not configured"}
	case errors.Is(err, discovery.ErrSpeechFailed):
		detail = ErrorDetail{Code: ErrCodeProviderDegraded, Message: "Speech provider unavailable"}
	case errors.As(err, &storageErr):
		detail = ErrorDetail{Code: ErrCodeStorage, Message: "Failed to store uploaded media"}
	case errors.As(err, &persistenceErr):
		detail = ErrorDetail{Code: ErrCodePersistence, Message: "Failed to save spot"}
		details := map[string]string{}
		for k, v := range map[string]string{
			"code":       persistenceErr.Code,
			"constraint": persistenceErr.Constraint,
			"detail":     persistenceErr.Detail,
			"hint":       persistenceErr.Hint,
		} {
			if v != "" {
				details[k] = v
			}
		}
		if len(details) > 0 {
			detail.Details = details
		}
	case errors.Is(err, transcribe.ErrProviderTimeout):
		detail = ErrorDetail{Code: ErrCodeProviderTimeout, Message: "Transcription provider timed out"}
	case errors.As(err, &providerErr):
		detail = ErrorDetail{
			Code:    ErrCodeProviderDegraded,
			Message: "Translation provider failed",
			Details: map[string]string{"stage": providerErr.Stage},
		}
	case errors.Is(err, ingest.ErrTitleUnavailable),
		errors.Is(err, transcribe.ErrProviderUnavailable),
		errors.As(err, &failedErr):
		detail = ErrorDetail{Code: ErrCodeProviderDegraded, Message: "Transcription provider unavailable"}
	}

	status := StatusCodeMapping(detail.Code)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, "request failed",
			slog.String("code", detail.Code),
			slog.String("error", err.Error()))
	}
	writeError(w, ctx, status, detail)
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}
