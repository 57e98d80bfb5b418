package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/calderml/sweep/internal/api/shared"
	"github.com/calderml/sweep/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, store.ErrStudyNotFound),
		errors.Is(err, store.ErrTrialNotFound):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, store.ErrStudyNameExists),
		errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict

	// Bad request errors
	case errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, store.ErrStudyNotFound):
		return "Study not found"

	case errors.Is(err, store.ErrTrialNotFound):
		return "Trial not found"

	case errors.Is(err, store.ErrStudyNameExists):
		return "Study name already exists"

	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid entity data"

	default:
		return "An unexpected error occurred"
	}
}

// RespondWithJSON writes payload as the JSON response body with the
// given status code.
func RespondWithJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if payload == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response",
			"error", err,
			"path", r.URL.Path,
			"trace_id", shared.GetTraceID(r.Context()))
	}
}

// RespondWithError writes a sanitized error response, tagged with the
// request's trace ID so clients can reference it in reports.
func RespondWithError(w http.ResponseWriter, r *http.Request, status int, message string) {
	RespondWithJSON(w, r, status, ErrorResponse{
		Error:   message,
		TraceID: shared.GetTraceID(r.Context()),
	})
}

// HandleAPIError maps err onto a status code and safe message and writes
// the error response. An explicit message overrides the derived one.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := MapErrorToStatusCode(err)
	if message == "" {
		message = GetSafeErrorMessage(err)
	}

	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"error", err,
			"path", r.URL.Path,
			"trace_id", shared.GetTraceID(r.Context()))
	}

	RespondWithError(w, r, status, message)
}
