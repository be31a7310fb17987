package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/avclink-core/internal/alert"
	"github.com/nerrad567/avclink-core/internal/connection"
	"github.com/nerrad567/avclink-core/internal/device"
	"github.com/nerrad567/avclink-core/internal/history"
	"github.com/nerrad567/avclink-core/internal/session"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeConflict       = "conflict"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeMethodNotAllow = "method_not_allowed"
	ErrCodeRateLimited    = "rate_limited"
	ErrCodeUnavailable    = "unavailable"
	ErrCodeTimeout        = "timeout"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps package sentinel errors to HTTP responses. Anything
// unrecognised is logged and reported as a 500 with fallback as message.
func (s *Server) writeDomainError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound),
		errors.Is(err, alert.ErrAlertNotFound),
		errors.Is(err, session.ErrUnknownDevice):
		writeNotFound(w, err.Error())
	case errors.Is(err, device.ErrDeviceExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, device.ErrInvalidName),
		errors.Is(err, device.ErrInvalidCategory),
		errors.Is(err, device.ErrInvalidIdentifier),
		errors.Is(err, device.ErrInvalidDevice),
		errors.Is(err, device.ErrInvalidStatus),
		errors.Is(err, device.ErrInvalidSettings),
		errors.Is(err, alert.ErrInvalidAlert),
		errors.Is(err, history.ErrInvalidEvent),
		errors.Is(err, connection.ErrInvalidTarget):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, connection.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	default:
		s.logger.Error(fallback, "error", err)
		writeInternalError(w, fallback)
	}
}
