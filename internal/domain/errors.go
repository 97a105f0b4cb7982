package domain

import (
	"errors"
	"fmt"
	"time"
)

// Error codes surfaced at the transport boundary. Every engine error maps
// to exactly one code so no failure is ever swallowed into a generic
// success response.
const (
	CodeInvalidObservation  = "INVALID_OBSERVATION"
	CodeWeightMismatch      = "WEIGHT_MISMATCH"
	CodeCaseNotFound        = "CASE_NOT_FOUND"
	CodeAlreadyReviewed     = "ALREADY_REVIEWED"
	CodeForbidden           = "FORBIDDEN"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeInternal            = "INTERNAL_ERROR"
)

// APIError is the structured error response returned by the HTTP boundary.
type APIError struct {
	Code          string    `json:"code"`
	Message       string    `json:"message"`
	Details       string    `json:"details,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAPIError creates an APIError with a UTC timestamp.
func NewAPIError(code, message, details, correlationID string) *APIError {
	return &APIError{
		Code:          code,
		Message:       message,
		Details:       details,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
	}
}

// CodeForError maps an engine error to its boundary error code.
func CodeForError(err error) string {
	switch {
	case errors.Is(err, ErrInvalidObservation):
		return CodeInvalidObservation
	case errors.Is(err, ErrWeightMismatch):
		return CodeWeightMismatch
	case errors.Is(err, ErrCaseNotFound):
		return CodeCaseNotFound
	case errors.Is(err, ErrAlreadyReviewed):
		return CodeAlreadyReviewed
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrUpstreamUnavailable):
		return CodeUpstreamUnavailable
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	default:
		return CodeInternal
	}
}
