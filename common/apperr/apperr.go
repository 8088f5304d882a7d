// Package apperr provides a typed application error with an HTTP status
// mapping, following the error kinds named in spec.md §7.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors, one per spec.md §7 kind.
var (
	ErrValidation  = errors.New("validation error")
	ErrAuthFailed  = errors.New("authentication failed")
	ErrForbidden   = errors.New("forbidden")
	ErrNotFound    = errors.New("not found")
	ErrRateLimited = errors.New("rate limited")
	ErrTransient   = errors.New("transient failure")
	ErrFatal       = errors.New("fatal error")
)

// AppError is the structured error type gateway handlers and middleware
// translate into a JSON response body.
type AppError struct {
	Code    string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// Validation creates a 400 error.
func Validation(message string) *AppError {
	return &AppError{Code: "validation_error", Message: message, Status: http.StatusBadRequest, Err: ErrValidation}
}

// Unauthorized creates a 401 error (AuthFailed kind).
func Unauthorized(message string) *AppError {
	return &AppError{Code: "auth_failed", Message: message, Status: http.StatusUnauthorized, Err: ErrAuthFailed}
}

// Forbidden creates a 403 error.
func Forbidden(message string) *AppError {
	return &AppError{Code: "forbidden", Message: message, Status: http.StatusForbidden, Err: ErrForbidden}
}

// NotFound creates a 404 error.
func NotFound(message string) *AppError {
	return &AppError{Code: "not_found", Message: message, Status: http.StatusNotFound, Err: ErrNotFound}
}

// RateLimited creates the 429 error body shape spec.md §6 pins exactly.
func RateLimited() *AppError {
	return &AppError{
		Code:    "rate_limit_exceeded",
		Message: "Too many requests. Please try again later.",
		Status:  http.StatusTooManyRequests,
		Err:     ErrRateLimited,
	}
}

// ServiceUnavailable creates a 503 error for transient downstream failures.
func ServiceUnavailable(message string) *AppError {
	return &AppError{Code: "service_unavailable", Message: message, Status: http.StatusServiceUnavailable, Err: ErrTransient}
}

// Internal creates a 500 error wrapping err.
func Internal(err error) *AppError {
	return &AppError{Code: "internal_error", Message: "an internal error occurred", Status: http.StatusInternalServerError, Err: err}
}

// HTTPStatus resolves the HTTP status code for err, defaulting to 500 for
// errors with no known mapping.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrAuthFailed):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
