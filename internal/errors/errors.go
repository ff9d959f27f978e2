// Package errors provides typed application errors for chat replies and the
// admin API.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"flatex_bot/internal/broker/flatex"
	"flatex_bot/internal/session"
)

// Sentinel errors for common error cases.
var (
	// ErrNotFound indicates a resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrUnauthorized indicates a missing token or transaction PIN.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrValidation indicates invalid command input.
	ErrValidation = errors.New("validation error")

	// ErrConflict indicates an operation that is already running.
	ErrConflict = errors.New("conflict")

	// ErrUnavailable indicates the brokerage session is not usable right now.
	ErrUnavailable = errors.New("brokerage unavailable")

	// ErrBrokerage indicates the brokerage rejected the request.
	ErrBrokerage = errors.New("brokerage error")

	// ErrTimeout indicates a wait ran out.
	ErrTimeout = errors.New("timeout")

	// ErrInternal indicates an internal error.
	ErrInternal = errors.New("internal error")

	// ErrRateLimit indicates too many requests.
	ErrRateLimit = errors.New("rate limit exceeded")
)

// AppError is a structured application error.
type AppError struct {
	// Type is the error type (sentinel error).
	Type error
	// Message is the user-facing error message.
	Message string
	// Details contains additional error details.
	Details map[string]any
	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error type.
func (e *AppError) Unwrap() error {
	return e.Type
}

// Is checks if this error matches the target.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Type, target)
}

// New creates a new AppError.
func New(errType error, message string) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
	}
}

// Wrap wraps an error with additional context.
func Wrap(errType error, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
	}
}

// WithDetails adds details to an AppError.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

// NotFoundf creates a not found error with formatting.
func NotFoundf(format string, args ...any) *AppError {
	return &AppError{
		Type:    ErrNotFound,
		Message: fmt.Sprintf(format, args...),
	}
}

// Unauthorized creates an unauthorized error.
func Unauthorized(message string) *AppError {
	if message == "" {
		message = "authentication required"
	}
	return &AppError{
		Type:    ErrUnauthorized,
		Message: message,
	}
}

// Validation creates a validation error.
func Validation(message string) *AppError {
	return &AppError{
		Type:    ErrValidation,
		Message: message,
	}
}

// Internal creates an internal error.
func Internal(message string, cause error) *AppError {
	return &AppError{
		Type:    ErrInternal,
		Message: message,
		Cause:   cause,
	}
}

// Translate maps brokerage and session failures onto application errors.
// AppErrors pass through unchanged; nil stays nil.
func Translate(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var fe *flatex.Error
	switch {
	case errors.As(err, &fe):
		return &AppError{
			Type:    ErrBrokerage,
			Message: fe.Text,
			Details: map[string]any{"code": fe.Code},
		}
	case errors.Is(err, flatex.ErrUnsupportedOrder):
		return Wrap(ErrValidation, "unsupported order", err)
	case errors.Is(err, session.ErrNotAuthorized):
		return Unauthorized("transaction PIN is not authorized")
	case errors.Is(err, session.ErrNotConnected), errors.Is(err, session.ErrNoAccount):
		return Wrap(ErrUnavailable, "not connected to the brokerage", err)
	case errors.Is(err, session.ErrSessionChanged):
		return Wrap(ErrUnavailable, "session expired during authorization", err)
	case errors.Is(err, session.ErrAuthorizationTimeout), errors.Is(err, context.DeadlineExceeded):
		return Wrap(ErrTimeout, "timed out", err)
	case errors.Is(err, session.ErrAuthorizationInProgress):
		return Wrap(ErrConflict, "authorization already in progress", err)
	case errors.Is(err, flatex.ErrTransport), errors.Is(err, flatex.ErrDecode):
		return Wrap(ErrUnavailable, "brokerage request failed", err)
	default:
		return Internal("unexpected error", err)
	}
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnauthorized checks if an error is an unauthorized error.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// HTTPStatus returns the appropriate HTTP status code for an error.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimit):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrBrokerage):
		return http.StatusBadGateway
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
