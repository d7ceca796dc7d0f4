package models

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeValidation represents invalid request input (400)
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfiguration represents invalid request or server configuration (400)
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypeProvider represents backend provider errors (502)
	ErrorTypeProvider ErrorType = "provider"
	// ErrorTypeTimeout represents a single attempt exceeding its deadline (504)
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeRateLimit represents an explicit rate-limit signal from a provider (429)
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeAllCandidatesFailed represents exhaustion of every ordered candidate (502)
	ErrorTypeAllCandidatesFailed ErrorType = "all_candidates_failed"
	// ErrorTypeInternal represents internal server errors (500)
	ErrorTypeInternal ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType     `json:"type"`
	Message    string        `json:"message"`
	Code       string        `json:"code,omitzero"`
	StatusCode int           `json:"-"`
	Retryable  bool          `json:"retryable"`
	RetryAfter time.Duration `json:"-"`
	Cause      error         `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap allows error unwrapping
func (e *AppError) Unwrap() error {
	return e.Cause
}

// GetStatusCode returns the HTTP status code for the error
func (e *AppError) GetStatusCode() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}

	switch e.Type {
	case ErrorTypeValidation, ErrorTypeConfiguration:
		return http.StatusBadRequest
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeProvider, ErrorTypeAllCandidatesFailed:
		return http.StatusBadGateway
	case ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// AsAppError extracts an *AppError from an error chain, if present
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsTimeout reports whether err is (or wraps) a timeout AppError
func IsTimeout(err error) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Type == ErrorTypeTimeout
}

// IsRateLimit reports whether err is (or wraps) a rate-limit AppError
func IsRateLimit(err error) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Type == ErrorTypeRateLimit
}

// NewValidationError creates a validation error
func NewValidationError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Retryable:  false,
		Cause:      cause,
	}
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeConfiguration,
		Message:    message,
		Code:       "INVALID_CONFIGURATION",
		StatusCode: http.StatusBadRequest,
		Retryable:  false,
		Cause:      cause,
	}
}

// NewProviderError creates a provider error attributed to one candidate
func NewProviderError(provider, message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeProvider,
		Message:    fmt.Sprintf("provider %s error: %s", provider, message),
		Code:       fmt.Sprintf("PROVIDER_%s_ERROR", provider),
		StatusCode: http.StatusBadGateway,
		Retryable:  true,
		Cause:      cause,
	}
}

// NewTimeoutError creates a timeout error for a single attempt
func NewTimeoutError(operation string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeTimeout,
		Message:    fmt.Sprintf("operation %s timed out", operation),
		StatusCode: http.StatusGatewayTimeout,
		Retryable:  false,
		Cause:      cause,
	}
}

// NewRateLimitError creates a rate limit error. retryAfter carries the
// server-suggested delay when the provider supplied one, zero otherwise.
func NewRateLimitError(provider string, retryAfter time.Duration, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeRateLimit,
		Message:    fmt.Sprintf("provider %s rate limited the request", provider),
		Code:       "RATE_LIMIT_EXCEEDED",
		StatusCode: http.StatusTooManyRequests,
		Retryable:  true,
		RetryAfter: retryAfter,
		Cause:      cause,
	}
}

// NewAllCandidatesFailedError creates the terminal error returned when every
// ordered candidate failed or none were eligible.
func NewAllCandidatesFailedError(fingerprint string, attempted int) *AppError {
	return &AppError{
		Type:       ErrorTypeAllCandidatesFailed,
		Message:    fmt.Sprintf("all candidates failed for request %s (%d attempted)", fingerprint, attempted),
		Code:       "ALL_CANDIDATES_FAILED",
		StatusCode: http.StatusBadGateway,
		Retryable:  true,
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Retryable:  false,
		Cause:      cause,
	}
}

// SanitizeError sanitizes an error for external consumption
func SanitizeError(err error) *AppError {
	if appErr, ok := AsAppError(err); ok {
		return &AppError{
			Type:       appErr.Type,
			Message:    appErr.Message,
			Code:       appErr.Code,
			StatusCode: appErr.GetStatusCode(),
			Retryable:  appErr.Retryable,
		}
	}
	return NewInternalError("an unexpected error occurred", err)
}
