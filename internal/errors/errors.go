// Package errors defines service errors carrying HTTP status metadata.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Code identifies a class of service error.
type Code string

const (
	CodeBadRequest        Code = "BAD_REQUEST"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeRateLimited       Code = "RATE_LIMITED"
	CodeInternal          Code = "INTERNAL"
	CodeInvalidToken      Code = "INVALID_TOKEN"
	CodeSessionExpired    Code = "SESSION_EXPIRED"
	CodeValidationFailure Code = "VALIDATION_FAILURE"
)

// ServiceError is an error with an HTTP mapping and optional details.
type ServiceError struct {
	Code       Code                   `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	cause      error
}

func (e *ServiceError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.cause }

// WithDetails attaches a detail key/value and returns the error.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func newError(code Code, status int, message string, cause error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, cause: cause}
}

// BadRequest marks a malformed or invalid request.
func BadRequest(message string) *ServiceError {
	return newError(CodeBadRequest, http.StatusBadRequest, message, nil)
}

// Unauthorized marks a request without valid credentials.
func Unauthorized(message string) *ServiceError {
	return newError(CodeUnauthorized, http.StatusUnauthorized, message, nil)
}

// Forbidden marks a request the caller's role does not permit.
func Forbidden(message string) *ServiceError {
	return newError(CodeForbidden, http.StatusForbidden, message, nil)
}

// NotFound marks a missing resource.
func NotFound(message string) *ServiceError {
	return newError(CodeNotFound, http.StatusNotFound, message, nil)
}

// Conflict marks a uniqueness or state conflict.
func Conflict(message string) *ServiceError {
	return newError(CodeConflict, http.StatusConflict, message, nil)
}

// InvalidToken marks an unparseable or failed-verification token.
func InvalidToken(cause error) *ServiceError {
	return newError(CodeInvalidToken, http.StatusUnauthorized, "Invalid or expired token", cause)
}

// SessionExpired marks a revoked or expired session.
func SessionExpired() *ServiceError {
	return newError(CodeSessionExpired, http.StatusUnauthorized, "Session expired or revoked", nil)
}

// RateLimitExceeded marks a throttled request.
func RateLimitExceeded(limit int, window string) *ServiceError {
	e := newError(CodeRateLimited, http.StatusTooManyRequests, "Rate limit exceeded", nil)
	return e.WithDetails("limit", limit).WithDetails("window", window)
}

// Internal marks an unexpected failure.
func Internal(message string, cause error) *ServiceError {
	return newError(CodeInternal, http.StatusInternalServerError, message, cause)
}

// GetServiceError extracts a ServiceError from an error chain, or nil.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se
	}
	return nil
}
