// Package apierr defines the error taxonomy the admission surface maps onto
// HTTP status codes and stable error codes.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, machine-readable error token returned in the error envelope.
type Code string

const (
	CodeValidation        Code = "validation_error"
	CodeNotFound          Code = "not_found"
	CodeConflict          Code = "conflict"
	CodeRateLimited       Code = "rate_limited"
	CodeGatewayError      Code = "gateway_error"
	CodeDeadlineExceeded  Code = "deadline_exceeded"
	CodeInternal          Code = "internal_error"
)

// Error is a tagged error carrying the HTTP status and stable code the
// admission surface should respond with. Internals are never surfaced
// verbatim — Message is the sanitized, user-facing text.
type Error struct {
	Code    Code
	Status  int
	Message string
	Details any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

func newErr(code Code, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Validation builds a 400 validation error, optionally carrying field-level details.
func Validation(message string, details any) *Error {
	return &Error{Code: CodeValidation, Status: http.StatusBadRequest, Message: message, Details: details}
}

// NotFound builds a 404 error.
func NotFound(message string) *Error {
	return newErr(CodeNotFound, http.StatusNotFound, message)
}

// Conflict builds a 409 error, used for active-cap breaches and disallowed
// state transitions.
func Conflict(message string) *Error {
	return newErr(CodeConflict, http.StatusConflict, message)
}

// RateLimited builds a 429 error.
func RateLimited(message string) *Error {
	return newErr(CodeRateLimited, http.StatusTooManyRequests, message)
}

// GatewayError builds a 502 error for a cluster operation that exhausted its retries.
func GatewayError(cause error) *Error {
	return &Error{Code: CodeGatewayError, Status: http.StatusBadGateway, Message: "the cluster gateway failed", cause: cause}
}

// DeadlineExceeded builds a 504 error for a run whose shared deadline expired.
func DeadlineExceeded(message string) *Error {
	return newErr(CodeDeadlineExceeded, http.StatusGatewayTimeout, message)
}

// Internal builds a 500 error, wrapping cause without exposing it to the caller.
func Internal(cause error) *Error {
	return &Error{Code: CodeInternal, Status: http.StatusInternalServerError, Message: "an internal error occurred", cause: cause}
}

// As extracts an *Error from err, if any wraps one.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsDeadlineExceeded reports whether err is (or wraps) a deadline-exceeded error.
func IsDeadlineExceeded(err error) bool {
	e, ok := As(err)
	return ok && e.Code == CodeDeadlineExceeded
}
