/**
 * @description
 * Structured application errors surfaced to RPC callers. Every failure that
 * leaves a procedure is one of these codes; the HTTP status and the
 * JSON-RPC numeric code are derived from it so transports never guess.
 */
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a tRPC-compatible error code.
type Code string

const (
	CodeBadRequest         Code = "BAD_REQUEST"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeForbidden          Code = "FORBIDDEN"
	CodeNotFound           Code = "NOT_FOUND"
	CodeMethodNotSupported Code = "METHOD_NOT_SUPPORTED"
	CodeConflict           Code = "CONFLICT"
	CodeTooManyRequests    Code = "TOO_MANY_REQUESTS"
	CodeInternal           Code = "INTERNAL_SERVER_ERROR"
)

// Error represents a structured application error.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// New creates a new Error.
func New(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

// Unwrap returns the root cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the code to the status a transport should reply with.
func (e *Error) HTTPStatus() int {
	return StatusFor(e.Code)
}

// RPCCode returns the JSON-RPC 2.0 style numeric code tRPC clients expect.
func (e *Error) RPCCode() int {
	switch e.Code {
	case CodeBadRequest:
		return -32600
	case CodeUnauthorized:
		return -32001
	case CodeForbidden:
		return -32003
	case CodeNotFound:
		return -32004
	case CodeMethodNotSupported:
		return -32005
	case CodeConflict:
		return -32009
	case CodeTooManyRequests:
		return -32029
	default:
		return -32603
	}
}

// StatusFor returns the HTTP status for a code.
func StatusFor(code Code) int {
	switch code {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeMethodNotSupported:
		return http.StatusMethodNotAllowed
	case CodeConflict:
		return http.StatusConflict
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func BadRequest(message string) *Error   { return New(CodeBadRequest, message, nil) }
func Unauthorized(message string) *Error { return New(CodeUnauthorized, message, nil) }
func Forbidden(message string) *Error    { return New(CodeForbidden, message, nil) }
func NotFound(message string) *Error     { return New(CodeNotFound, message, nil) }

// Internal wraps an unexpected failure. The cause is kept for logging only.
func Internal(message string, cause error) *Error {
	return New(CodeInternal, message, cause)
}

// As extracts an *Error if present.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// From normalizes any error into an *Error, treating unknown errors as internal.
func From(err error) *Error {
	if appErr := As(err); appErr != nil {
		return appErr
	}
	return Internal("Internal server error", err)
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	appErr := As(err)
	return appErr != nil && appErr.Code == code
}
