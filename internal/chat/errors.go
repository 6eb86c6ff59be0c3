// ABOUTME: Typed command errors with wire-level codes
// ABOUTME: Every failed command acknowledgment carries one of these codes

package chat

import (
	"errors"
	"fmt"
)

// Code classifies a command failure for the client.
type Code string

const (
	// CodeUnauthenticated: no or invalid credential, or a command issued
	// before authentication completed.
	CodeUnauthenticated Code = "unauthenticated"
	// CodeNotAMember: caller is not a durable member of the conversation.
	CodeNotAMember Code = "not_a_member"
	// CodeNotFound: the conversation or message does not exist.
	CodeNotFound Code = "not_found"
	// CodeForbidden: caller is a member but lacks the specific permission.
	CodeForbidden Code = "forbidden"
	// CodeValidationFailed: the command payload is malformed.
	CodeValidationFailed Code = "validation_failed"
	// CodeTransient: the store is temporarily unavailable; retryable.
	CodeTransient Code = "transient"
)

// Error is the failure type every command handler returns. Validation
// and authorization failures are reported only to the originating
// connection, never broadcast.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// NewError creates an error with the given code and message.
func NewError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapTransient marks a store failure as retryable without leaking the
// underlying error text to the client.
func WrapTransient(err error) *Error {
	return &Error{Code: CodeTransient, Message: "temporarily unavailable, retry", cause: err}
}

// AsError extracts a *Error from err, or wraps it as transient when the
// failure came from an untyped layer.
func AsError(err error) *Error {
	var cmdErr *Error
	if errors.As(err, &cmdErr) {
		return cmdErr
	}
	return WrapTransient(err)
}
