// Package domainerrors provides coded errors for domain and service layers.
//
// Services attach a Code so transport layers can map failures to the right
// status without string matching. Guard failures keep their specific kind all
// the way to the caller; nothing is downgraded to a generic failure.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error.
type Code string

const (
	// CodeInvalidInput marks input rejected at a trust boundary (malformed ID,
	// unknown enum value).
	CodeInvalidInput Code = "invalid_input"

	// CodeValidation marks a missing or malformed required field, such as an
	// empty rejection reason.
	CodeValidation Code = "validation_error"

	// CodeBadRequest marks a request that could not be parsed at all.
	CodeBadRequest Code = "bad_request"

	// CodeUnauthorized marks a caller with no usable identity.
	CodeUnauthorized Code = "unauthorized"

	// CodeForbidden marks a role or ownership guard failure.
	CodeForbidden Code = "forbidden"

	// CodeNotFound marks an unknown entity id.
	CodeNotFound Code = "not_found"

	// CodeConflict marks duplicate identity (plot number) or an attempt to
	// re-transition a terminal entity.
	CodeConflict Code = "conflict"

	// CodePreconditionFailed marks an operation attempted before its
	// preconditions hold, e.g. approval before both sub-flags are true.
	CodePreconditionFailed Code = "precondition_failed"

	// CodeInvalidState marks a status transition that is not legal from the
	// entity's current state.
	CodeInvalidState Code = "invalid_state"

	// CodeInvariantViolation marks a model-level invariant breach detected
	// inside an entity method. Services usually translate it to a more
	// caller-facing code.
	CodeInvariantViolation Code = "invariant_violation"

	// CodeTimeout marks an aborted operation due to context cancellation.
	CodeTimeout Code = "timeout"

	// CodeInternal marks unexpected infrastructure failure.
	CodeInternal Code = "internal_error"
)

// Error is a coded domain error. It wraps an optional cause.
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

func (e *Error) Unwrap() error {
	return e.cause
}

// New creates a coded error with no cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. The cause remains
// reachable via errors.Unwrap / errors.Is.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
		if err == nil {
			return false
		}
	}
	return false
}

// Is is an alias for HasCode kept for call-site readability.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost code in the chain, or CodeInternal when the
// error carries no code.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the outermost coded message, or empty when uncoded.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}
