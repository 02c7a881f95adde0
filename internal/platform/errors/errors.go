package errors

import (
	stderrors "errors"
	"time"
)

// Error is the domain error type with a reaction kind.
type Error struct {
	Code       Code          // Machine-readable error code
	Message    string        // Human-readable message
	RetryAfter time.Duration // Set for rate-limited failures
	Cause      error         // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil && e.Message == "" {
		return e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Kind returns the reaction kind of the error.
func (e *Error) Kind() Kind {
	return e.Code.Kind()
}

// New creates a simple domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// RateLimited creates a retryable error carrying the suggested delay.
func RateLimited(message string, retryAfter time.Duration, cause error) *Error {
	return &Error{
		Code:       CodeRateLimited,
		Message:    message,
		RetryAfter: retryAfter,
		Cause:      cause,
	}
}

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var target *Error
	if stderrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf returns the code of err, or CodeUnknown.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeUnknown
}

// KindOf returns the reaction kind of err. Errors outside this package are
// general.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok {
		return e.Kind()
	}
	return KindGeneral
}

// RetryAfterOf returns the retry delay attached to a rate-limited error.
func RetryAfterOf(err error) time.Duration {
	if e, ok := As(err); ok {
		return e.RetryAfter
	}
	return 0
}

// ProtocolKind narrows a kind to the values exposed to realtime clients:
// fatal, rate_limit and general.
func ProtocolKind(err error) Kind {
	switch kind := KindOf(err); kind {
	case KindFatal, KindRateLimit:
		return kind
	default:
		return KindGeneral
	}
}

// HTTPStatusOf maps err to an HTTP status code.
func HTTPStatusOf(err error) int {
	return CodeOf(err).HTTPStatus()
}
