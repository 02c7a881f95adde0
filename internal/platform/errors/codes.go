// Package errors provides the structured error type shared by the interview
// engine and its transports.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Session errors
	CodeSessionNotFound  Code = "SESSION_NOT_FOUND"
	CodeSessionAbandoned Code = "SESSION_ABANDONED"
	CodeSessionBusy      Code = "SESSION_BUSY"
	CodeInvalidState     Code = "INVALID_STATE"
	CodeNotOwner         Code = "NOT_OWNER"
	CodeNotComplete      Code = "SESSION_NOT_COMPLETE"

	// Answer errors
	CodeEmptyAnswer Code = "EMPTY_ANSWER"

	// Evaluation errors
	CodeRateLimited      Code = "RATE_LIMITED"
	CodeEvaluationFailed Code = "EVALUATION_FAILED"

	// Stream errors
	CodeSubscriptionDropped Code = "SUBSCRIPTION_DROPPED"

	// Request errors
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeUnauthenticated Code = "UNAUTHENTICATED"
)

// Kind groups codes by how a caller should react to them.
type Kind string

const (
	// KindFatal means the caller must stop and not retry.
	KindFatal Kind = "fatal"
	// KindRateLimit means the caller may retry after the supplied delay.
	KindRateLimit Kind = "rate_limit"
	// KindValidation means the request was rejected and state is unchanged.
	KindValidation Kind = "validation"
	// KindGeneral covers everything else.
	KindGeneral Kind = "general"
)

// Kind returns the default kind for a code.
func (c Code) Kind() Kind {
	switch c {
	case CodeSessionNotFound, CodeSessionAbandoned, CodeNotOwner, CodeUnauthenticated:
		return KindFatal
	case CodeRateLimited:
		return KindRateLimit
	case CodeSessionBusy, CodeInvalidState, CodeEmptyAnswer, CodeInvalidArgument, CodeNotComplete:
		return KindValidation
	default:
		return KindGeneral
	}
}

// HTTPStatus maps a code to the status used by the lifecycle HTTP surface.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeSessionNotFound:
		return http.StatusNotFound
	case CodeSessionAbandoned, CodeInvalidState, CodeSessionBusy, CodeNotComplete:
		return http.StatusConflict
	case CodeNotOwner:
		return http.StatusForbidden
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeEmptyAnswer, CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeEvaluationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
