// Package errors provides structured error handling for the coaching core.
package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Idempotency errors
	CodeIdempotencyKeyRequired      Code = "IDEMPOTENCY_KEY_REQUIRED"
	CodeIdempotencyKeyInvalid       Code = "IDEMPOTENCY_KEY_INVALID"
	CodeIdempotencyKeyReuseConflict Code = "IDEMPOTENCY_KEY_REUSE_CONFLICT"
	CodeIdempotencyInProgress       Code = "IDEMPOTENCY_IN_PROGRESS"

	// Access errors
	CodeAccessDenied Code = "ACCESS_DENIED"

	// Pair errors
	CodePairAlreadyExists           Code = "PAIR_ALREADY_EXISTS"
	CodePairInvalidStatusTransition Code = "PAIR_INVALID_STATUS_TRANSITION"

	// Match errors
	CodeMatchInvalidStatusTransition Code = "MATCH_INVALID_STATUS_TRANSITION"
	CodeMatchResponseRequired        Code = "MATCH_RESPONSE_REQUIRED"

	// Activity errors
	CodeActivityInvalidStatusTransition Code = "ACTIVITY_INVALID_STATUS_TRANSITION"
	CodeActivityInvalidOutcome          Code = "ACTIVITY_INVALID_OUTCOME"

	// Questionnaire session errors
	CodeSessionInvalidStatusTransition Code = "SESSION_INVALID_STATUS_TRANSITION"

	// Trait catalog errors
	CodeQuestionInvalid Code = "QUESTION_INVALID"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeIdempotencyKeyRequired,
		CodeIdempotencyKeyInvalid,
		CodeMatchResponseRequired,
		CodeActivityInvalidOutcome,
		CodeQuestionInvalid:
		return codes.InvalidArgument

	// PermissionDenied - role mismatch
	case CodeAccessDenied:
		return codes.PermissionDenied

	// FailedPrecondition - illegal state transitions
	case CodePairAlreadyExists,
		CodePairInvalidStatusTransition,
		CodeMatchInvalidStatusTransition,
		CodeActivityInvalidStatusTransition,
		CodeSessionInvalidStatusTransition:
		return codes.FailedPrecondition

	// Aborted - retryable duplicate-submission conflicts
	case CodeIdempotencyKeyReuseConflict,
		CodeIdempotencyInProgress:
		return codes.Aborted

	// NotFound - missing entities
	case CodeNotFound:
		return codes.NotFound

	default:
		return codes.Internal
	}
}

// HTTPStatus maps domain codes to the HTTP status recorded in stored response
// envelopes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeIdempotencyKeyRequired,
		CodeIdempotencyKeyInvalid,
		CodeMatchResponseRequired,
		CodeActivityInvalidOutcome,
		CodeQuestionInvalid:
		return http.StatusBadRequest
	case CodeAccessDenied:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeIdempotencyKeyReuseConflict,
		CodeIdempotencyInProgress,
		CodePairAlreadyExists,
		CodePairInvalidStatusTransition,
		CodeMatchInvalidStatusTransition,
		CodeActivityInvalidStatusTransition,
		CodeSessionInvalidStatusTransition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
