// Package errors provides standardized error handling for the loan pipeline.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Transient infrastructure errors: retried via the trigger's native
	// redelivery mechanism.
	ErrCodeDatabaseUnavailable ErrorCode = "DATABASE_UNAVAILABLE"
	ErrCodeTransactionFailed   ErrorCode = "TRANSACTION_FAILED"
	ErrCodePublishFailed       ErrorCode = "PUBLISH_FAILED"
	ErrCodeQueueReceiveFailed  ErrorCode = "QUEUE_RECEIVE_FAILED"
	ErrCodeBulkWriteFailed     ErrorCode = "BULK_WRITE_FAILED"

	// Malformed input: non-retryable, the affected unit of work is dropped.
	ErrCodeMalformedEnvelope ErrorCode = "MALFORMED_ENVELOPE"
	ErrCodeInvalidEvent      ErrorCode = "INVALID_EVENT"

	// Conflicting state transition: expected under duplicate delivery,
	// swallowed as "already handled".
	ErrCodeStateConflict ErrorCode = "STATE_CONFLICT"

	// Retry exhaustion on the best-effort notification path.
	ErrCodeRetryExhausted ErrorCode = "RETRY_EXHAUSTED"

	ErrCodeApplicationNotFound ErrorCode = "APPLICATION_NOT_FOUND"
	ErrCodeValidationFailed    ErrorCode = "VALIDATION_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// ==========================
// 2. Error Constructors
// ==========================

// NewDatabaseUnavailableError creates a retryable database error.
func NewDatabaseUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseUnavailable,
		Message:   "Database unavailable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewTransactionFailedError creates a retryable transaction error. Nothing
// from the failed transaction is visible; the inbound message is redelivered.
func NewTransactionFailedError(stage string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTransactionFailed,
		Message:   "Atomic stage transaction failed",
		Details:   fmt.Sprintf("stage: %s, error: %s", stage, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewPublishFailedError creates a retryable transport publish error. The
// outbox record stays PENDING and is retried on redelivery.
func NewPublishFailedError(eventID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodePublishFailed,
		Message:   "Event publish failed",
		Details:   fmt.Sprintf("eventId: %s, error: %s", eventID, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewMalformedEnvelopeError creates a non-retryable parse error; the
// affected message is logged and dropped, never redelivered.
func NewMalformedEnvelopeError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeMalformedEnvelope,
		Message:   "Queue message envelope could not be parsed",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewInvalidEventError creates a non-retryable event schema error.
func NewInvalidEventError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidEvent,
		Message:   "Event failed schema validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStateConflictError creates the non-retryable "already handled" error.
// Callers swallow it: a failed precondition means a concurrent or earlier
// delivery already applied the transition.
func NewStateConflictError(applicationID, expected string) *StandardError {
	return &StandardError{
		Code:      ErrCodeStateConflict,
		Message:   "State transition precondition failed",
		Details:   fmt.Sprintf("applicationId: %s, expected status: %s", applicationID, expected),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRetryExhaustedError creates the accepted-loss error for best-effort
// notification rows dropped after the retry ceiling.
func NewRetryExhaustedError(attempts int, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRetryExhausted,
		Message:   "Retry ceiling reached, work dropped",
		Details:   fmt.Sprintf("attempts: %d, %s", attempts, details),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewApplicationNotFoundError creates a non-retryable lookup error.
func NewApplicationNotFoundError(applicationID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeApplicationNotFound,
		Message:   "Application not found",
		Details:   fmt.Sprintf("applicationId: %s", applicationID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewValidationFailedError creates a non-retryable request validation error.
func NewValidationFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Request validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// IsRetryable reports whether err should be handed back to the triggering
// mechanism for redelivery. Unknown errors default to retryable so that
// infrastructure failures are never silently dropped.
func IsRetryable(err error) bool {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Retryable
	}
	return true
}

// IsStateConflict reports whether err signals an already-applied transition.
func IsStateConflict(err error) bool {
	var stdErr *StandardError
	return errors.As(err, &stdErr) && stdErr.Code == ErrCodeStateConflict
}

// CodeOf extracts the error code, or "UNKNOWN_ERROR" for foreign errors.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Code
	}
	return "UNKNOWN_ERROR"
}
