// Package errors provides the application-wide error model: stable string
// codes for programmatic handling plus a structured error type carrying
// operation context. Codes are the contract; callers branch on codes, never
// on message text.
package errors

// ErrorCode identifies a specific failure scenario.
type ErrorCode string

const (
	// Input and domain-rule violations
	CodeValidationError              ErrorCode = "VALIDATION_ERROR"
	CodeBookInvalidData              ErrorCode = "BOOK_INVALID_DATA"
	CodeReservationInvalidData       ErrorCode = "RESERVATION_INVALID_DATA"
	CodeWalletInvalidData            ErrorCode = "WALLET_INVALID_DATA"
	CodeReservationInvalidTransition ErrorCode = "RESERVATION_INVALID_TRANSITION"
	CodeWalletInvalidTransition      ErrorCode = "WALLET_INVALID_TRANSITION"

	// Lookup failures
	CodeBookNotFound        ErrorCode = "BOOK_NOT_FOUND"
	CodeReservationNotFound ErrorCode = "RESERVATION_NOT_FOUND"
	CodeWalletNotFound      ErrorCode = "WALLET_NOT_FOUND"
	CodeSagaNotFound        ErrorCode = "SAGA_NOT_FOUND"
	CodeAggregateNotFound   ErrorCode = "AGGREGATE_NOT_FOUND"

	// Uniqueness conflicts
	CodeBookAlreadyExists   ErrorCode = "BOOK_ALREADY_EXISTS"
	CodeWalletAlreadyExists ErrorCode = "WALLET_ALREADY_EXISTS"

	// Event store failures
	CodeInvalidAggregateID  ErrorCode = "INVALID_AGGREGATE_ID"
	CodeConcurrencyConflict ErrorCode = "CONCURRENCY_CONFLICT"
	CodeDuplicateEvent      ErrorCode = "DUPLICATE_EVENT"
	CodeEventSaveFailed     ErrorCode = "EVENT_SAVE_FAILED"
	CodeEventLookupFailed   ErrorCode = "EVENT_LOOKUP_FAILED"
	CodeRehydrationFailed   ErrorCode = "REHYDRATION_FAILED"

	// Query guards
	CodeComplexityLimitExceeded ErrorCode = "COMPLEXITY_LIMIT_EXCEEDED"

	// Infrastructure
	CodeOperationTimeout   ErrorCode = "OPERATION_TIMEOUT"
	CodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	CodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	CodeInternalError      ErrorCode = "INTERNAL_ERROR"
)

// HTTPStatusCode returns the HTTP status a transport adapter should emit
// for this code.
func (c ErrorCode) HTTPStatusCode() int {
	switch c {
	// 400 Bad Request
	case CodeValidationError, CodeBookInvalidData, CodeReservationInvalidData,
		CodeWalletInvalidData, CodeInvalidAggregateID, CodeComplexityLimitExceeded:
		return 400

	// 401 Unauthorized
	case CodeUnauthorized:
		return 401

	// 404 Not Found
	case CodeBookNotFound, CodeReservationNotFound, CodeWalletNotFound,
		CodeSagaNotFound, CodeAggregateNotFound:
		return 404

	// 409 Conflict
	case CodeBookAlreadyExists, CodeWalletAlreadyExists, CodeConcurrencyConflict,
		CodeDuplicateEvent, CodeReservationInvalidTransition, CodeWalletInvalidTransition:
		return 409

	// 503 Service Unavailable
	case CodeOperationTimeout, CodeServiceUnavailable:
		return 503

	// 500 Internal Server Error (default)
	default:
		return 500
	}
}

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// IsRetryable reports whether an operation failing with this code may
// succeed on retry. Only transient conditions qualify; domain-rule and
// validation failures never do.
func (c ErrorCode) IsRetryable() bool {
	switch c {
	case CodeConcurrencyConflict, CodeOperationTimeout, CodeServiceUnavailable:
		return true
	default:
		return false
	}
}

// Severity returns the logging severity for the error code.
func (c ErrorCode) Severity() Severity {
	switch c {
	case CodeInternalError, CodeEventSaveFailed, CodeEventLookupFailed,
		CodeRehydrationFailed:
		return SeverityHigh

	case CodeConcurrencyConflict, CodeDuplicateEvent, CodeOperationTimeout,
		CodeServiceUnavailable:
		return SeverityMedium

	default:
		return SeverityLow
	}
}
