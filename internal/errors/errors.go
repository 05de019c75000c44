package errors

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
)

// Severity classifies how loudly an error should be reported.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// AppError is the single structured error type used across all layers.
// It carries a stable code for programmatic handling and enough context
// (operation, resource, correlation id) to be logged without the caller
// re-deriving it.
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`

	Operation     string `json:"operation,omitempty"`
	Resource      string `json:"resource,omitempty"`
	UserID        string `json:"userId,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`

	Severity  Severity `json:"severity"`
	Retryable bool     `json:"retryable"`
	Cause     error    `json:"-"`

	// Capture site, for debugging.
	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the HTTP status for this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatusCode()
}

// Builder constructs AppError instances fluently.
type Builder struct {
	err *AppError
}

// NewError starts building an error with the given code and message.
// Severity and retryability default from the code.
func NewError(code ErrorCode, message string) *Builder {
	_, file, line, _ := runtime.Caller(1)
	return &Builder{
		err: &AppError{
			Code:      code,
			Message:   message,
			Severity:  code.Severity(),
			Retryable: code.IsRetryable(),
			File:      filepath.Base(file),
			Line:      line,
		},
	}
}

// WithDetails adds free-form context to the error.
func (b *Builder) WithDetails(format string, args ...interface{}) *Builder {
	b.err.Details = fmt.Sprintf(format, args...)
	return b
}

// WithOperation names the operation that failed.
func (b *Builder) WithOperation(operation string) *Builder {
	b.err.Operation = operation
	return b
}

// WithResource names the resource being operated on.
func (b *Builder) WithResource(resource string) *Builder {
	b.err.Resource = resource
	return b
}

// WithUserID attaches user context.
func (b *Builder) WithUserID(userID string) *Builder {
	b.err.UserID = userID
	return b
}

// WithCorrelationID attaches the business correlation id.
func (b *Builder) WithCorrelationID(correlationID string) *Builder {
	b.err.CorrelationID = correlationID
	return b
}

// WithCause records the underlying error without hiding it from
// errors.Is / errors.As.
func (b *Builder) WithCause(cause error) *Builder {
	b.err.Cause = cause
	return b
}

// WithRetryable overrides the code-derived retryability.
func (b *Builder) WithRetryable(retryable bool) *Builder {
	b.err.Retryable = retryable
	return b
}

// Build returns the constructed error.
func (b *Builder) Build() *AppError {
	return b.err
}

// Validation is shorthand for a VALIDATION_ERROR.
func Validation(message string) *AppError {
	return NewError(CodeValidationError, message).Build()
}

// Internal wraps an unexpected failure as INTERNAL_ERROR.
func Internal(message string, cause error) *AppError {
	return NewError(CodeInternalError, message).WithCause(cause).Build()
}

// Wrap annotates err with an operation name while preserving the original
// code if err is already an AppError; otherwise it becomes INTERNAL_ERROR.
func Wrap(err error, operation string) *AppError {
	if err == nil {
		return nil
	}
	var app *AppError
	if errors.As(err, &app) {
		clone := *app
		if clone.Operation == "" {
			clone.Operation = operation
		} else {
			clone.Operation = operation + ": " + clone.Operation
		}
		clone.Cause = err
		return &clone
	}
	return NewError(CodeInternalError, err.Error()).
		WithOperation(operation).
		WithCause(err).
		Build()
}

// CodeOf extracts the error code, or INTERNAL_ERROR for foreign errors.
func CodeOf(err error) ErrorCode {
	var app *AppError
	if errors.As(err, &app) {
		return app.Code
	}
	return CodeInternalError
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	var app *AppError
	if errors.As(err, &app) {
		return app.Code == code
	}
	return false
}

// IsConcurrencyConflict reports whether err is an optimistic-concurrency
// failure. Retry loops key off this predicate.
func IsConcurrencyConflict(err error) bool {
	return HasCode(err, CodeConcurrencyConflict)
}

// IsNotFound reports whether err is any of the *_NOT_FOUND codes.
func IsNotFound(err error) bool {
	switch CodeOf(err) {
	case CodeBookNotFound, CodeReservationNotFound, CodeWalletNotFound,
		CodeSagaNotFound, CodeAggregateNotFound:
		return true
	}
	return false
}

// IsRetryable reports whether the operation that produced err may be retried.
func IsRetryable(err error) bool {
	var app *AppError
	if errors.As(err, &app) {
		return app.Retryable
	}
	return false
}
