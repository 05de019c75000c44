package dynamodb

import (
	"errors"

	"github.com/aws/smithy-go"

	apperrors "libris-backend/internal/errors"
)

// translateAWSError maps the AWS failure classes callers act on. Throttling
// becomes SERVICE_UNAVAILABLE, retryable and served as 503; a missing table
// is terminal, no retry creates it. Anything else returns nil and keeps its
// store-specific wrapping.
func translateAWSError(err error, operation string) error {
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return nil
	}

	switch ae.ErrorCode() {
	case "ProvisionedThroughputExceededException", "RequestLimitExceeded", "ThrottlingException":
		return apperrors.NewError(apperrors.CodeServiceUnavailable, "dynamodb throttled").
			WithOperation(operation).
			WithDetails("%s", ae.ErrorMessage()).
			WithCause(err).
			Build()
	case "ResourceNotFoundException":
		return apperrors.NewError(apperrors.CodeInternalError, "dynamodb table missing").
			WithOperation(operation).
			WithDetails("%s", ae.ErrorMessage()).
			WithCause(err).
			Build()
	}
	return nil
}
