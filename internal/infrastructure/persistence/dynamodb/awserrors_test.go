package dynamodb

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "libris-backend/internal/errors"
)

func TestTranslateAWSError_ThrottlingIsRetryable(t *testing.T) {
	for _, code := range []string{
		"ProvisionedThroughputExceededException",
		"RequestLimitExceeded",
		"ThrottlingException",
	} {
		t.Run(code, func(t *testing.T) {
			cause := &smithy.GenericAPIError{Code: code, Message: "slow down"}
			// The SDK wraps API errors in operation errors; the translation
			// must see through that.
			err := translateAWSError(fmt.Errorf("operation error DynamoDB: PutItem, %w", cause), "Save")

			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.CodeServiceUnavailable))
			assert.True(t, apperrors.IsRetryable(err))
			assert.True(t, errors.Is(err, cause))
		})
	}
}

func TestTranslateAWSError_MissingTableIsTerminal(t *testing.T) {
	cause := &smithy.GenericAPIError{Code: "ResourceNotFoundException", Message: "Requested resource not found"}

	err := translateAWSError(cause, "GetByID")

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInternalError))
	assert.False(t, apperrors.IsRetryable(err))
}

func TestTranslateAWSError_LeavesOtherFailuresAlone(t *testing.T) {
	// Conditional failures and plain transport errors keep their
	// store-specific classification.
	assert.NoError(t, translateAWSError(&smithy.GenericAPIError{Code: "ValidationException"}, "Save"))
	assert.NoError(t, translateAWSError(errors.New("connection reset"), "Save"))
	assert.NoError(t, translateAWSError(nil, "Save"))
}
