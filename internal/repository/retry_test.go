package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "libris-backend/internal/errors"
)

// fastRetry keeps backoff delays negligible so tests run in microseconds.
func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:   attempts,
		BaseDelay:     time.Microsecond,
		MaxDelay:      time.Millisecond,
		BackoffFactor: 2.0,
		JitterFactor:  0.25,
	}
}

func conflictErr() error {
	return apperrors.NewError(apperrors.CodeConcurrencyConflict, "version taken").Build()
}

func TestRetryWithBackoff_SucceedsAfterTransientConflicts(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastRetry(5), func() error {
		attempts++
		if attempts < 3 {
			return conflictErr()
		}
		return nil
	}, RetryConcurrencyConflicts)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_NonRetryableSurfacesImmediately(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastRetry(5), func() error {
		attempts++
		return apperrors.Validation("isbn required")
	}, RetryConcurrencyConflicts)

	assert.Equal(t, 1, attempts)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationError))
}

func TestRetryWithBackoff_ExhaustionReturnsLastError(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastRetry(3), func() error {
		attempts++
		return conflictErr()
	}, RetryConcurrencyConflicts)

	assert.Equal(t, 3, attempts)
	assert.True(t, apperrors.IsConcurrencyConflict(err), "the caller still branches on the original code")
}

func TestRetryWithBackoff_CancelledContextNeverRuns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := RetryWithBackoff(ctx, fastRetry(5), func() error {
		attempts++
		return nil
	}, RetryConcurrencyConflicts)

	assert.Zero(t, attempts)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeOperationTimeout))
}

func TestRetryWithBackoff_CancelDuringBackoffAborts(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:   5,
		BaseDelay:     time.Second,
		MaxDelay:      time.Second,
		BackoffFactor: 2.0,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	attempts := 0
	start := time.Now()
	err := RetryWithBackoff(ctx, cfg, func() error {
		attempts++
		return conflictErr()
	}, RetryConcurrencyConflicts)

	assert.Equal(t, 1, attempts)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeOperationTimeout))
	assert.Less(t, time.Since(start), time.Second, "the deadline interrupts the sleep")
}

func TestRetryAllErrors_GivesEveryFailureTheFullBudget(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastRetry(4), func() error {
		attempts++
		return apperrors.Internal("handler down", nil)
	}, RetryAllErrors)

	assert.Equal(t, 4, attempts)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInternalError))
}

func TestDefaultRetryConfig_PinsTheAppendPolicy(t *testing.T) {
	cfg := DefaultRetryConfig()

	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 25*time.Millisecond, cfg.BaseDelay)
	assert.Equal(t, time.Second, cfg.MaxDelay)
	assert.Equal(t, 2.0, cfg.BackoffFactor)
	assert.Equal(t, 0.25, cfg.JitterFactor)
}

func TestCalculateDelay_GrowsWithinJitterBoundsAndCaps(t *testing.T) {
	cfg := RetryConfig{
		BaseDelay:     100 * time.Millisecond,
		MaxDelay:      time.Second,
		BackoffFactor: 2.0,
		JitterFactor:  0.25,
	}

	for i := 0; i < 50; i++ {
		d0 := cfg.calculateDelay(0)
		assert.GreaterOrEqual(t, d0, 75*time.Millisecond)
		assert.LessOrEqual(t, d0, 125*time.Millisecond)

		d2 := cfg.calculateDelay(2)
		assert.GreaterOrEqual(t, d2, 300*time.Millisecond)
		assert.LessOrEqual(t, d2, 500*time.Millisecond)

		assert.Equal(t, time.Second, cfg.calculateDelay(10), "large attempts hit the cap")
	}
}

func TestCalculateDelay_ZeroJitterIsDeterministic(t *testing.T) {
	cfg := RetryConfig{
		BaseDelay:     50 * time.Millisecond,
		MaxDelay:      time.Second,
		BackoffFactor: 2.0,
	}

	assert.Equal(t, 50*time.Millisecond, cfg.calculateDelay(0))
	assert.Equal(t, 200*time.Millisecond, cfg.calculateDelay(2))
}
