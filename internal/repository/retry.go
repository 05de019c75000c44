package repository

import (
	"context"
	"math"
	"math/rand"
	"time"

	"libris-backend/internal/errors"
)

// RetryConfig defines capped exponential backoff with jitter.
type RetryConfig struct {
	MaxAttempts   int           // Total attempts, including the first
	BaseDelay     time.Duration // Delay before the second attempt
	MaxDelay      time.Duration // Upper bound on any single delay
	BackoffFactor float64       // Exponential multiplier per attempt
	JitterFactor  float64       // Fraction of the backoff randomized (0.25 = ±25%)
}

// DefaultRetryConfig is the append retry policy: 5 attempts, exponential
// backoff from 25ms capped at 1s, ±25% jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   5,
		BaseDelay:     25 * time.Millisecond,
		MaxDelay:      time.Second,
		BackoffFactor: 2.0,
		JitterFactor:  0.25,
	}
}

// RetryableOperation is an attempt of the guarded operation.
type RetryableOperation func() error

// RetryPredicate decides whether a failure is worth another attempt.
type RetryPredicate func(error) bool

// RetryConcurrencyConflicts retries optimistic-concurrency failures only.
// Validation and domain-rule failures will fail the same way every time, so
// they surface immediately.
func RetryConcurrencyConflicts(err error) bool {
	return errors.IsConcurrencyConflict(err)
}

// RetryAllErrors retries every failure. Event delivery uses it: a subscriber
// gets the full attempt budget before its event is dead-lettered.
func RetryAllErrors(error) bool {
	return true
}

// RetryWithBackoff executes operation until it succeeds, the predicate
// rejects the error, attempts run out, or the context ends. The last error
// is returned unwrapped so callers can still branch on its code.
func RetryWithBackoff(ctx context.Context, config RetryConfig, operation RetryableOperation, retryable RetryPredicate) error {
	var lastErr error

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return errors.NewError(errors.CodeOperationTimeout, "operation aborted").
				WithCause(ctx.Err()).
				Build()
		default:
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryable(err) {
			return err
		}
		if attempt == config.MaxAttempts-1 {
			break
		}

		timer := time.NewTimer(config.calculateDelay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.NewError(errors.CodeOperationTimeout, "operation aborted during backoff").
				WithCause(ctx.Err()).
				Build()
		case <-timer.C:
		}
	}

	return lastErr
}

// calculateDelay computes the backoff for the given attempt with jitter
// applied symmetrically around it.
func (c RetryConfig) calculateDelay(attempt int) time.Duration {
	backoff := float64(c.BaseDelay) * math.Pow(c.BackoffFactor, float64(attempt))

	jitter := backoff * c.JitterFactor * (rand.Float64() - 0.5) * 2
	delay := time.Duration(backoff + jitter)

	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}
