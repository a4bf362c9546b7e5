package unifiedllm

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy configures how a Generator retries transient provider failures.
type RetryPolicy struct {
	// MaxRetries counts retries after the first attempt. Zero disables retrying.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Multiplier grows the delay between attempts; values below 1 keep it constant.
	Multiplier float64
	// Jitter scales each delay by a random factor in [0.5, 1.5).
	Jitter  bool
	OnRetry func(err error, attempt int, delay time.Duration)
}

// DefaultRetryPolicy retries twice, starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		BaseDelay:  time.Second,
		MaxDelay:   time.Minute,
		Multiplier: 2,
		Jitter:     true,
	}
}

// NoRetry disables retries.
func NoRetry() RetryPolicy {
	return RetryPolicy{}
}

// Delay returns the backoff before retry number attempt (0-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	mult := math.Max(p.Multiplier, 1)
	delay := float64(p.BaseDelay) * math.Pow(mult, float64(attempt))
	if p.MaxDelay > 0 {
		delay = math.Min(delay, float64(p.MaxDelay))
	}
	if p.Jitter {
		delay *= 0.5 + rand.Float64()
	}
	return time.Duration(delay)
}

// retryAfterer is implemented by provider errors that may carry a
// server-supplied Retry-After.
type retryAfterer interface {
	retryAfter() (time.Duration, bool)
}

func (e *ProviderError) retryAfter() (time.Duration, bool) {
	if e.RetryAfter == nil {
		return 0, false
	}
	return time.Duration(*e.RetryAfter * float64(time.Second)), true
}

// Retry calls fn, retrying errors IsRetryable accepts. A server Retry-After
// replaces the computed backoff; one longer than MaxDelay ends the retries
// with the provider's error. Cancellation while waiting returns an AbortError.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	result, err := fn(ctx)
	for attempt := 0; err != nil && attempt < policy.MaxRetries; attempt++ {
		if !IsRetryable(err) {
			return zero, err
		}

		delay := policy.Delay(attempt)
		var ra retryAfterer
		if errors.As(err, &ra) {
			if d, ok := ra.retryAfter(); ok {
				if policy.MaxDelay > 0 && d > policy.MaxDelay {
					return zero, err
				}
				delay = d
			}
		}
		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt+1, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, &AbortError{SDKError: SDKError{Message: "request cancelled during retry", Cause: ctx.Err()}}
		case <-timer.C:
		}
		result, err = fn(ctx)
	}
	if err != nil {
		return zero, err
	}
	return result, nil
}
