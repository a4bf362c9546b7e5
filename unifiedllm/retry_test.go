package unifiedllm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(n int) RetryPolicy {
	return RetryPolicy{MaxRetries: n, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func serverError() error {
	return &ServerError{ProviderError: ProviderError{SDKError: SDKError{Message: "server error"}, Retryable: true}}
}

func TestRetryPolicyDelay(t *testing.T) {
	policy := RetryPolicy{BaseDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2}

	for i, expected := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second} {
		if got := policy.Delay(i); got != expected {
			t.Errorf("attempt %d: expected %v, got %v", i, expected, got)
		}
	}

	policy.MaxDelay = 5 * time.Second
	if got := policy.Delay(10); got != 5*time.Second {
		t.Errorf("expected 5s (capped), got %v", got)
	}

	policy.Multiplier = 0
	if got := policy.Delay(3); got != time.Second {
		t.Errorf("multiplier below 1 should keep the delay constant, got %v", got)
	}
}

func TestRetryPolicyDelayWithJitter(t *testing.T) {
	policy := RetryPolicy{BaseDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2, Jitter: true}
	for i := 0; i < 100; i++ {
		got := policy.Delay(0)
		if got < 500*time.Millisecond || got >= 1500*time.Millisecond {
			t.Fatalf("jittered delay out of range: %v", got)
		}
	}
}

func TestRetrySuccess(t *testing.T) {
	var attempts []int
	policy := fastPolicy(3)
	policy.OnRetry = func(err error, attempt int, delay time.Duration) { attempts = append(attempts, attempt) }

	calls := 0
	result, err := Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", serverError()
		}
		return "success", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "success" || calls != 3 {
		t.Errorf("got %q after %d calls", result, calls)
	}
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("OnRetry attempts = %v", attempts)
	}
}

func TestRetryNonRetryableError(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(3), func(ctx context.Context) (string, error) {
		calls++
		return "", &AuthenticationError{ProviderError: ProviderError{SDKError: SDKError{Message: "invalid key"}}}
	})
	var authErr *AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthenticationError, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryExhausted(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(2), func(ctx context.Context) (string, error) {
		calls++
		return "", serverError()
	})
	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	if calls != 3 {
		t.Errorf("expected 1 initial + 2 retries, got %d calls", calls)
	}
}

func TestRetryNoRetryPolicy(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), NoRetry(), func(ctx context.Context) (string, error) {
		calls++
		return "", serverError()
	})
	if err == nil || calls != 1 {
		t.Errorf("expected one failing call, got %d calls and err %v", calls, err)
	}
}

func TestRetryHonorsRetryAfter(t *testing.T) {
	after := 0.002
	policy := RetryPolicy{MaxRetries: 1, BaseDelay: time.Hour, MaxDelay: time.Hour}
	var waited time.Duration
	policy.OnRetry = func(err error, attempt int, delay time.Duration) { waited = delay }

	calls := 0
	_, err := Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", &RateLimitError{ProviderError: ProviderError{RetryAfter: &after, Retryable: true}}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if waited != 2*time.Millisecond {
		t.Errorf("expected Retry-After delay of 2ms, got %v", waited)
	}
}

func TestRetryAfterBeyondMaxDelayStops(t *testing.T) {
	after := 120.0
	calls := 0
	_, err := Retry(context.Background(), RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Second},
		func(ctx context.Context) (string, error) {
			calls++
			return "", &ServerError{ProviderError: ProviderError{RetryAfter: &after, Retryable: true}}
		})
	var serverErr *ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("expected the provider's error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected no retry, got %d calls", calls)
	}
}

func TestRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	calls := 0
	_, err := Retry(ctx, RetryPolicy{MaxRetries: 5, BaseDelay: time.Second, MaxDelay: time.Second},
		func(ctx context.Context) (string, error) {
			calls++
			return "", errors.New("always fails")
		})
	var abortErr *AbortError
	if !errors.As(err, &abortErr) {
		t.Fatalf("expected AbortError, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected the abort to wrap context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected cancellation during the first wait, got %d calls", calls)
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	if p.MaxRetries != 2 || p.BaseDelay != time.Second || p.MaxDelay != time.Minute || p.Multiplier != 2 || !p.Jitter {
		t.Errorf("unexpected default policy %+v", p)
	}
}
