package unifiedllm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// flakyAdapter fails the first n calls with a retryable error.
type flakyAdapter struct {
	failures int32
	calls    atomic.Int32
}

func (f *flakyAdapter) Name() string { return "ollama" }

func (f *flakyAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, &ServerError{ProviderError: ProviderError{SDKError: SDKError{Message: "overloaded"}, Retryable: true}}
	}
	return &Response{Message: AssistantMessage("recovered")}, nil
}

func fastRetry(n int) RetryPolicy {
	return RetryPolicy{MaxRetries: n, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func TestGeneratorRetriesTransientFailures(t *testing.T) {
	adapter := &flakyAdapter{failures: 2}
	gen, err := Instantiate(context.Background(), "OLLAMA", "llama3:8b", nil,
		WithAdapter(adapter), WithRetryPolicy(fastRetry(2)), WithEnv(noEnv))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	text, err := gen.Generate(context.Background(), "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "recovered" {
		t.Errorf("expected %q, got %q", "recovered", text)
	}
	if got := adapter.calls.Load(); got != 3 {
		t.Errorf("expected 3 calls, got %d", got)
	}
}

func TestGeneratorSurfacesExhaustedRetries(t *testing.T) {
	adapter := &flakyAdapter{failures: 10}
	gen, err := Instantiate(context.Background(), "OLLAMA", "llama3:8b", nil,
		WithAdapter(adapter), WithRetryPolicy(fastRetry(1)), WithEnv(noEnv))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = gen.Generate(context.Background(), "hi")
	var serverErr *ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("expected ServerError, got %T", err)
	}
	if got := adapter.calls.Load(); got != 2 {
		t.Errorf("expected 2 calls, got %d", got)
	}
}

func TestGeneratorCompleteKeepsMessages(t *testing.T) {
	mock := newMockAdapter("ollama", "ok")
	gen, err := Instantiate(context.Background(), "OLLAMA", "llama3:8b", nil,
		WithAdapter(mock), WithRetryPolicy(NoRetry()), WithEnv(noEnv))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = gen.Complete(context.Background(), []Message{SystemMessage("sys"), UserMessage("u")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(mock.requests[0].Messages); got != 2 {
		t.Errorf("expected 2 messages, got %d", got)
	}
}
