package unifiedllm

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// CircuitBreakerConfig configures the circuit breaker behavior.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32 `yaml:"max_failures"`
	// Timeout is how long the circuit stays open before transitioning to half-open.
	Timeout time.Duration `yaml:"timeout"`
	// Interval is the cyclic period of the closed state for clearing failure counts.
	Interval time.Duration `yaml:"interval"`
}

// CircuitBreakerMiddleware fails fast once the downstream provider has
// failed MaxFailures times in a row. Errors that are not retryable (bad
// requests, auth failures) do not count against the breaker.
func CircuitBreakerMiddleware(name string, cfg CircuitBreakerConfig, logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	cb := gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        "llm:" + name,
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !IsRetryable(err)
		},
	})

	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		resp, err := cb.Execute(func() (*Response, error) {
			return next(ctx, req)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &CircuitOpenError{ProviderError: ProviderError{
				SDKError: SDKError{Message: "circuit open", Cause: err},
				Provider: req.Provider,
			}}
		}
		return resp, err
	}
}

// RateLimitMiddleware blocks each call until limiter admits it.
func RateLimitMiddleware(limiter *rate.Limiter) Middleware {
	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		if err := limiter.Wait(ctx); err != nil {
			return nil, &AbortError{SDKError: SDKError{Message: "rate limiter wait", Cause: err}}
		}
		return next(ctx, req)
	}
}

// LoggingMiddleware logs each provider call at debug level and failures at warn.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		fields := []zap.Field{
			zap.String("provider", req.Provider),
			zap.String("model", req.Model),
			zap.Duration("elapsed", time.Since(start)),
		}
		if err != nil {
			logger.Warn("model call failed", append(fields, zap.Error(err))...)
			return nil, err
		}
		logger.Debug("model call", append(fields, zap.Int("output_tokens", resp.Usage.OutputTokens))...)
		return resp, nil
	}
}
