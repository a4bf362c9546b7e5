package unifiedllm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// SDKError is the base error type for all unified LLM errors.
type SDKError struct {
	Message string
	Cause   error
}

func (e *SDKError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *SDKError) Unwrap() error {
	return e.Cause
}

// ProviderError represents an error returned by an LLM provider.
type ProviderError struct {
	SDKError
	Provider   string
	StatusCode int
	ErrorCode  string
	Retryable  bool
	RetryAfter *float64
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s (status=%d, retryable=%v)", e.Provider, e.Message, e.StatusCode, e.Retryable)
}

// Concrete provider error types.

type AuthenticationError struct{ ProviderError }
type AccessDeniedError struct{ ProviderError }
type NotFoundError struct{ ProviderError }
type InvalidRequestError struct{ ProviderError }
type RateLimitError struct{ ProviderError }
type ServerError struct{ ProviderError }
type ContentFilterError struct{ ProviderError }
type ContextLengthError struct{ ProviderError }
type QuotaExceededError struct{ ProviderError }

// CircuitOpenError is returned while a provider's circuit breaker rejects calls.
type CircuitOpenError struct{ ProviderError }

// Non-provider errors.

type RequestTimeoutError struct{ SDKError }
type AbortError struct{ SDKError }
type NetworkError struct{ SDKError }

// ConfigurationError reports a bad model identifier, a missing template or
// any other setup problem detected before a model call is made.
type ConfigurationError struct{ SDKError }

// NewConfigurationError builds a ConfigurationError from a format string.
func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{SDKError: SDKError{Message: fmt.Sprintf(format, args...)}}
}

// UnsupportedProviderError is returned by the factory for a provider outside
// the supported set.
type UnsupportedProviderError struct {
	SDKError
	Provider  string
	Supported []ProviderKind
}

func (e *UnsupportedProviderError) Error() string {
	names := make([]string, len(e.Supported))
	for i, k := range e.Supported {
		names[i] = string(k)
	}
	return fmt.Sprintf("unsupported provider %q; supported: [%s]", e.Provider, strings.Join(names, " "))
}

// DecodeError reports model output that does not match the expected shape.
type DecodeError struct {
	SDKError
	Raw string
}

// NewDecodeError wraps cause with the raw text that failed to decode.
func NewDecodeError(raw string, cause error) *DecodeError {
	return &DecodeError{
		SDKError: SDKError{Message: "could not decode model output", Cause: cause},
		Raw:      raw,
	}
}

// ErrorFromStatusCode maps an HTTP status code to the appropriate error type.
func ErrorFromStatusCode(statusCode int, message, provider, errorCode string, retryAfter *float64) error {
	pe := ProviderError{
		SDKError:   SDKError{Message: message},
		Provider:   provider,
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		RetryAfter: retryAfter,
	}

	switch statusCode {
	case 400, 422:
		return &InvalidRequestError{ProviderError: pe}
	case 401:
		return &AuthenticationError{ProviderError: pe}
	case 403:
		return &AccessDeniedError{ProviderError: pe}
	case 404:
		return &NotFoundError{ProviderError: pe}
	case 408:
		return &RequestTimeoutError{SDKError: SDKError{Message: message}}
	case 413:
		return &ContextLengthError{ProviderError: pe}
	case 429:
		pe.Retryable = true
		return &RateLimitError{ProviderError: pe}
	case 500, 502, 503, 504:
		pe.Retryable = true
		return &ServerError{ProviderError: pe}
	default:
		// Unknown errors default to retryable.
		pe.Retryable = true
		return &pe
	}
}

// IsRetryable returns true if the error is safe to retry. Wrapped errors are
// classified by the first typed error in the chain.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var (
		authErr     *AuthenticationError
		deniedErr   *AccessDeniedError
		notFoundErr *NotFoundError
		invalidErr  *InvalidRequestError
		ctxLenErr   *ContextLengthError
		quotaErr    *QuotaExceededError
		filterErr   *ContentFilterError
		circuitErr  *CircuitOpenError
		configErr   *ConfigurationError
		unsupErr    *UnsupportedProviderError
		decodeErr   *DecodeError
		abortErr    *AbortError
		rateErr     *RateLimitError
		serverErr   *ServerError
		netErr      *NetworkError
		timeoutErr  *RequestTimeoutError
		provErr     *ProviderError
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.As(err, &authErr), errors.As(err, &deniedErr), errors.As(err, &notFoundErr),
		errors.As(err, &invalidErr), errors.As(err, &ctxLenErr), errors.As(err, &quotaErr),
		errors.As(err, &filterErr), errors.As(err, &circuitErr), errors.As(err, &configErr),
		errors.As(err, &unsupErr), errors.As(err, &decodeErr), errors.As(err, &abortErr):
		return false
	case errors.As(err, &rateErr), errors.As(err, &serverErr), errors.As(err, &netErr),
		errors.As(err, &timeoutErr):
		return true
	case errors.As(err, &provErr):
		return provErr.Retryable
	default:
		// Unknown errors default to retryable.
		return true
	}
}
