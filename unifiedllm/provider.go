package unifiedllm

import "context"

// ProviderAdapter is the interface every provider backend must implement.
type ProviderAdapter interface {
	// Name returns the provider identifier (e.g. "ollama", "openai", "gemini").
	Name() string

	// Complete sends a blocking request and returns the full response.
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Closer is implemented by adapters that hold resources.
type Closer interface {
	Close() error
}

// GenerationClient is the uniform text-in, text-out capability every
// provider kind exposes to pipelines and the agent loop.
type GenerationClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GenerationClientFunc adapts a function to GenerationClient.
type GenerationClientFunc func(ctx context.Context, prompt string) (string, error)

func (f GenerationClientFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
