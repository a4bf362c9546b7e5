// Package unifiedllm presents a provider-agnostic generation client over the
// gollm library (github.com/teilomillet/gollm), the Google Gen AI SDK and the
// AWS Bedrock Converse API.
//
// # Architecture
//
// The package is layered:
//
//   - Provider adapters: ProviderAdapter implementations for gollm (ollama,
//     openai, anthropic), genai (gemini) and bedrockruntime (bedrock)
//   - Utilities: Retry, error classification, the model catalog
//   - Client: one adapter behind a middleware chain (logging, rate limit, circuit breaker)
//   - Factory: Instantiate, which turns a ProviderKind, a model name and a
//     flat Settings map into a Generator
//
// # Quick Start
//
//	gen, err := unifiedllm.Instantiate(ctx, "OLLAMA", "llama3:8b", unifiedllm.Settings{
//	    "temperature": 0.2,
//	})
//	if err != nil {
//	    return err
//	}
//	text, err := gen.Generate(ctx, "Summarize this file")
//
// An unknown provider yields an *UnsupportedProviderError listing
// SupportedProviders(). Provider failures are mapped onto the typed error
// hierarchy in errors.go so that Retry and the circuit breaker can tell
// transient failures from permanent ones.
package unifiedllm
