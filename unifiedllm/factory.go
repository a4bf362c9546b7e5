package unifiedllm

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ProviderKind is the closed set of generation backends the factory can build.
type ProviderKind string

const (
	ProviderOllama    ProviderKind = "OLLAMA"
	ProviderOpenAI    ProviderKind = "OPENAI"
	ProviderAnthropic ProviderKind = "ANTHROPIC"
	ProviderGemini    ProviderKind = "GEMINI"
	ProviderBedrock   ProviderKind = "BEDROCK"
)

// SupportedProviders returns the provider kinds in a stable order.
func SupportedProviders() []ProviderKind {
	return []ProviderKind{ProviderOllama, ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderBedrock}
}

// ParseProviderKind matches name case-insensitively against the supported set.
func ParseProviderKind(name string) (ProviderKind, error) {
	upper := ProviderKind(strings.ToUpper(strings.TrimSpace(name)))
	for _, k := range SupportedProviders() {
		if k == upper {
			return k, nil
		}
	}
	return "", &UnsupportedProviderError{
		SDKError:  SDKError{Message: "unsupported provider"},
		Provider:  name,
		Supported: SupportedProviders(),
	}
}

// adapterName is the lower-case provider name used by adapters and the catalog.
func (k ProviderKind) adapterName() string {
	return strings.ToLower(string(k))
}

// FactoryOption configures Instantiate.
type FactoryOption func(*factoryConfig)

type factoryConfig struct {
	retry   RetryPolicy
	breaker *CircuitBreakerConfig
	limiter *rate.Limiter
	logger  *zap.Logger
	adapter ProviderAdapter
	getenv  func(string) string
	extra   []Middleware
}

// WithRetryPolicy overrides DefaultRetryPolicy for the generator.
func WithRetryPolicy(p RetryPolicy) FactoryOption {
	return func(c *factoryConfig) { c.retry = p }
}

// WithCircuitBreaker guards the generator with its own circuit breaker. The
// breaker lives as long as the generator; use WithMiddleware with a shared
// CircuitBreakerMiddleware to keep its state across generators.
func WithCircuitBreaker(cfg CircuitBreakerConfig) FactoryOption {
	return func(c *factoryConfig) { c.breaker = &cfg }
}

// WithRateLimit throttles the generator's calls through limiter.
func WithRateLimit(limiter *rate.Limiter) FactoryOption {
	return func(c *factoryConfig) { c.limiter = limiter }
}

// WithMiddleware appends mw to the generator's chain, innermost last. Pass a
// middleware built once to share its state, such as a circuit breaker,
// across every generator it is given to.
func WithMiddleware(mw ...Middleware) FactoryOption {
	return func(c *factoryConfig) { c.extra = append(c.extra, mw...) }
}

// WithLogger sets the logger used by the generator's middleware.
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(c *factoryConfig) { c.logger = logger }
}

// WithAdapter skips backend construction and uses adapter instead.
func WithAdapter(adapter ProviderAdapter) FactoryOption {
	return func(c *factoryConfig) { c.adapter = adapter }
}

// WithEnv replaces os.Getenv for credential lookups.
func WithEnv(getenv func(string) string) FactoryOption {
	return func(c *factoryConfig) { c.getenv = getenv }
}

// Instantiate builds a Generator for provider and model. Settings are passed
// verbatim to the provider's constructor, which reads the keys it knows.
func Instantiate(ctx context.Context, provider, model string, settings Settings, opts ...FactoryOption) (*Generator, error) {
	kind, err := ParseProviderKind(provider)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(model) == "" {
		return nil, NewConfigurationError("model name is required for provider %s", kind)
	}

	cfg := &factoryConfig{
		retry:  DefaultRetryPolicy(),
		logger: zap.NewNop(),
		getenv: os.Getenv,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if settings == nil {
		settings = Settings{}
	}

	adapter := cfg.adapter
	if adapter == nil {
		adapter, err = newAdapter(ctx, kind, model, settings, cfg.getenv)
		if err != nil {
			return nil, err
		}
	}

	mws := []Middleware{LoggingMiddleware(cfg.logger.With(zap.String("provider", string(kind))))}
	if cfg.limiter != nil {
		mws = append(mws, RateLimitMiddleware(cfg.limiter))
	}
	if cfg.breaker != nil {
		mws = append(mws, CircuitBreakerMiddleware(adapter.Name(), *cfg.breaker, cfg.logger))
	}
	mws = append(mws, cfg.extra...)

	return &Generator{
		client:   NewClient(adapter, mws...),
		provider: adapter.Name(),
		kind:     kind,
		model:    model,
		settings: settings,
		retry:    cfg.retry,
	}, nil
}

func newAdapter(ctx context.Context, kind ProviderKind, model string, settings Settings, getenv func(string) string) (ProviderAdapter, error) {
	switch kind {
	case ProviderOllama:
		baseURL, ok := settings.String("base_url")
		if !ok {
			baseURL = firstEnv(getenv, "OLLAMA_BASE_URL")
		}
		if baseURL == "" {
			baseURL = DefaultOllamaBaseURL
		}
		opts := append(gollmOptions(model, settings), WithOllamaEndpoint(baseURL))
		return NewGollmAdapter(kind.adapterName(), "", opts...)

	case ProviderOpenAI, ProviderAnthropic:
		envKey := string(kind) + "_API_KEY"
		apiKey, ok := settings.String("api_key")
		if !ok {
			apiKey = firstEnv(getenv, envKey)
		}
		if apiKey == "" {
			return nil, NewConfigurationError("%s is not set", envKey)
		}
		return NewGollmAdapter(kind.adapterName(), apiKey, gollmOptions(model, settings)...)

	case ProviderGemini:
		apiKey, ok := settings.String("api_key")
		if !ok {
			apiKey = firstEnv(getenv, "GOOGLE_API_KEY", "GEMINI_API_KEY")
		}
		return NewGenAIAdapter(ctx, apiKey, model)

	case ProviderBedrock:
		region, ok := settings.String("region")
		if !ok {
			region = firstEnv(getenv, "AWS_REGION", "AWS_DEFAULT_REGION")
		}
		return NewBedrockAdapter(ctx, region, model)
	}
	return nil, &UnsupportedProviderError{Provider: string(kind), Supported: SupportedProviders()}
}

func gollmOptions(model string, settings Settings) []GollmAdapterOption {
	opts := []GollmAdapterOption{WithModel(model)}
	if t, ok := settings.Float("temperature"); ok {
		opts = append(opts, WithTemperature(t))
	}
	if n, ok := settings.Int("max_tokens"); ok && n > 0 {
		opts = append(opts, WithMaxTokens(n))
	}
	if p, ok := settings.Float("top_p"); ok {
		opts = append(opts, WithTopP(p))
	}
	return opts
}

func firstEnv(getenv func(string) string, keys ...string) string {
	for _, k := range keys {
		if v := getenv(k); v != "" {
			return v
		}
	}
	return ""
}
