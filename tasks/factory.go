package tasks

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/martinemde/devassist/config"
	"github.com/martinemde/devassist/unifiedllm"
)

// GeneratorFactory builds the generation client for a resolved model. The
// returned client is closed after the invocation when it implements Closer.
type GeneratorFactory func(ctx context.Context, id config.ModelIdentifier, settings unifiedllm.Settings) (unifiedllm.GenerationClient, error)

// NewGeneratorFactory returns a GeneratorFactory backed by
// unifiedllm.Instantiate. Every generator it builds shares one rate limiter
// and carries the configured retry policy. Generators for the same provider
// share one circuit breaker, so consecutive failures count across
// invocations. extra is applied after the configured options.
func NewGeneratorFactory(cfg *config.Config, logger *zap.Logger, extra ...unifiedllm.FactoryOption) GeneratorFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []unifiedllm.FactoryOption{
		unifiedllm.WithLogger(logger),
		unifiedllm.WithEnv(cfg.Getenv),
	}

	res := cfg.Resilience
	policy := unifiedllm.DefaultRetryPolicy()
	if res.Retries != nil {
		policy.MaxRetries = *res.Retries
	}
	policy.OnRetry = func(err error, attempt int, delay time.Duration) {
		logger.Warn("retrying model call", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
	}
	opts = append(opts, unifiedllm.WithRetryPolicy(policy))
	if res.RateLimit > 0 {
		burst := res.Burst
		if burst < 1 {
			burst = 1
		}
		opts = append(opts, unifiedllm.WithRateLimit(rate.NewLimiter(rate.Limit(res.RateLimit), burst)))
	}
	opts = append(opts, extra...)

	breakers := &breakerSet{cfg: res.CircuitBreaker, logger: logger}

	return func(ctx context.Context, id config.ModelIdentifier, settings unifiedllm.Settings) (unifiedllm.GenerationClient, error) {
		kind, err := unifiedllm.ParseProviderKind(id.Provider)
		if err != nil {
			return nil, err
		}
		if kind == unifiedllm.ProviderOllama && cfg.Env.OllamaBaseURL != "" {
			if _, ok := settings.String("base_url"); !ok {
				settings = maps.Clone(settings)
				if settings == nil {
					settings = unifiedllm.Settings{}
				}
				settings["base_url"] = cfg.Env.OllamaBaseURL
			}
		}

		genOpts := opts
		if mw := breakers.get(kind); mw != nil {
			genOpts = append(slices.Clip(opts), unifiedllm.WithMiddleware(mw))
		}
		gen, err := unifiedllm.Instantiate(ctx, string(kind), id.Model, settings, genOpts...)
		if err != nil {
			return nil, err
		}
		return gen, nil
	}
}

// breakerSet holds one circuit breaker per provider kind, built on first use.
type breakerSet struct {
	cfg    unifiedllm.CircuitBreakerConfig
	logger *zap.Logger

	mu       sync.Mutex
	breakers map[unifiedllm.ProviderKind]unifiedllm.Middleware
}

func (b *breakerSet) get(kind unifiedllm.ProviderKind) unifiedllm.Middleware {
	if b.cfg.MaxFailures == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.breakers == nil {
		b.breakers = make(map[unifiedllm.ProviderKind]unifiedllm.Middleware)
	}
	mw, ok := b.breakers[kind]
	if !ok {
		mw = unifiedllm.CircuitBreakerMiddleware(strings.ToLower(string(kind)), b.cfg, b.logger)
		b.breakers[kind] = mw
	}
	return mw
}
