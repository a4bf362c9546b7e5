// Package pipeline composes prompt templates, a generation client and an
// output decoder into reusable execution patterns: a single pipeline, a
// classifier-routed pipeline, and a map-reduce summarizer.
package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/martinemde/devassist/prompts"
	"github.com/martinemde/devassist/unifiedllm"
)

// DefaultTimeout bounds a single model call when no timeout option is given.
const DefaultTimeout = 120 * time.Second

// Runner is anything that turns template variables into a typed output.
type Runner[T any] interface {
	Invoke(ctx context.Context, vars map[string]string) (T, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc[T any] func(ctx context.Context, vars map[string]string) (T, error)

// Invoke calls f.
func (f RunnerFunc[T]) Invoke(ctx context.Context, vars map[string]string) (T, error) {
	return f(ctx, vars)
}

// Option configures a Pipeline.
type Option func(*options)

type options struct {
	timeout time.Duration
	logger  *zap.Logger
}

// WithTimeout bounds each model call. Zero or negative disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithLogger sets the pipeline's logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Pipeline renders a template, calls the model once and decodes the reply.
// It holds no per-call state and may be invoked concurrently.
type Pipeline[T any] struct {
	name    string
	tmpl    *prompts.Template
	client  unifiedllm.GenerationClient
	decoder Decoder[T]
	opts    options
}

var _ Runner[string] = (*Pipeline[string])(nil)

// New builds a Pipeline.
func New[T any](name string, tmpl *prompts.Template, client unifiedllm.GenerationClient, dec Decoder[T], opts ...Option) *Pipeline[T] {
	o := options{timeout: DefaultTimeout, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Pipeline[T]{
		name:    name,
		tmpl:    tmpl,
		client:  client,
		decoder: dec,
		opts:    o,
	}
}

// Name returns the pipeline's name.
func (p *Pipeline[T]) Name() string { return p.name }

// Invoke runs the pipeline with vars.
func (p *Pipeline[T]) Invoke(ctx context.Context, vars map[string]string) (T, error) {
	var zero T
	prompt, err := p.Prompt(vars)
	if err != nil {
		return zero, err
	}

	raw, err := callWithTimeout(ctx, p.client, prompt, p.opts.timeout)
	if err != nil {
		p.opts.logger.Debug("pipeline call failed", zap.String("pipeline", p.name), zap.Error(err))
		return zero, err
	}

	out, err := p.decoder.Parse(raw)
	if err != nil {
		p.opts.logger.Debug("pipeline decode failed", zap.String("pipeline", p.name), zap.Error(err))
		return zero, err
	}
	return out, nil
}

// Prompt renders the full prompt text that Invoke would send.
func (p *Pipeline[T]) Prompt(vars map[string]string) (string, error) {
	prompt, err := p.tmpl.Render(vars)
	if err != nil {
		return "", err
	}
	if inst := p.decoder.Instructions(); inst != "" {
		prompt += "\n\n" + inst
	}
	return prompt, nil
}

// callWithTimeout calls client.Generate under timeout. A deadline hit by the
// local timer, not by the caller's context, becomes a RequestTimeoutError.
func callWithTimeout(ctx context.Context, client unifiedllm.GenerationClient, prompt string, timeout time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	text, err := client.Generate(callCtx, prompt)
	if err == nil {
		return text, nil
	}
	if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return "", &unifiedllm.RequestTimeoutError{SDKError: unifiedllm.SDKError{
			Message: "model call timed out after " + timeout.String(),
			Cause:   err,
		}}
	}
	return "", err
}

// Generate is a one-shot model call with the same timeout handling as a
// Pipeline, for callers that build their own prompt.
func Generate(ctx context.Context, client unifiedllm.GenerationClient, prompt string, timeout time.Duration) (string, error) {
	return callWithTimeout(ctx, client, prompt, timeout)
}
