// Package tasks is the invocation boundary: it maps a task name and a JSON
// payload onto one of the execution patterns (single pipeline, routed
// pipeline, map-reduce summary, agent loop) and returns the task's result
// together with the model that produced it.
package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/martinemde/devassist/agentloop"
	"github.com/martinemde/devassist/config"
	"github.com/martinemde/devassist/pipeline"
	"github.com/martinemde/devassist/prompts"
	"github.com/martinemde/devassist/unifiedllm"
)

// Response is the outcome of one task invocation.
type Response struct {
	Task      string `json:"task"`
	Result    any    `json:"result"`
	ModelUsed string `json:"model_used"`
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service's logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithGeneratorFactory replaces the factory built from the configuration.
func WithGeneratorFactory(f GeneratorFactory) Option {
	return func(s *Service) { s.factory = f }
}

// WithTokenCounter replaces pipeline.DefaultTokenCounter for the reduce
// capacity check of summarizing tasks.
func WithTokenCounter(c pipeline.TokenCounter) Option {
	return func(s *Service) { s.counter = c }
}

// WithPrompts replaces the template store built from the configuration.
func WithPrompts(store *prompts.Store) Option {
	return func(s *Service) { s.store = store }
}

// Service runs registered tasks. It holds only immutable configuration and
// is safe for concurrent use.
type Service struct {
	cfg     *config.Config
	store   *prompts.Store
	factory GeneratorFactory
	tools   *agentloop.ToolRegistry
	counter pipeline.TokenCounter
	logger  *zap.Logger
	tasks   map[string]task
}

// New builds a Service with the built-in tasks registered.
func New(cfg *config.Config, opts ...Option) *Service {
	s := &Service{
		cfg:     cfg,
		counter: pipeline.DefaultTokenCounter,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = prompts.NewStore(cfg.Env.PromptsDir)
	}
	if s.factory == nil {
		s.factory = NewGeneratorFactory(cfg, s.logger)
	}
	s.tools = agentloop.NewToolRegistry()
	agentloop.RegisterWorkspaceTools(s.tools)

	s.tasks = map[string]task{
		TaskPlanning:      planningTask(),
		TaskAnalysis:      analysisTask(),
		TaskOptimizer:     optimizerTask(),
		TaskDocumentation: documentationTask(),
		TaskEditing:       editingTask(),
	}
	return s
}

// Names returns the registered task names, sorted.
func (s *Service) Names() []string {
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Invoke runs task with payload. The model is resolved from override, then
// configuration. Errors are ErrTaskNotFound, *InvalidDataError, or
// *ExecutionError.
func (s *Service) Invoke(ctx context.Context, name string, payload json.RawMessage, override string) (*Response, error) {
	t, ok := s.tasks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}
	input, err := t.decode(payload)
	if err != nil {
		return nil, &InvalidDataError{Task: name, Err: err}
	}

	logger := s.logger.With(zap.String("task", name))
	id, err := s.cfg.Resolve(name, override)
	if err != nil {
		return nil, wrapExecution(name, err)
	}
	logger = logger.With(zap.String("model", id.String()))

	templates := make(map[string]*prompts.Template, len(t.templates))
	for _, key := range t.templates {
		tmpl, err := s.store.Get(key)
		if err != nil {
			return nil, wrapExecution(name, err)
		}
		templates[key] = tmpl
	}

	client, err := s.factory(ctx, id, s.cfg.SettingsFor(name))
	if err != nil {
		return nil, wrapExecution(name, err)
	}
	if c, ok := client.(unifiedllm.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				logger.Warn("close generator", zap.Error(err))
			}
		}()
	}

	rc := &runContext{
		svc:       s,
		task:      name,
		model:     id,
		client:    client,
		templates: templates,
		logger:    logger,
	}
	start := time.Now()
	logger.Info("task started")
	result, err := t.run(ctx, rc, input)
	if err != nil {
		logger.Error("task failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return nil, wrapExecution(name, err)
	}
	logger.Info("task finished", zap.Duration("elapsed", time.Since(start)))
	return &Response{Task: name, Result: result, ModelUsed: id.String()}, nil
}

// runContext carries what one invocation resolved before running.
type runContext struct {
	svc       *Service
	task      string
	model     config.ModelIdentifier
	client    unifiedllm.GenerationClient
	templates map[string]*prompts.Template
	logger    *zap.Logger
}

func (rc *runContext) template(key string) *prompts.Template {
	return rc.templates[key]
}

func (rc *runContext) env() config.Env {
	return rc.svc.cfg.Env
}

// task is a registered task: the templates it needs and its typed runner
// behind an untyped decode step.
type task struct {
	templates []string
	decode    func(raw json.RawMessage) (any, error)
	run       func(ctx context.Context, rc *runContext, input any) (any, error)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// newTask builds a task whose payload decodes into P and is checked with
// the validate struct tags.
func newTask[P any](templates []string, run func(ctx context.Context, rc *runContext, p *P) (any, error)) task {
	return task{
		templates: templates,
		decode: func(raw json.RawMessage) (any, error) {
			p := new(P)
			if len(bytes.TrimSpace(raw)) == 0 {
				raw = json.RawMessage("{}")
			}
			if err := json.Unmarshal(raw, p); err != nil {
				return nil, err
			}
			if err := validate.Struct(p); err != nil {
				return nil, err
			}
			return p, nil
		},
		run: func(ctx context.Context, rc *runContext, input any) (any, error) {
			return run(ctx, rc, input.(*P))
		},
	}
}
