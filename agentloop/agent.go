package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/martinemde/devassist/pipeline"
	"github.com/martinemde/devassist/prompts"
	"github.com/martinemde/devassist/unifiedllm"
)

// DefaultMaxIterations is the iteration ceiling when AgentConfig leaves it unset.
const DefaultMaxIterations = 15

// Observations recorded for recoverable failures.
const (
	ObservationTimeout     = "model call timed out; retry"
	ObservationParseFailed = "could not parse response; retry"
)

// AgentConfig holds the limits of an agent run.
type AgentConfig struct {
	MaxIterations       int            `json:"max_iterations"`
	CallTimeout         time.Duration  `json:"call_timeout"`
	ToolOutputLimits    map[string]int `json:"tool_output_limits,omitempty"`
	ToolLineLimits      map[string]int `json:"tool_line_limits,omitempty"`
	EnableLoopDetection bool           `json:"enable_loop_detection"`
	LoopDetectionWindow int            `json:"loop_detection_window"`
	ContextWindow       int            `json:"context_window,omitempty"` // tokens; 0 disables the usage warning

	// SystemPrompt must have the slots {tools} and {max_iterations}. When nil
	// the built-in "editing" template is used.
	SystemPrompt *prompts.Template `json:"-"`
}

// DefaultAgentConfig returns the default limits.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		MaxIterations:       DefaultMaxIterations,
		CallTimeout:         pipeline.DefaultTimeout,
		EnableLoopDetection: true,
		LoopDetectionWindow: DefaultLoopWindow,
	}
}

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithLogger sets the agent's logger.
func WithLogger(l *zap.Logger) AgentOption {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithEventEmitter makes the agent publish run events to e.
func WithEventEmitter(e *EventEmitter) AgentOption {
	return func(a *Agent) { a.emitter = e }
}

// Agent runs the think/act/observe loop against one workspace. An Agent holds
// no per-run state; each Run owns its trajectory.
type Agent struct {
	client  unifiedllm.GenerationClient
	tools   *ToolRegistry
	ws      *Workspace
	cfg     AgentConfig
	decoder *pipeline.SchemaDecoder[Directive]
	logger  *zap.Logger
	emitter *EventEmitter
}

// NewAgent creates an Agent. Zero limits in cfg take their defaults.
func NewAgent(client unifiedllm.GenerationClient, tools *ToolRegistry, ws *Workspace, cfg AgentConfig, opts ...AgentOption) *Agent {
	def := DefaultAgentConfig()
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = def.MaxIterations
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.LoopDetectionWindow <= 0 {
		cfg.LoopDetectionWindow = def.LoopDetectionWindow
	}
	a := &Agent{
		client:  client,
		tools:   tools,
		ws:      ws,
		cfg:     cfg,
		decoder: pipeline.MustSchema[Directive](),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Config returns the effective limits.
func (a *Agent) Config() AgentConfig { return a.cfg }

func (a *Agent) preflight() (string, error) {
	switch {
	case a.client == nil:
		return "", unifiedllm.NewConfigurationError("agent has no generation client")
	case a.tools == nil || a.tools.Count() == 0:
		return "", unifiedllm.NewConfigurationError("agent has no registered tools")
	case a.ws == nil:
		return "", unifiedllm.NewConfigurationError("agent has no workspace")
	}
	tmpl := a.cfg.SystemPrompt
	if tmpl == nil {
		var err error
		if tmpl, err = prompts.NewStore("").Get(SystemPromptKey); err != nil {
			return "", err
		}
	}
	return BuildSystemPrompt(tmpl, a.tools, a.ws, a.cfg.MaxIterations)
}

// Run drives the loop for one instruction until the model gives a final
// answer (DONE) or the iteration ceiling is reached (ABORTED, nil error).
//
// Decode failures, unknown tools, tool errors, tool panics and model call
// timeouts are recorded as observations and the loop continues. Other model
// errors end the run with an error. Cancelling ctx stops the run before the
// next model or tool call and returns the partial result with ctx.Err().
func (a *Agent) Run(ctx context.Context, instruction string) (*Result, error) {
	system, err := a.preflight()
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger := a.logger.With(zap.String("run_id", runID))
	traj := &Trajectory{}
	res := &Result{RunID: runID, State: StateThinking}

	a.emit(runID, EventRunStart, map[string]any{
		"instruction":    instruction,
		"workspace":      a.ws.Root(),
		"max_iterations": a.cfg.MaxIterations,
	})
	logger.Info("agent run started", zap.String("workspace", a.ws.Root()), zap.Int("max_iterations", a.cfg.MaxIterations))

	finish := func(state State, runErr error) (*Result, error) {
		res.State = state
		res.Steps = traj.Steps()
		data := map[string]any{"state": string(state), "iterations": res.Iterations}
		if runErr != nil {
			data["error"] = runErr.Error()
		}
		a.emit(runID, EventRunEnd, data)
		logger.Info("agent run finished",
			zap.String("state", string(state)),
			zap.Int("iterations", res.Iterations),
			zap.Int("steps", traj.Len()),
			zap.Error(runErr))
		return res, runErr
	}

	for res.Iterations < a.cfg.MaxIterations {
		if err := ctx.Err(); err != nil {
			return finish(StateAborted, err)
		}

		// THINKING
		res.State = StateThinking
		res.Iterations++
		prompt := BuildPrompt(system, instruction, traj, a.decoder.Instructions())
		a.checkContextUsage(runID, logger, prompt)
		a.emit(runID, EventModelCall, map[string]any{"iteration": res.Iterations})

		raw, err := pipeline.Generate(ctx, a.client, prompt, a.cfg.CallTimeout)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return finish(StateAborted, ctxErr)
			}
			var timeout *unifiedllm.RequestTimeoutError
			if errors.As(err, &timeout) {
				a.recordRecoverable(runID, logger, traj, Step{Observation: ObservationTimeout}, err)
				continue
			}
			a.emit(runID, EventError, map[string]any{"error": err.Error()})
			return finish(StateAborted, fmt.Errorf("model call: %w", err))
		}

		directive, err := a.decoder.Parse(raw)
		if err != nil {
			a.recordRecoverable(runID, logger, traj, Step{Observation: ObservationParseFailed + ": " + decodeReason(err)}, err)
			continue
		}

		if directive.FinalAnswer != nil {
			res.FinalAnswer = *directive.FinalAnswer
			return finish(StateDone, nil)
		}

		// ACTING
		if err := ctx.Err(); err != nil {
			return finish(StateAborted, err)
		}
		res.State = StateActing
		input := directive.ActionInput
		if len(input) == 0 || string(input) == "null" {
			input = json.RawMessage("{}")
		}
		inv, observation := a.act(ctx, runID, logger, directive.Action, input)

		// OBSERVING
		res.State = StateObserving
		traj.Append(Step{
			Thought:     directive.Thought,
			Action:      directive.Action,
			ActionInput: input,
			Observation: observation,
			Invocation:  inv,
		})

		if a.cfg.EnableLoopDetection && DetectLoop(traj.steps, a.cfg.LoopDetectionWindow) {
			msg := fmt.Sprintf("the last %d actions follow a repeating pattern", a.cfg.LoopDetectionWindow)
			logger.Warn("agent loop detected", zap.String("detail", msg))
			a.emit(runID, EventLoopDetection, map[string]any{"message": msg})
		}
	}

	a.emit(runID, EventTurnLimit, map[string]any{"iterations": res.Iterations})
	return finish(StateAborted, nil)
}

// act dispatches one tool call. It returns the invocation record and the
// observation text fed back to the model.
func (a *Agent) act(ctx context.Context, runID string, logger *zap.Logger, name string, input json.RawMessage) (*ToolInvocation, string) {
	inv := &ToolInvocation{Name: name, Arguments: input}
	tool := a.tools.Get(name)
	if tool == nil {
		inv.Err = fmt.Errorf("tool unavailable: %s (available: %s)", name, strings.Join(a.tools.Names(), ", "))
		a.emit(runID, EventRecoverable, map[string]any{"tool_name": name, "error": inv.Err.Error()})
		logger.Debug("unknown tool requested", zap.String("tool", name))
		return inv, inv.Err.Error()
	}

	a.emit(runID, EventToolCallStart, map[string]any{"tool_name": name, "arguments": string(input)})
	start := time.Now()
	inv.Output, inv.Err = safeExecute(ctx, tool, input, a.ws)
	if inv.Err != nil {
		a.emit(runID, EventToolCallEnd, map[string]any{"tool_name": name, "error": inv.Err.Error()})
		logger.Debug("tool failed", zap.String("tool", name), zap.Error(inv.Err))
		return inv, fmt.Sprintf("Error: %v", inv.Err)
	}

	a.emit(runID, EventToolCallEnd, map[string]any{"tool_name": name, "output": inv.Output})
	logger.Debug("tool succeeded", zap.String("tool", name), zap.Duration("elapsed", time.Since(start)))
	return inv, TruncateToolOutput(inv.Output, name, a.cfg.ToolOutputLimits, a.cfg.ToolLineLimits)
}

// safeExecute runs a tool executor, converting a panic into an error.
func safeExecute(ctx context.Context, tool *RegisteredTool, input json.RawMessage, ws *Workspace) (output string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool %s panicked: %v", tool.Definition.Name, r)
		}
	}()
	return tool.Executor(ctx, input, ws)
}

// recordRecoverable records a recoverable failure as an observation-only step.
func (a *Agent) recordRecoverable(runID string, logger *zap.Logger, traj *Trajectory, step Step, cause error) {
	traj.Append(step)
	a.emit(runID, EventRecoverable, map[string]any{"observation": step.Observation, "error": cause.Error()})
	logger.Debug("recoverable agent failure", zap.String("observation", step.Observation), zap.Error(cause))
}

// decodeReason returns the decode failure without the raw model text.
func decodeReason(err error) string {
	var de *unifiedllm.DecodeError
	if errors.As(err, &de) && de.Cause != nil {
		return de.Cause.Error()
	}
	return err.Error()
}

// checkContextUsage warns when the prompt approaches the context window.
func (a *Agent) checkContextUsage(runID string, logger *zap.Logger, prompt string) {
	if a.cfg.ContextWindow <= 0 {
		return
	}
	approxTokens := pipeline.ApproxTokens.Count(prompt)
	threshold := int(float64(a.cfg.ContextWindow) * 0.8)
	if approxTokens > threshold {
		pct := approxTokens * 100 / a.cfg.ContextWindow
		msg := fmt.Sprintf("Context usage at ~%d%% of context window", pct)
		logger.Warn("agent context usage high", zap.Int("percent", pct))
		a.emit(runID, EventWarning, map[string]any{"message": msg})
	}
}

func (a *Agent) emit(runID string, kind EventKind, data map[string]any) {
	a.emitter.Emit(runID, kind, data)
}
