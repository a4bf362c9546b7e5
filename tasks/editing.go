package tasks

import (
	"context"

	"go.uber.org/zap"

	"github.com/martinemde/devassist/agentloop"
	"github.com/martinemde/devassist/unifiedllm"
)

// EditRequest is the editing payload.
type EditRequest struct {
	Instruction string `json:"instruction" validate:"required"`
}

// EditResult is the editing result. State is DONE or ABORTED; an ABORTED
// run still reports its partial trajectory.
type EditResult struct {
	AgentOutput string           `json:"agent_output"`
	Iterations  int              `json:"iterations"`
	State       string           `json:"state"`
	Trajectory  []agentloop.Step `json:"trajectory"`
}

func editingTask() task {
	return newTask([]string{agentloop.SystemPromptKey}, func(ctx context.Context, rc *runContext, req *EditRequest) (any, error) {
		env := rc.env()
		ws, err := agentloop.NewWorkspace(env.WorkspaceRoot)
		if err != nil {
			return nil, unifiedllm.NewConfigurationError("workspace root: %v", err)
		}

		cfg := agentloop.DefaultAgentConfig()
		cfg.MaxIterations = env.MaxIterations
		cfg.CallTimeout = env.CallTimeout
		cfg.ContextWindow = unifiedllm.ContextWindow(rc.model.Model, 0)
		cfg.SystemPrompt = rc.template(agentloop.SystemPromptKey)

		events := agentloop.NewEventEmitter(0)
		drained := logEvents(events, rc.logger)
		defer func() {
			events.Close()
			<-drained
		}()

		agent := agentloop.NewAgent(rc.client, rc.svc.tools, ws, cfg,
			agentloop.WithLogger(rc.logger), agentloop.WithEventEmitter(events))
		res, err := agent.Run(ctx, req.Instruction)
		if err != nil {
			return nil, err
		}
		return EditResult{
			AgentOutput: res.Output(),
			Iterations:  res.Iterations,
			State:       string(res.State),
			Trajectory:  res.Steps,
		}, nil
	})
}

// logEvents writes every agent event to logger at debug level until events
// is closed. The returned channel is closed once the events are drained.
func logEvents(events *agentloop.EventEmitter, logger *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events.Events() {
			logger.Debug("agent event",
				zap.String("event", string(ev.Kind)),
				zap.String("run_id", ev.RunID),
				zap.Any("data", ev.Data))
		}
	}()
	return done
}
