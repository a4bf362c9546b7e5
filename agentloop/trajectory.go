package agentloop

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// State is a position in the agent loop state machine.
type State string

const (
	StateThinking  State = "THINKING"
	StateActing    State = "ACTING"
	StateObserving State = "OBSERVING"
	StateDone      State = "DONE"
	StateAborted   State = "ABORTED"
)

// Terminal reports whether s ends a run.
func (s State) Terminal() bool { return s == StateDone || s == StateAborted }

// Directive is one decoded model turn: either a tool call or a final answer.
type Directive struct {
	Thought     string          `json:"thought" jsonschema_description:"Your reasoning about what to do next."`
	Action      string          `json:"action,omitempty" jsonschema_description:"Name of the tool to call. Omit when giving a final answer."`
	ActionInput json.RawMessage `json:"action_input,omitempty" jsonschema_description:"JSON object with the tool arguments."`
	FinalAnswer *string         `json:"final_answer,omitempty" jsonschema_description:"Summary of the completed work. Omit when calling a tool."`
}

// Validate enforces that exactly one of action and final_answer is set.
func (d *Directive) Validate() error {
	hasAction := strings.TrimSpace(d.Action) != ""
	hasAnswer := d.FinalAnswer != nil
	switch {
	case hasAction && hasAnswer:
		return errors.New("directive sets both action and final_answer; set exactly one")
	case !hasAction && !hasAnswer:
		return errors.New("directive needs either action or final_answer")
	}
	return nil
}

// ToolInvocation records one tool call. Output is the tool's untruncated
// output; Err is set when the tool was unknown, rejected its arguments, or
// failed.
type ToolInvocation struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Output    string          `json:"output,omitempty"`
	Err       error           `json:"-"`
}

// Step is one completed iteration of the loop: the directive that was acted
// on and the observation it produced. Steps for recoverable failures carry
// only an observation.
type Step struct {
	Thought     string          `json:"thought,omitempty"`
	Action      string          `json:"action,omitempty"`
	ActionInput json.RawMessage `json:"action_input,omitempty"`
	Observation string          `json:"observation"`
	Invocation  *ToolInvocation `json:"invocation,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Trajectory is the ordered list of steps of one run. It is owned by a
// single run and is not safe for concurrent use.
type Trajectory struct {
	steps []Step
}

// Append records a step.
func (t *Trajectory) Append(step Step) {
	if step.Timestamp.IsZero() {
		step.Timestamp = time.Now()
	}
	t.steps = append(t.steps, step)
}

// Len returns the number of recorded steps.
func (t *Trajectory) Len() int { return len(t.steps) }

// Steps returns a copy of the recorded steps.
func (t *Trajectory) Steps() []Step {
	out := make([]Step, len(t.steps))
	copy(out, t.steps)
	return out
}

// Render formats the steps as the scratchpad shown to the model.
func (t *Trajectory) Render() string {
	if len(t.steps) == 0 {
		return "(no previous steps)"
	}
	var b strings.Builder
	for i, s := range t.steps {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Step %d\n", i+1)
		if s.Thought != "" {
			fmt.Fprintf(&b, "Thought: %s\n", s.Thought)
		}
		if s.Action != "" {
			input := string(s.ActionInput)
			if input == "" {
				input = "{}"
			}
			fmt.Fprintf(&b, "Action: %s\nAction Input: %s\n", s.Action, input)
		}
		fmt.Fprintf(&b, "Observation: %s", s.Observation)
	}
	return b.String()
}

// StoppedOutput is the agent output of a run that ended without a final answer.
const StoppedOutput = "Agent stopped due to iteration limit or cancellation."

// Result is the outcome of one agent run. An ABORTED result still carries
// the partial trajectory.
type Result struct {
	RunID       string `json:"run_id"`
	State       State  `json:"state"`
	FinalAnswer string `json:"final_answer,omitempty"`
	Iterations  int    `json:"iterations"`
	Steps       []Step `json:"trajectory"`
}

// Output returns the final answer, or StoppedOutput when there is none.
func (r *Result) Output() string {
	if r.State == StateDone {
		return r.FinalAnswer
	}
	return StoppedOutput
}
