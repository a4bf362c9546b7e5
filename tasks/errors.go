package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/martinemde/devassist/unifiedllm"
)

// ErrTaskNotFound is returned by Invoke for a task name that is not registered.
var ErrTaskNotFound = errors.New("task not found")

// InvalidDataError reports a payload that could not be decoded or failed
// validation.
type InvalidDataError struct {
	Task string
	Err  error
}

func (e *InvalidDataError) Error() string {
	return fmt.Sprintf("invalid data: %v", e.Err)
}

func (e *InvalidDataError) Unwrap() error { return e.Err }

// ExecutionError wraps every other task failure. Error returns a message safe
// to show outside the process; the cause is only reachable through Unwrap.
type ExecutionError struct {
	Task    string
	Message string
	Cause   error
}

func (e *ExecutionError) Error() string { return e.Message }

func (e *ExecutionError) Unwrap() error { return e.Cause }

// wrapExecution converts err into an *ExecutionError with a safe message.
// Configuration problems keep their text; provider and internal failures are
// reduced to a generic message.
func wrapExecution(task string, err error) *ExecutionError {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		if execErr.Task == "" {
			execErr.Task = task
		}
		return execErr
	}

	msg := fmt.Sprintf("%s task failed", task)
	var (
		cfgErr      *unifiedllm.ConfigurationError
		providerErr *unifiedllm.UnsupportedProviderError
		timeoutErr  *unifiedllm.RequestTimeoutError
		circuitErr  *unifiedllm.CircuitOpenError
	)
	switch {
	case errors.As(err, &providerErr):
		msg = fmt.Sprintf("%s task: %s", task, providerErr.Error())
	case errors.As(err, &cfgErr):
		msg = fmt.Sprintf("%s task: %s", task, cfgErr.Error())
	case errors.As(err, &timeoutErr), errors.Is(err, context.DeadlineExceeded):
		msg = fmt.Sprintf("%s task timed out", task)
	case errors.Is(err, context.Canceled):
		msg = fmt.Sprintf("%s task cancelled", task)
	case errors.As(err, &circuitErr):
		msg = fmt.Sprintf("%s task: model provider unavailable", task)
	}
	return &ExecutionError{Task: task, Message: msg, Cause: err}
}
