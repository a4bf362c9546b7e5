package agentloop

import (
	"sync"
	"time"
)

// EventKind identifies the type of run event.
type EventKind string

const (
	EventRunStart      EventKind = "run_start"
	EventRunEnd        EventKind = "run_end"
	EventModelCall     EventKind = "model_call"
	EventToolCallStart EventKind = "tool_call_start"
	EventToolCallEnd   EventKind = "tool_call_end"
	EventRecoverable   EventKind = "recoverable_error"
	EventTurnLimit     EventKind = "turn_limit"
	EventLoopDetection EventKind = "loop_detection"
	EventWarning       EventKind = "warning"
	EventError         EventKind = "error"
)

// RunEvent is a typed event emitted by the agent loop.
type RunEvent struct {
	Kind      EventKind      `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	Data      map[string]any `json:"data,omitempty"`
}

// EventEmitter delivers run events to the host application via a channel.
// One emitter may be shared by several runs; events carry their run ID.
type EventEmitter struct {
	ch     chan RunEvent
	closed bool
	mu     sync.Mutex
}

// NewEventEmitter creates an EventEmitter with a buffered channel.
func NewEventEmitter(bufferSize int) *EventEmitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &EventEmitter{ch: make(chan RunEvent, bufferSize)}
}

// Emit sends an event to the channel. Events are dropped when the emitter is
// closed or the buffer is full; the loop never blocks on a slow consumer.
func (e *EventEmitter) Emit(runID string, kind EventKind, data map[string]any) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	select {
	case e.ch <- RunEvent{Kind: kind, Timestamp: time.Now(), RunID: runID, Data: data}:
	default:
	}
}

// Events returns the read-only event channel.
func (e *EventEmitter) Events() <-chan RunEvent {
	return e.ch
}

// Close closes the event channel. Safe to call multiple times.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}
