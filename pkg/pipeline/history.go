package pipeline

import (
	"encoding/json"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// EventType identifies the kind of history event.
type EventType string

const (
	EventExecutionStarted   EventType = "ExecutionStarted"
	EventStateEntered       EventType = "StateEntered"
	EventStateExited        EventType = "StateExited"
	EventTaskScheduled      EventType = "TaskScheduled"
	EventTaskSucceeded      EventType = "TaskSucceeded"
	EventTaskFailed         EventType = "TaskFailed"
	EventTaskRetryScheduled EventType = "TaskRetryScheduled"
	EventExecutionSucceeded EventType = "ExecutionSucceeded"
	EventExecutionFailed    EventType = "ExecutionFailed"
	EventExecutionTimedOut  EventType = "ExecutionTimedOut"
)

// HistoryEvent is one entry of an execution's record.
type HistoryEvent struct {
	ID        int             `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Type      EventType       `json:"type"`
	State     string          `json:"state,omitempty"`
	Task      TaskName        `json:"task,omitempty"`
	Attempt   int             `json:"attempt,omitempty"`
	ErrorKind ErrorKind       `json:"error_kind,omitempty"`
	Cause     string          `json:"cause,omitempty"`
	Delay     time.Duration   `json:"delay,omitempty"`
	Outcome   Outcome         `json:"outcome,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	Output    json.RawMessage `json:"output,omitempty"`
}

// History is the ordered trace of one execution. Every recorded event is
// also logged. Input and output payloads are kept only when the history was
// created with execution data enabled.
type History struct {
	mu          sync.Mutex
	executionID string
	includeData bool
	logger      *slog.Logger
	now         func() time.Time
	events      []HistoryEvent
}

func newHistory(executionID string, includeData bool, logger *slog.Logger, now func() time.Time) *History {
	return &History{
		executionID: executionID,
		includeData: includeData,
		logger:      logger,
		now:         now,
	}
}

// record appends ev. It is safe on a nil History.
func (h *History) record(ev HistoryEvent) {
	if h == nil {
		return
	}
	h.mu.Lock()
	ev.ID = len(h.events) + 1
	ev.Timestamp = h.now()
	if !h.includeData {
		ev.Input, ev.Output = nil, nil
	}
	h.events = append(h.events, ev)
	h.mu.Unlock()

	attrs := []any{"event", ev.Type}
	if ev.State != "" {
		attrs = append(attrs, "state", ev.State)
	}
	if ev.Task != "" {
		attrs = append(attrs, "task", ev.Task, "attempt", ev.Attempt)
	}
	if ev.ErrorKind != "" {
		attrs = append(attrs, "error_kind", ev.ErrorKind, "cause", ev.Cause)
	}
	if ev.Delay > 0 {
		attrs = append(attrs, "delay", ev.Delay)
	}
	if ev.Outcome != "" {
		attrs = append(attrs, "outcome", ev.Outcome)
	}
	h.logger.Debug("history event", attrs...)
	if h.includeData && (len(ev.Input) > 0 || len(ev.Output) > 0) {
		h.logger.Debug("history event data", "event", ev.Type, "input", string(ev.Input), "output", string(ev.Output))
	}
}

// ExecutionID returns the id of the execution this history belongs to.
func (h *History) ExecutionID() string {
	return h.executionID
}

// Events returns a copy of all recorded events.
func (h *History) Events() []HistoryEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.events)
}

// Path returns the states entered, in order.
func (h *History) Path() []string {
	var path []string
	for _, ev := range h.Events() {
		if ev.Type == EventStateEntered {
			path = append(path, ev.State)
		}
	}
	return path
}

// Count returns how many events of type t were recorded.
func (h *History) Count(t EventType) int {
	n := 0
	for _, ev := range h.Events() {
		if ev.Type == t {
			n++
		}
	}
	return n
}

// MarshalJSON encodes the event list.
func (h *History) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Events())
}
