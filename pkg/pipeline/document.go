package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ChangeTypePath is the event path holding the change type.
const ChangeTypePath = "ChangeEventHeader.changeType"

var (
	// ErrResultWritten is returned when a task result field is written twice.
	ErrResultWritten = errors.New("task result already written")
	// ErrErrorWritten is returned when a second failure is captured.
	ErrErrorWritten = errors.New("error already captured")
)

// TaskResult is what a task returned on a non-escalated invocation.
type TaskResult struct {
	StatusCode int             `json:"statusCode"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// FailureRecord is the document's error field.
type FailureRecord struct {
	Source   ErrorKind `json:"source"`
	Task     TaskName  `json:"task,omitempty"`
	Message  string    `json:"message"`
	Attempts int       `json:"attempts"`
}

// Document is the working document of one execution. It only grows: the
// change type and detail are fixed at creation, each task result is written
// once, and the failure record is written at most once.
type Document struct {
	mu         sync.RWMutex
	changeType string
	detail     json.RawMessage
	results    map[TaskName]TaskResult
	order      []TaskName
	failure    *FailureRecord
}

// NewDocument creates a document from a raw triggering event.
func NewDocument(event []byte) (*Document, error) {
	if !gjson.ValidBytes(event) {
		return nil, fmt.Errorf("event is not valid JSON")
	}
	if !gjson.ParseBytes(event).IsObject() {
		return nil, fmt.Errorf("event must be a JSON object")
	}
	return &Document{
		changeType: gjson.GetBytes(event, ChangeTypePath).String(),
		detail:     slices.Clone(json.RawMessage(event)),
		results:    make(map[TaskName]TaskResult),
	}, nil
}

// ChangeType returns the change type copied from the event header.
func (d *Document) ChangeType() string {
	return d.changeType
}

// Detail returns a copy of the original event payload.
func (d *Document) Detail() json.RawMessage {
	return slices.Clone(d.detail)
}

// Result returns the result written by task, if any.
func (d *Document) Result(task TaskName) (TaskResult, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.results[task]
	return r, ok
}

// SetResult writes task's result field. A field is written once; later
// writes return ErrResultWritten and leave the document unchanged.
func (d *Document) SetResult(task TaskName, r TaskResult) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.results[task]; ok {
		return fmt.Errorf("%s: %w", task.ResultField(), ErrResultWritten)
	}
	r.Payload = slices.Clone(r.Payload)
	d.results[task] = r
	d.order = append(d.order, task)
	return nil
}

// Failure returns a copy of the error field, or nil.
func (d *Document) Failure() *FailureRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.failure == nil {
		return nil
	}
	f := *d.failure
	return &f
}

func (d *Document) setFailure(f FailureRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failure != nil {
		return ErrErrorWritten
	}
	d.failure = &f
	return nil
}

// Tasks returns the tasks whose results are present, in write order.
func (d *Document) Tasks() []TaskName {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.order)
}

// MarshalJSON encodes the document with absent fields omitted.
func (d *Document) MarshalJSON() ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := []byte(`{}`)
	out, err := sjson.SetBytes(out, "changeType", d.changeType)
	if err != nil {
		return nil, err
	}
	if out, err = sjson.SetRawBytes(out, "detail", d.detail); err != nil {
		return nil, err
	}
	for _, task := range d.order {
		raw, err := json.Marshal(d.results[task])
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", task.ResultField(), err)
		}
		if out, err = sjson.SetRawBytes(out, task.ResultField(), raw); err != nil {
			return nil, err
		}
	}
	if d.failure != nil {
		raw, err := json.Marshal(d.failure)
		if err != nil {
			return nil, fmt.Errorf("encode error: %w", err)
		}
		if out, err = sjson.SetRawBytes(out, "error", raw); err != nil {
			return nil, err
		}
	}
	return out, nil
}
