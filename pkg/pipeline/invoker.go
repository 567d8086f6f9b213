package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DefaultTaskTimeout bounds a single task attempt.
const DefaultTaskTimeout = 60 * time.Second

// SleepFunc waits for d or until ctx ends, returning ctx's cause in the
// latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Invoker calls one task with a per-attempt timeout and the retry policies
// attached to the task's node.
type Invoker struct {
	registry TaskRegistry

	// Timeout bounds each attempt.
	Timeout time.Duration
	// Sleep waits out the backoff between attempts.
	Sleep SleepFunc
}

// NewInvoker creates an Invoker resolving tasks through reg.
func NewInvoker(reg TaskRegistry) *Invoker {
	return &Invoker{
		registry: reg,
		Timeout:  DefaultTaskTimeout,
		Sleep:    sleepContext,
	}
}

// Invoke runs node's task until it returns a result or escalates. Each
// policy on the node keeps its own retry budget; an error whose kind no
// policy matches, or whose policy is spent, escalates as *EscalationError.
// If ctx ends, ctx's cause is returned instead and nothing escalates.
func (iv *Invoker) Invoke(ctx context.Context, node *Node, doc *Document, hist *History) (TaskResult, error) {
	task, err := iv.registry.Lookup(node.Task)
	if err != nil {
		return TaskResult{}, &EscalationError{Task: node.Task, Kind: KindTaskFailed, Cause: err}
	}
	payload, err := sjson.SetRawBytes([]byte(`{}`), "detail", doc.Detail())
	if err != nil {
		return TaskResult{}, &EscalationError{Task: node.Task, Kind: KindTaskFailed, Cause: fmt.Errorf("build payload: %w", err)}
	}

	retries := make([]int, len(node.Policies))
	for attempt := 1; ; attempt++ {
		hist.record(HistoryEvent{Type: EventTaskScheduled, State: node.ID, Task: node.Task, Attempt: attempt, Input: payload})

		result, err := iv.attempt(ctx, task, payload)
		if err == nil {
			hist.record(HistoryEvent{Type: EventTaskSucceeded, State: node.ID, Task: node.Task, Attempt: attempt, Output: result.Payload})
			return result, nil
		}
		if ctx.Err() != nil {
			return TaskResult{}, context.Cause(ctx)
		}

		kind := KindOf(err)
		hist.record(HistoryEvent{Type: EventTaskFailed, State: node.ID, Task: node.Task, Attempt: attempt, ErrorKind: kind, Cause: err.Error()})

		idx := selectPolicy(node.Policies, kind)
		if idx < 0 || retries[idx] >= node.Policies[idx].Retries() {
			return TaskResult{}, &EscalationError{Task: node.Task, Kind: kind, Attempts: attempt, Cause: err}
		}
		retries[idx]++
		delay := node.Policies[idx].Delay(retries[idx])
		hist.record(HistoryEvent{Type: EventTaskRetryScheduled, State: node.ID, Task: node.Task, Attempt: attempt, ErrorKind: kind, Delay: delay})

		if err := iv.Sleep(ctx, delay); err != nil {
			return TaskResult{}, err
		}
	}
}

type reply struct {
	out []byte
	err error
}

// attempt performs one call bounded by the per-attempt timeout. A task that
// ignores cancellation is abandoned once the deadline passes.
func (iv *Invoker) attempt(ctx context.Context, task Task, payload []byte) (TaskResult, error) {
	actx, cancel := context.WithTimeoutCause(ctx, iv.Timeout, errAttemptTimeout)
	defer cancel()

	ch := make(chan reply, 1)
	go func() {
		out, err := task.Invoke(actx, payload)
		ch <- reply{out: out, err: err}
	}()

	var r reply
	select {
	case r = <-ch:
	case <-actx.Done():
		return TaskResult{}, context.Cause(actx)
	}
	if r.err != nil {
		if errors.Is(context.Cause(actx), errAttemptTimeout) {
			return TaskResult{}, fmt.Errorf("%w after %s (%v)", errAttemptTimeout, iv.Timeout, r.err)
		}
		return TaskResult{}, r.err
	}
	return parseResult(r.out)
}

// parseResult reads the status code the branch gates test from a raw task
// response. A statusCode that is missing or not an integral JSON number reads
// as 0.
func parseResult(out []byte) (TaskResult, error) {
	if len(out) == 0 {
		out = []byte(`null`)
	}
	if !gjson.ValidBytes(out) {
		return TaskResult{}, NewTaskError(KindTaskFailed, "task returned malformed JSON", nil)
	}
	return TaskResult{
		StatusCode: statusCodeOf(gjson.GetBytes(out, "statusCode")),
		Payload:    out,
	}, nil
}

func statusCodeOf(r gjson.Result) int {
	if r.Type != gjson.Number || r.Num != math.Trunc(r.Num) {
		return 0
	}
	if r.Num < math.MinInt32 || r.Num > math.MaxInt32 {
		return 0
	}
	return int(r.Num)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-t.C:
		return nil
	}
}
