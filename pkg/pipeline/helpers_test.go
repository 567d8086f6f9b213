package pipeline_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ravi-parthasarathy/caseflow/pkg/pipeline"
)

// scriptTask answers each call with fn(call), call being 1-based.
type scriptTask struct {
	calls atomic.Int32
	fn    func(call int) ([]byte, error)

	mu      sync.Mutex
	payload []byte
}

func (s *scriptTask) Invoke(_ context.Context, payload []byte) ([]byte, error) {
	n := int(s.calls.Add(1))
	s.mu.Lock()
	s.payload = payload
	s.mu.Unlock()
	return s.fn(n)
}

func (s *scriptTask) Calls() int { return int(s.calls.Load()) }

func (s *scriptTask) LastPayload() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payload
}

// statusTask always returns statusCode.
func statusTask(code int) *scriptTask {
	return &scriptTask{fn: func(int) ([]byte, error) { return statusBody(code), nil }}
}

// failingTask always fails with kind.
func failingTask(kind pipeline.ErrorKind) *scriptTask {
	return &scriptTask{fn: func(n int) ([]byte, error) {
		return nil, pipeline.NewTaskError(kind, fmt.Sprintf("call %d failed", n), nil)
	}}
}

// taskFunc adapts a function to pipeline.Task.
type taskFunc func(ctx context.Context, payload []byte) ([]byte, error)

func (f taskFunc) Invoke(ctx context.Context, payload []byte) ([]byte, error) {
	return f(ctx, payload)
}

// blockingTask waits for its context, then reports the context error.
type blockingTask struct{ calls atomic.Int32 }

func (b *blockingTask) Invoke(ctx context.Context, _ []byte) ([]byte, error) {
	b.calls.Add(1)
	<-ctx.Done()
	return nil, ctx.Err()
}

func statusBody(code int) []byte {
	return []byte(fmt.Sprintf(`{"statusCode":%d}`, code))
}

func changeEvent(changeType string) []byte {
	return []byte(fmt.Sprintf(`{"ChangeEventHeader":{"changeType":%q,"recordIds":["500xx0000001"]},"Subject":"Printer on fire"}`, changeType))
}

// stubRegistry implements pipeline.TaskRegistry over a fixed map.
type stubRegistry struct {
	tasks map[pipeline.TaskName]pipeline.Task
}

func (r *stubRegistry) Lookup(name pipeline.TaskName) (pipeline.Task, error) {
	t, ok := r.tasks[name]
	if !ok {
		return nil, fmt.Errorf("no task registered for %q", name)
	}
	return t, nil
}

// taskSet holds one stub per pipeline task. Unset tasks answer 200.
type taskSet struct {
	update, create, translate, classify pipeline.Task
}

func (s taskSet) registry() *stubRegistry {
	orOK := func(t pipeline.Task) pipeline.Task {
		if t == nil {
			return statusTask(pipeline.StatusOK)
		}
		return t
	}
	return &stubRegistry{tasks: map[pipeline.TaskName]pipeline.Task{
		pipeline.TaskUpdate:    orOK(s.update),
		pipeline.TaskCreate:    orOK(s.create),
		pipeline.TaskTranslate: orOK(s.translate),
		pipeline.TaskClassify:  orOK(s.classify),
	}}
}

// sleepRecorder replaces backoff sleeps, recording the requested delays.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return context.Cause(ctx)
}

func (r *sleepRecorder) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testingT is satisfied by *testing.T and *rapid.T.
type testingT interface {
	require.TestingT
	Helper()
}

// newTestEngine builds an engine over the case pipeline with a recording
// sleeper and a silent logger. Extra options apply last.
func newTestEngine(t testingT, tasks taskSet, opts ...pipeline.Option) (*pipeline.Engine, *sleepRecorder) {
	t.Helper()
	rec := &sleepRecorder{}
	base := []pipeline.Option{
		pipeline.WithSleeper(rec.sleep),
		pipeline.WithLogger(discardLogger()),
	}
	eng, err := pipeline.NewEngine(pipeline.BuildGraph(), tasks.registry(), append(base, opts...)...)
	require.NoError(t, err)
	return eng, rec
}
