package pipeline

import "context"

// Task is an external compute operation reached by reference.
// Implementations live in the tasks sub-package; the interface is defined
// here so that the Invoker can use it without creating an import cycle.
type Task interface {
	// Invoke sends payload to the task and returns its raw JSON response.
	// Failures should be reported as *TaskError so they can be classified
	// for retry; any other error is terminal.
	Invoke(ctx context.Context, payload []byte) ([]byte, error)
}

// TaskRegistry resolves task references to invocable capabilities.
type TaskRegistry interface {
	Lookup(name TaskName) (Task, error)
}
