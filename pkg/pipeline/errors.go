package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind is the classifiable name of a task failure. Retry policies match
// on it.
type ErrorKind string

const (
	// Transient infrastructure failures, retried by the default policy.
	KindServiceException ErrorKind = "Task.ServiceException"
	KindServiceOverload  ErrorKind = "Task.ServiceOverload"
	KindSdkClient        ErrorKind = "Task.SdkClientException"
	KindTooManyRequests  ErrorKind = "Task.TooManyRequestsException"

	// KindTimeout is a single attempt exceeding its deadline.
	KindTimeout ErrorKind = "States.Timeout"

	// KindEventLag means the referenced record has not propagated yet.
	KindEventLag ErrorKind = "EventLagRetry"

	// KindTaskFailed is any failure nothing else classifies; never retried.
	KindTaskFailed ErrorKind = "Task.Failed"
)

// TransientKinds are the infrastructure kinds the default policy retries.
var TransientKinds = []ErrorKind{
	KindServiceException,
	KindServiceOverload,
	KindSdkClient,
	KindTooManyRequests,
	KindTimeout,
}

var (
	// ErrExecutionTimeout is the cause attached to the overall execution
	// budget. It is never retried and never captured as a failure.
	ErrExecutionTimeout = errors.New("execution time budget exceeded")

	// errAttemptTimeout is the cause attached to a single attempt's deadline.
	errAttemptTimeout = errors.New("task attempt timed out")
)

// TaskError is returned by task capabilities to report a classified failure.
type TaskError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *TaskError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *TaskError) Unwrap() error { return e.Cause }

// NewTaskError creates a TaskError of the given kind.
func NewTaskError(kind ErrorKind, message string, cause error) *TaskError {
	return &TaskError{Kind: kind, Message: message, Cause: cause}
}

// KindOf classifies err. Unclassified errors are KindTaskFailed.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var te *TaskError
	if errors.As(err, &te) && te.Kind != "" {
		return te.Kind
	}
	if errors.Is(err, errAttemptTimeout) {
		return KindTimeout
	}
	return KindTaskFailed
}

// EscalationError is returned by the Invoker once a task failure is beyond
// every applicable retry policy.
type EscalationError struct {
	Task     TaskName
	Kind     ErrorKind
	Attempts int
	Cause    error
}

func (e *EscalationError) Error() string {
	return fmt.Sprintf("task %s failed with %s after %d attempt(s): %v", e.Task, e.Kind, e.Attempts, e.Cause)
}

func (e *EscalationError) Unwrap() error { return e.Cause }

// IsExecutionTimeout reports whether ctx ended because the overall execution
// budget ran out.
func IsExecutionTimeout(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrExecutionTimeout)
}
