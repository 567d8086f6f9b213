package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultExecutionTimeout is the wall-clock budget of one execution.
const DefaultExecutionTimeout = 5 * time.Minute

// Engine executes the case pipeline graph, one execution per event.
// An Engine holds no per-execution state and may run executions
// concurrently.
type Engine struct {
	graph       *Graph
	invoker     *Invoker
	sink        FailureSink
	budget      time.Duration
	includeData bool
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithExecutionTimeout overrides the overall execution budget.
func WithExecutionTimeout(d time.Duration) Option {
	return func(e *Engine) { e.budget = d }
}

// WithTaskTimeout overrides the per-attempt task timeout.
func WithTaskTimeout(d time.Duration) Option {
	return func(e *Engine) { e.invoker.Timeout = d }
}

// WithSleeper replaces the backoff sleep between retry attempts.
func WithSleeper(fn SleepFunc) Option {
	return func(e *Engine) { e.invoker.Sleep = fn }
}

// WithExecutionData keeps task input and output in the execution history.
func WithExecutionData(include bool) Option {
	return func(e *Engine) { e.includeData = include }
}

// WithLogger sets the logger executions log through.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock replaces the time source used for history timestamps and
// elapsed time.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine after validating the graph and checking that
// every task it references resolves in reg.
func NewEngine(g *Graph, reg TaskRegistry, opts ...Option) (*Engine, error) {
	if g == nil {
		return nil, fmt.Errorf("graph must not be nil")
	}
	if reg == nil {
		return nil, fmt.Errorf("task registry must not be nil")
	}
	if err := ValidateErr(g); err != nil {
		return nil, err
	}
	for _, n := range g.Nodes {
		if n.Kind != NodeKindTask {
			continue
		}
		if _, err := reg.Lookup(n.Task); err != nil {
			return nil, fmt.Errorf("node %q: %w", n.ID, err)
		}
	}

	e := &Engine{
		graph:   g,
		invoker: NewInvoker(reg),
		budget:  DefaultExecutionTimeout,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Graph returns the graph the engine walks.
func (e *Engine) Graph() *Graph {
	return e.graph
}

// Result is what an execution resolved to.
type Result struct {
	ExecutionID string        `json:"execution_id"`
	Outcome     Outcome       `json:"outcome"`
	Document    *Document     `json:"document"`
	StartedAt   time.Time     `json:"started_at"`
	Elapsed     time.Duration `json:"elapsed"`
	History     *History      `json:"history"`
}

// Failure returns the captured failure of a Fail execution, or nil.
func (r *Result) Failure() *FailureRecord {
	return r.Document.Failure()
}

// Execute runs one execution for event from the entry node to a terminal
// node. The execution budget starts now; running out of it resolves the
// execution as TimedOut. An error is returned only when event is not a JSON
// object, when ctx is cancelled by the caller, or when the graph misroutes.
func (e *Engine) Execute(ctx context.Context, event []byte) (*Result, error) {
	doc, err := NewDocument(event)
	if err != nil {
		return nil, fmt.Errorf("build document: %w", err)
	}

	id := uuid.NewString()
	logger := e.logger.With("execution_id", id)
	hist := newHistory(id, e.includeData, logger, e.now)
	res := &Result{
		ExecutionID: id,
		Document:    doc,
		StartedAt:   e.now(),
		History:     hist,
	}

	hist.record(HistoryEvent{Type: EventExecutionStarted, Input: doc.Detail()})
	logger.Info("execution started", "change_type", doc.ChangeType())

	rctx, cancel := context.WithTimeoutCause(ctx, e.budget, ErrExecutionTimeout)
	defer cancel()

	outcome, err := e.run(rctx, doc, hist, logger)
	res.Elapsed = e.now().Sub(res.StartedAt)
	if err != nil {
		logger.Error("execution aborted", "error", err, "elapsed", res.Elapsed)
		return res, err
	}
	res.Outcome = outcome

	switch outcome {
	case OutcomeFail:
		f := doc.Failure()
		hist.record(HistoryEvent{Type: EventExecutionFailed, Outcome: outcome, ErrorKind: f.Source, Cause: f.Message})
		logger.Warn("execution failed", "task", f.Task, "error_kind", f.Source, "attempts", f.Attempts, "elapsed", res.Elapsed)
	case OutcomeTimedOut:
		hist.record(HistoryEvent{Type: EventExecutionTimedOut, Outcome: outcome})
		logger.Warn("execution timed out", "elapsed", res.Elapsed, "budget", e.budget)
	default:
		hist.record(HistoryEvent{Type: EventExecutionSucceeded, Outcome: outcome, Output: mustJSON(doc)})
		logger.Info("execution complete", "outcome", outcome, "elapsed", res.Elapsed)
	}
	return res, nil
}

// run is the sequential walk. Terminal nodes resolve as soon as they are
// reached; every other node first checks that the budget is not spent.
func (e *Engine) run(ctx context.Context, doc *Document, hist *History, logger *slog.Logger) (Outcome, error) {
	visited := make(map[string]bool)
	currentID := e.graph.Entry

	for {
		node, ok := e.graph.Nodes[currentID]
		if !ok {
			return "", fmt.Errorf("node %q not found in graph", currentID)
		}

		if node.Kind != NodeKindTerminal && ctx.Err() != nil {
			if IsExecutionTimeout(ctx) {
				return e.timedOut(hist, logger, currentID)
			}
			return "", fmt.Errorf("execution cancelled at node %q: %w", currentID, context.Cause(ctx))
		}

		if visited[currentID] {
			return "", fmt.Errorf("node %q visited twice", currentID)
		}
		visited[currentID] = true

		hist.record(HistoryEvent{Type: EventStateEntered, State: node.ID})
		logger.Info("executing node", "node", node.ID, "kind", node.Kind)

		switch node.Kind {
		case NodeKindTerminal:
			return node.Outcome, nil

		case NodeKindBranch:
			next := node.Decide(doc)
			if !e.hasEdge(node.ID, next) {
				return "", fmt.Errorf("branch %q chose %q, which is not one of its edges", node.ID, next)
			}
			hist.record(HistoryEvent{Type: EventStateExited, State: node.ID})
			logger.Debug("branch selected", "node", node.ID, "next", next)
			currentID = next

		case NodeKindTask:
			result, err := e.invoker.Invoke(ctx, node, doc, hist)
			if err != nil {
				if ctx.Err() != nil {
					// Budget or caller cancellation; resolved at the top of the loop.
					visited[currentID] = false
					continue
				}
				if _, cerr := e.sink.Capture(doc, err); cerr != nil {
					return "", fmt.Errorf("node %q: capture failure: %w", node.ID, cerr)
				}
				logger.Warn("task escalated", "node", node.ID, "task", node.Task, "error", err)
				f := doc.Failure()
				hist.record(HistoryEvent{Type: EventStateExited, State: node.ID, Task: node.Task, ErrorKind: f.Source, Cause: f.Message})
				currentID = e.graph.edgeOf(node.ID, EdgeCatch).To
				continue
			}
			if IsExecutionTimeout(ctx) {
				// The reply raced the budget; the budget wins.
				return e.timedOut(hist, logger, currentID)
			}
			if err := doc.SetResult(node.Task, result); err != nil {
				return "", fmt.Errorf("node %q: %w", node.ID, err)
			}
			hist.record(HistoryEvent{Type: EventStateExited, State: node.ID, Task: node.Task, Output: result.Payload})
			logger.Info("task complete", "node", node.ID, "task", node.Task, "status_code", result.StatusCode)
			currentID = e.graph.edgeOf(node.ID, EdgeNext).To

		default:
			return "", fmt.Errorf("node %q has unknown kind %q", node.ID, node.Kind)
		}
	}
}

// timedOut moves the walk to the TimedOut terminal. The node in progress is
// abandoned; nothing is captured in the document.
func (e *Engine) timedOut(hist *History, logger *slog.Logger, at string) (Outcome, error) {
	id, ok := e.graph.TerminalFor(OutcomeTimedOut)
	if !ok {
		return "", fmt.Errorf("graph has no %s terminal", OutcomeTimedOut)
	}
	logger.Warn("execution budget exceeded", "node", at)
	hist.record(HistoryEvent{Type: EventStateEntered, State: id})
	return OutcomeTimedOut, nil
}

func (e *Engine) hasEdge(from, to string) bool {
	for _, edge := range e.graph.OutgoingEdges(from) {
		if edge.To == to {
			return true
		}
	}
	return false
}

func mustJSON(doc *Document) []byte {
	raw, err := doc.MarshalJSON()
	if err != nil {
		return nil
	}
	return raw
}
