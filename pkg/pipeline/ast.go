package pipeline

// NodeKind tags the variant a Node holds.
type NodeKind string

const (
	NodeKindTask     NodeKind = "task"
	NodeKindBranch   NodeKind = "branch"
	NodeKindTerminal NodeKind = "terminal"
)

// TaskName references one of the external tasks by its registry name.
type TaskName string

const (
	TaskUpdate    TaskName = "update_case"
	TaskCreate    TaskName = "create_case"
	TaskTranslate TaskName = "translate_case"
	TaskClassify  TaskName = "classify_case"
)

// Tasks lists every task the pipeline can invoke, in graph order.
var Tasks = []TaskName{TaskUpdate, TaskCreate, TaskTranslate, TaskClassify}

// ResultField returns the document field a task writes its result to.
func (t TaskName) ResultField() string {
	switch t {
	case TaskUpdate:
		return "update_result"
	case TaskCreate:
		return "create_result"
	case TaskTranslate:
		return "translate_result"
	case TaskClassify:
		return "classify_result"
	}
	return string(t) + "_result"
}

// Outcome is the terminal state an execution resolves to.
type Outcome string

const (
	OutcomeDone               Outcome = "Done"
	OutcomeSkipClassification Outcome = "SkipClassification"
	OutcomeSkipTranslation    Outcome = "SkipTranslation"
	OutcomeAfterUpdate        Outcome = "AfterUpdate"
	OutcomeUnknownChangeType  Outcome = "UnknownChangeType"
	OutcomeFail               Outcome = "Fail"
	OutcomeTimedOut           Outcome = "TimedOut"
)

// Succeeded reports whether the outcome needs no operator attention.
func (o Outcome) Succeeded() bool {
	return o != OutcomeFail && o != OutcomeTimedOut && o != ""
}

// EdgeKind distinguishes why an edge is taken.
type EdgeKind string

const (
	// EdgeNext follows a task that returned a result.
	EdgeNext EdgeKind = "next"
	// EdgeCatch follows a task whose invocation escalated.
	EdgeCatch EdgeKind = "catch"
	// EdgeChoice is a branch outcome selected by a predicate.
	EdgeChoice EdgeKind = "choice"
	// EdgeDefault is the branch outcome when no choice matched.
	EdgeDefault EdgeKind = "default"
)

// BranchFunc selects the ID of the next node from the document. It must not
// mutate the document.
type BranchFunc func(doc *Document) string

// Node is a single vertex in the pipeline graph. Exactly one of the
// kind-specific field groups is meaningful, selected by Kind.
type Node struct {
	ID    string
	Kind  NodeKind
	Label string // human-readable state name

	// NodeKindTask
	Task     TaskName
	Policies []RetryPolicy

	// NodeKindBranch
	Decide BranchFunc

	// NodeKindTerminal
	Outcome Outcome
}

// Edge is a directed, typed connection between two nodes.
type Edge struct {
	From  string
	To    string
	Kind  EdgeKind
	Label string // condition text, for rendering only
}

// Graph is the static node/edge set walked by the Engine.
type Graph struct {
	Name  string
	Entry string
	Nodes map[string]*Node
	Edges []*Edge
}

// OutgoingEdges returns all edges leaving nodeID, in definition order.
func (g *Graph) OutgoingEdges(nodeID string) []*Edge {
	var out []*Edge
	for _, e := range g.Edges {
		if e.From == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// IncomingEdges returns all edges arriving at nodeID.
func (g *Graph) IncomingEdges(nodeID string) []*Edge {
	var out []*Edge
	for _, e := range g.Edges {
		if e.To == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// edgeOf returns the first outgoing edge of the given kind, or nil.
func (g *Graph) edgeOf(nodeID string, kind EdgeKind) *Edge {
	for _, e := range g.Edges {
		if e.From == nodeID && e.Kind == kind {
			return e
		}
	}
	return nil
}

// TerminalFor returns the ID of the terminal node resolving to outcome.
func (g *Graph) TerminalFor(outcome Outcome) (string, bool) {
	for id, n := range g.Nodes {
		if n.Kind == NodeKindTerminal && n.Outcome == outcome {
			return id, true
		}
	}
	return "", false
}
