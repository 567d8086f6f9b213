package pipeline

import (
	"fmt"
	"strings"
)

// LintError describes a structural problem in a graph.
type LintError struct {
	NodeID  string
	Message string
}

func (e LintError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("node %q: %s", e.NodeID, e.Message)
	}
	return e.Message
}

// Validate checks a graph for structural correctness.
// Returns all discovered errors (not just the first).
func Validate(g *Graph) []LintError {
	var errs []LintError

	entry, ok := g.Nodes[g.Entry]
	switch {
	case g.Entry == "":
		errs = append(errs, LintError{Message: "graph has no entry node"})
	case !ok:
		errs = append(errs, LintError{Message: fmt.Sprintf("entry node %q does not exist", g.Entry)})
	case entry.Kind == NodeKindTerminal:
		errs = append(errs, LintError{NodeID: g.Entry, Message: "entry node must not be terminal"})
	}

	// All edge endpoints must reference existing nodes
	for _, e := range g.Edges {
		if _, ok := g.Nodes[e.From]; !ok {
			errs = append(errs, LintError{Message: fmt.Sprintf("edge references unknown source node %q", e.From)})
		}
		if _, ok := g.Nodes[e.To]; !ok {
			errs = append(errs, LintError{Message: fmt.Sprintf("edge references unknown target node %q", e.To)})
		}
	}

	// Fail and TimedOut are required, and each outcome resolves from one node.
	seen := map[Outcome]string{}
	for id, n := range g.Nodes {
		if n.Kind != NodeKindTerminal {
			continue
		}
		if prev, dup := seen[n.Outcome]; dup {
			errs = append(errs, LintError{NodeID: id, Message: fmt.Sprintf("outcome %q already resolved by node %q", n.Outcome, prev)})
		}
		seen[n.Outcome] = id
	}
	for _, required := range []Outcome{OutcomeFail, OutcomeTimedOut} {
		if _, ok := seen[required]; !ok {
			errs = append(errs, LintError{Message: fmt.Sprintf("graph has no %s terminal", required)})
		}
	}

	// Every node except TimedOut must be reachable from the entry.
	var reachable map[string]bool
	if ok {
		reachable = reachableFrom(g, g.Entry)
	}
	for id, n := range g.Nodes {
		errs = append(errs, ValidateNode(g, n)...)
		if reachable != nil && id != g.Entry && n.Outcome != OutcomeTimedOut && !reachable[id] {
			errs = append(errs, LintError{NodeID: id, Message: "node is not reachable from entry"})
		}
	}

	if cycle := findCycle(g); cycle != nil {
		errs = append(errs, LintError{Message: "graph has a cycle: " + strings.Join(cycle, " -> ")})
	}

	return errs
}

// ValidateNode checks the edges and kind-specific fields of a single node.
func ValidateNode(g *Graph, n *Node) []LintError {
	var errs []LintError
	add := func(format string, args ...any) {
		errs = append(errs, LintError{NodeID: n.ID, Message: fmt.Sprintf(format, args...)})
	}

	counts := map[EdgeKind]int{}
	var catch *Edge
	for _, e := range g.OutgoingEdges(n.ID) {
		counts[e.Kind]++
		if e.Kind == EdgeCatch {
			catch = e
		}
	}

	switch n.Kind {
	case NodeKindTask:
		if n.Task == "" {
			add("task node has no task reference")
		}
		if counts[EdgeNext] != 1 {
			add("task node needs exactly one %s edge, has %d", EdgeNext, counts[EdgeNext])
		}
		if counts[EdgeCatch] != 1 {
			add("task node needs exactly one %s edge, has %d", EdgeCatch, counts[EdgeCatch])
		} else if t, ok := g.Nodes[catch.To]; ok && t.Outcome != OutcomeFail {
			add("catch edge must lead to the %s terminal, leads to %q", OutcomeFail, catch.To)
		}
		if counts[EdgeChoice]+counts[EdgeDefault] > 0 {
			add("task node must not have choice edges")
		}
		for _, p := range n.Policies {
			if p.MaxAttempts < 1 || p.Interval < 0 || len(p.ErrorKinds) == 0 {
				add("retry policy %q is incomplete", p.Name)
			}
		}
	case NodeKindBranch:
		if n.Decide == nil {
			add("branch node has no decision function")
		}
		if counts[EdgeDefault] != 1 {
			add("branch node needs exactly one %s edge, has %d", EdgeDefault, counts[EdgeDefault])
		}
		if counts[EdgeChoice] == 0 {
			add("branch node has no choice edges")
		}
		if counts[EdgeNext]+counts[EdgeCatch] > 0 {
			add("branch node must only have choice and default edges")
		}
	case NodeKindTerminal:
		if n.Outcome == "" {
			add("terminal node has no outcome")
		}
		if len(counts) > 0 {
			add("terminal node must not have outgoing edges")
		}
	default:
		add("unknown node kind %q", n.Kind)
	}
	return errs
}

// ValidateErr calls Validate and returns nil if there are no errors, or a
// combined error message listing all lint errors.
func ValidateErr(g *Graph) error {
	errs := Validate(g)
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("graph validation failed:\n  %s", strings.Join(msgs, "\n  "))
}

// reachableFrom returns the set of node IDs reachable from start via directed edges.
func reachableFrom(g *Graph, start string) map[string]bool {
	visited := map[string]bool{}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		for _, e := range g.OutgoingEdges(cur) {
			queue = append(queue, e.To)
		}
	}
	return visited
}

// findCycle returns the node IDs of one cycle, or nil if the graph is acyclic.
func findCycle(g *Graph) []string {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(g.Nodes))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = grey
		stack = append(stack, id)
		for _, e := range g.OutgoingEdges(id) {
			switch color[e.To] {
			case grey:
				for i, s := range stack {
					if s == e.To {
						cycle = append(append([]string{}, stack[i:]...), e.To)
						break
					}
				}
				return true
			case white:
				if visit(e.To) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for id := range g.Nodes {
		if color[id] == white && visit(id) {
			return cycle
		}
	}
	return nil
}
