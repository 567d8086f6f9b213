package pipeline

import (
	"fmt"
	"slices"
	"sort"
	"strconv"

	gographviz "github.com/awalterschulze/gographviz"
)

// Order returns node IDs in BFS order from the entry node; nodes not
// reachable from it (TimedOut) are appended in sorted order.
func Order(g *Graph) []string {
	visited := map[string]bool{}
	var order []string

	if _, ok := g.Nodes[g.Entry]; ok {
		queue := []string{g.Entry}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			if visited[cur] {
				continue
			}
			visited[cur] = true
			order = append(order, cur)
			for _, e := range g.OutgoingEdges(cur) {
				if !visited[e.To] {
					queue = append(queue, e.To)
				}
			}
		}
	}

	var rest []string
	for id := range g.Nodes {
		if !visited[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(order, rest...)
}

// RenderDOT renders g as a Graphviz digraph.
func RenderDOT(g *Graph) (string, error) {
	name := g.Name
	if name == "" {
		name = "pipeline"
	}
	out := gographviz.NewGraph()
	if err := out.SetName(name); err != nil {
		return "", fmt.Errorf("dot name: %w", err)
	}
	if err := out.SetDir(true); err != nil {
		return "", fmt.Errorf("dot dir: %w", err)
	}
	if err := out.AddAttr(name, "rankdir", "TB"); err != nil {
		return "", fmt.Errorf("dot graph attr: %w", err)
	}

	for _, id := range Order(g) {
		n := g.Nodes[id]
		label := n.Label
		if label == "" {
			label = n.ID
		}
		if n.Kind == NodeKindTask {
			label += "\n" + string(n.Task)
		}
		attrs := map[string]string{
			"label": strconv.Quote(label),
			"shape": shapeOf(n),
		}
		if err := out.AddNode(name, id, attrs); err != nil {
			return "", fmt.Errorf("dot node %q: %w", id, err)
		}
	}

	for _, e := range g.Edges {
		attrs := map[string]string{}
		if e.Label != "" {
			attrs["label"] = strconv.Quote(e.Label)
		}
		if e.Kind == EdgeCatch {
			attrs["style"] = "dashed"
		}
		if err := out.AddEdge(e.From, e.To, true, attrs); err != nil {
			return "", fmt.Errorf("dot edge %q→%q: %w", e.From, e.To, err)
		}
	}
	return out.String(), nil
}

func shapeOf(n *Node) string {
	switch n.Kind {
	case NodeKindTask:
		return "box"
	case NodeKindBranch:
		return "diamond"
	}
	if n.Outcome.Succeeded() {
		return "doublecircle"
	}
	return "octagon"
}

// Topology is the bare node and edge set of a graph, used to compare a DOT
// diagram against the built graph.
type Topology struct {
	Nodes []string
	Edges []string // "from -> to"
}

// TopologyOf returns g's topology.
func TopologyOf(g *Graph) Topology {
	var t Topology
	for id := range g.Nodes {
		t.Nodes = append(t.Nodes, id)
	}
	for _, e := range g.Edges {
		t.Edges = append(t.Edges, e.From+" -> "+e.To)
	}
	sort.Strings(t.Nodes)
	sort.Strings(t.Edges)
	return t
}

// Diff lists what other lacks or adds relative to t.
func (t Topology) Diff(other Topology) []string {
	var out []string
	for _, n := range t.Nodes {
		if !slices.Contains(other.Nodes, n) {
			out = append(out, "missing node "+n)
		}
	}
	for _, n := range other.Nodes {
		if !slices.Contains(t.Nodes, n) {
			out = append(out, "unexpected node "+n)
		}
	}
	for _, e := range t.Edges {
		if !slices.Contains(other.Edges, e) {
			out = append(out, "missing edge "+e)
		}
	}
	for _, e := range other.Edges {
		if !slices.Contains(t.Edges, e) {
			out = append(out, "unexpected edge "+e)
		}
	}
	return out
}
