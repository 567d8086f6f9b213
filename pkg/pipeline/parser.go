package pipeline

import (
	"fmt"
	"sort"
	"strings"

	gographviz "github.com/awalterschulze/gographviz"
)

// ParseTopology reads the node and edge set of a DOT digraph, such as a
// hand-maintained diagram of the pipeline. Attributes are ignored.
func ParseTopology(src string) (Topology, error) {
	graphAst, err := gographviz.ParseString(src)
	if err != nil {
		return Topology{}, fmt.Errorf("dot parse error: %w", err)
	}

	// A permissive collector accepts any attribute name, unlike
	// gographviz.Graph, so diagrams drawn with other tools still parse.
	collector := newTopologyCollector()
	if err := gographviz.Analyse(graphAst, collector); err != nil {
		return Topology{}, fmt.Errorf("dot analyse error: %w", err)
	}

	t := Topology{Edges: collector.edges}
	for id := range collector.nodes {
		t.Nodes = append(t.Nodes, id)
	}
	sort.Strings(t.Nodes)
	sort.Strings(t.Edges)
	return t, nil
}

// ─── permissive DOT collector ─────────────────────────────────────────────────

// topologyCollector implements gographviz.Interface without attribute
// validation, keeping only node IDs and edges.
type topologyCollector struct {
	name  string
	nodes map[string]bool
	edges []string
}

func newTopologyCollector() *topologyCollector {
	return &topologyCollector{nodes: make(map[string]bool)}
}

func (c *topologyCollector) SetStrict(_ bool) error { return nil }
func (c *topologyCollector) SetDir(_ bool) error    { return nil }
func (c *topologyCollector) SetName(n string) error { c.name = unquote(n); return nil }
func (c *topologyCollector) String() string         { return c.name }

func (c *topologyCollector) AddNode(_ string, name string, _ map[string]string) error {
	c.nodes[unquote(name)] = true
	return nil
}

func (c *topologyCollector) AddEdge(src, dst string, _ bool, _ map[string]string) error {
	from, to := unquote(src), unquote(dst)
	c.nodes[from] = true
	c.nodes[to] = true
	c.edges = append(c.edges, from+" -> "+to)
	return nil
}

func (c *topologyCollector) AddPortEdge(src, _, dst, _ string, directed bool, attrs map[string]string) error {
	return c.AddEdge(src, dst, directed, attrs)
}

func (c *topologyCollector) AddAttr(_ string, _, _ string) error { return nil }

func (c *topologyCollector) AddSubGraph(_, _ string, _ map[string]string) error { return nil }

// unquote strips surrounding double-quotes from a DOT identifier.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
