package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/caseflow/pkg/pipeline"
)

func graphCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the pipeline graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			g := pipeline.BuildGraph()
			out := cmd.OutOrStdout()

			switch strings.ToLower(format) {
			case "dot":
				dot, err := pipeline.RenderDOT(g)
				if err != nil {
					return err
				}
				fmt.Fprint(out, dot)
			case "text", "":
				fmt.Fprint(out, renderText(g))
			default:
				return fmt.Errorf("unknown format %q: use text or dot", format)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "output format: text or dot")
	return cmd
}

// truncate shortens s to maxLen chars, appending "…" if needed.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "…"
}

// nodeDetail summarises what a node does beyond its kind.
func nodeDetail(n *pipeline.Node) string {
	switch n.Kind {
	case pipeline.NodeKindTask:
		parts := []string{"task=" + string(n.Task)}
		for _, p := range n.Policies {
			kinds := make([]string, len(p.ErrorKinds))
			for i, k := range p.ErrorKinds {
				kinds[i] = string(k)
			}
			parts = append(parts, fmt.Sprintf("retry[%s]=%s×%d/%s/%.1f",
				p.Name, truncate(strings.Join(kinds, ","), 60), p.MaxAttempts, p.Interval, p.BackoffRate))
		}
		return strings.Join(parts, " ")
	case pipeline.NodeKindTerminal:
		return "outcome=" + string(n.Outcome)
	}
	return ""
}

// renderText produces the human-readable text summary.
func renderText(g *pipeline.Graph) string {
	var sb strings.Builder

	order := pipeline.Order(g)
	fmt.Fprintf(&sb, "Pipeline: %s  (%d nodes, %d edges)\n", g.Name, len(g.Nodes), len(g.Edges))

	maxIDLen := 4
	for id := range g.Nodes {
		if len(id) > maxIDLen {
			maxIDLen = len(id)
		}
	}

	fmt.Fprintf(&sb, "\nNodes:\n")
	for _, id := range order {
		n := g.Nodes[id]
		fmt.Fprintf(&sb, "  %-*s  %-8s  %-28s  %s\n", maxIDLen, id, string(n.Kind), n.Label, nodeDetail(n))
	}

	fmt.Fprintf(&sb, "\nEdges:\n")
	maxFromLen := 4
	for _, e := range g.Edges {
		if len(e.From) > maxFromLen {
			maxFromLen = len(e.From)
		}
	}
	for _, e := range g.Edges {
		if e.Label != "" {
			fmt.Fprintf(&sb, "  %-*s  →  %s  (%s) [%s]\n", maxFromLen, e.From, e.To, e.Kind, e.Label)
		} else {
			fmt.Fprintf(&sb, "  %-*s  →  %s  (%s)\n", maxFromLen, e.From, e.To, e.Kind)
		}
	}

	return sb.String()
}
