package pipeline_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravi-parthasarathy/caseflow/pkg/pipeline"
)

func lintMessages(errs []pipeline.LintError) string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "\n")
}

func TestBuildGraphIsValid(t *testing.T) {
	g := pipeline.BuildGraph()
	errs := pipeline.Validate(g)
	assert.Empty(t, errs, lintMessages(errs))
	assert.NoError(t, pipeline.ValidateErr(g))

	assert.Equal(t, pipeline.GraphName, g.Name)
	assert.Equal(t, pipeline.StateEntryBranch, g.Entry)
	assert.Len(t, g.Nodes, 14)

	for _, task := range pipeline.Tasks {
		found := false
		for _, n := range g.Nodes {
			if n.Kind == pipeline.NodeKindTask && n.Task == task {
				found = true
			}
		}
		assert.True(t, found, "no node invokes %s", task)
	}
}

func TestGraphTaskPolicies(t *testing.T) {
	g := pipeline.BuildGraph()

	update := g.Nodes[pipeline.StateUpdateTask]
	require.Len(t, update.Policies, 2)
	assert.Equal(t, pipeline.DefaultRetryPolicy(), update.Policies[0])
	assert.Equal(t, pipeline.EventLagRetryPolicy(), update.Policies[1])

	for _, id := range []string{pipeline.StateCreateTask, pipeline.StateTranslateTask, pipeline.StateClassifyTask} {
		n := g.Nodes[id]
		require.Len(t, n.Policies, 1, id)
		assert.Equal(t, pipeline.DefaultRetryPolicy(), n.Policies[0], id)

		catch := g.OutgoingEdges(id)
		require.Len(t, catch, 2, id)
		assert.Equal(t, pipeline.StateFail, catch[1].To, id)
		assert.Equal(t, pipeline.EdgeCatch, catch[1].Kind, id)
	}

	timedOut, ok := g.TerminalFor(pipeline.OutcomeTimedOut)
	require.True(t, ok)
	assert.Empty(t, g.IncomingEdges(timedOut))
	assert.Len(t, g.IncomingEdges(pipeline.StateFail), 4)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(g *pipeline.Graph)
		want   string
	}{
		{
			name:   "missing entry",
			mutate: func(g *pipeline.Graph) { g.Entry = "Nowhere" },
			want:   `entry node "Nowhere" does not exist`,
		},
		{
			name:   "terminal entry",
			mutate: func(g *pipeline.Graph) { g.Entry = pipeline.StateDone },
			want:   "entry node must not be terminal",
		},
		{
			name: "dangling edge",
			mutate: func(g *pipeline.Graph) {
				g.Edges = append(g.Edges, &pipeline.Edge{From: pipeline.StateEntryBranch, To: "Ghost", Kind: pipeline.EdgeChoice})
			},
			want: `unknown target node "Ghost"`,
		},
		{
			name: "cycle",
			mutate: func(g *pipeline.Graph) {
				for _, e := range g.Edges {
					if e.From == pipeline.StateTranslateTask && e.Kind == pipeline.EdgeNext {
						e.To = pipeline.StateTranslationGate
					}
				}
			},
			want: "graph has a cycle",
		},
		{
			name: "unreachable node",
			mutate: func(g *pipeline.Graph) {
				g.Nodes["Orphan"] = &pipeline.Node{ID: "Orphan", Kind: pipeline.NodeKindTerminal, Outcome: "Orphaned"}
			},
			want: `node "Orphan": node is not reachable from entry`,
		},
		{
			name:   "missing timed out terminal",
			mutate: func(g *pipeline.Graph) { delete(g.Nodes, pipeline.StateTimedOut) },
			want:   "graph has no TimedOut terminal",
		},
		{
			name: "duplicate outcome",
			mutate: func(g *pipeline.Graph) {
				g.Nodes[pipeline.StateAfterUpdate].Outcome = pipeline.OutcomeDone
			},
			want: `outcome "Done" already resolved`,
		},
		{
			name: "catch not leading to fail",
			mutate: func(g *pipeline.Graph) {
				for _, e := range g.Edges {
					if e.From == pipeline.StateCreateTask && e.Kind == pipeline.EdgeCatch {
						e.To = pipeline.StateDone
					}
				}
			},
			want: "catch edge must lead to the Fail terminal",
		},
		{
			name: "branch without default",
			mutate: func(g *pipeline.Graph) {
				var kept []*pipeline.Edge
				for _, e := range g.Edges {
					if !(e.From == pipeline.StateTranslationGate && e.Kind == pipeline.EdgeDefault) {
						kept = append(kept, e)
					}
				}
				g.Edges = kept
			},
			want: "branch node needs exactly one default edge, has 0",
		},
		{
			name: "terminal with outgoing edge",
			mutate: func(g *pipeline.Graph) {
				g.Edges = append(g.Edges, &pipeline.Edge{From: pipeline.StateTimedOut, To: pipeline.StateFail, Kind: pipeline.EdgeNext})
			},
			want: "terminal node must not have outgoing edges",
		},
		{
			name: "incomplete retry policy",
			mutate: func(g *pipeline.Graph) {
				g.Nodes[pipeline.StateClassifyTask].Policies = []pipeline.RetryPolicy{{Name: "empty"}}
			},
			want: `retry policy "empty" is incomplete`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g := pipeline.BuildGraph()
			tc.mutate(g)
			errs := pipeline.Validate(g)
			require.NotEmpty(t, errs)
			assert.Contains(t, lintMessages(errs), tc.want)

			err := pipeline.ValidateErr(g)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLintErrorFormat(t *testing.T) {
	assert.Equal(t, `node "X": broken`, pipeline.LintError{NodeID: "X", Message: "broken"}.Error())
	assert.Equal(t, "broken", pipeline.LintError{Message: "broken"}.Error())
}
