package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopNode() Node {
	return NodeFunc(func(ctx context.Context, rt *Runtime, s State) (State, error) {
		return NewState(), nil
	})
}

func constRouter(label string) Router {
	return RouterFunc(func(ctx context.Context, s State) (string, error) { return label, nil })
}

func requireCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalidGraph), "expected invalid graph error, got %v", err)
	assert.Contains(t, err.Error(), string(code))
}

func TestCompile_Valid(t *testing.T) {
	t.Parallel()

	g, err := NewStateGraph("linear").
		AddNode("a", noopNode()).
		AddNode("b", noopNode()).
		AddEdge("a", "b").
		AddEdge("b", END).
		SetEntry("a").
		Compile()

	require.NoError(t, err)
	assert.Equal(t, "linear", g.Name())
	assert.Equal(t, "a", g.Entry())
	assert.Equal(t, []string{"a", "b"}, g.Nodes())

	e, ok := g.Edge("b")
	require.True(t, ok)
	assert.False(t, e.IsConditional())
	assert.Equal(t, END, e.Target())
}

func TestCompile_ValidationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		build func() *StateGraph
		code  ErrorCode
	}{
		{
			name:  "no nodes",
			build: func() *StateGraph { return NewStateGraph("g") },
			code:  CodeNoNodes,
		},
		{
			name: "entry not set",
			build: func() *StateGraph {
				return NewStateGraph("g").AddNode("a", noopNode()).AddEdge("a", END)
			},
			code: CodeNoEntry,
		},
		{
			name: "entry not registered",
			build: func() *StateGraph {
				return NewStateGraph("g").AddNode("a", noopNode()).AddEdge("a", END).SetEntry("missing")
			},
			code: CodeUnknownEntry,
		},
		{
			name: "duplicate node",
			build: func() *StateGraph {
				return NewStateGraph("g").AddNode("a", noopNode()).AddNode("a", noopNode()).
					AddEdge("a", END).SetEntry("a")
			},
			code: CodeDuplicateNode,
		},
		{
			name: "reserved name",
			build: func() *StateGraph {
				return NewStateGraph("g").AddNode("a", noopNode()).AddNode(END, noopNode()).
					AddEdge("a", END).SetEntry("a")
			},
			code: CodeReservedName,
		},
		{
			name: "nil node",
			build: func() *StateGraph {
				return NewStateGraph("g").AddNode("a", noopNode()).AddNode("b", nil).
					AddEdge("a", END).SetEntry("a")
			},
			code: CodeNilNode,
		},
		{
			name: "edge target not registered",
			build: func() *StateGraph {
				return NewStateGraph("g").AddNode("a", noopNode()).AddEdge("a", "ghost").SetEntry("a")
			},
			code: CodeUnknownTarget,
		},
		{
			name: "edge source not registered",
			build: func() *StateGraph {
				return NewStateGraph("g").AddNode("a", noopNode()).AddEdge("a", END).
					AddEdge("ghost", "a").SetEntry("a")
			},
			code: CodeUnknownSource,
		},
		{
			name: "two outgoing edges",
			build: func() *StateGraph {
				return NewStateGraph("g").AddNode("a", noopNode()).AddNode("b", noopNode()).
					AddEdge("a", "b").AddEdge("a", END).AddEdge("b", END).SetEntry("a")
			},
			code: CodeDuplicateEdge,
		},
		{
			name: "reachable node without edge",
			build: func() *StateGraph {
				return NewStateGraph("g").AddNode("a", noopNode()).AddNode("b", noopNode()).
					AddEdge("a", "b").SetEntry("a")
			},
			code: CodeMissingEdge,
		},
		{
			name: "unreachable node",
			build: func() *StateGraph {
				return NewStateGraph("g").AddNode("a", noopNode()).AddNode("island", noopNode()).
					AddEdge("a", END).AddEdge("island", END).SetEntry("a")
			},
			code: CodeUnreachable,
		},
		{
			name: "conditional route to unknown node",
			build: func() *StateGraph {
				return NewStateGraph("g").AddNode("a", noopNode()).AddNode("b", noopNode()).
					AddConditionalEdges("a", constRouter("x"), map[string]string{"x": "b", "y": "ghost"}).
					AddEdge("b", END).SetEntry("a")
			},
			code: CodeUnknownTarget,
		},
		{
			name: "conditional edge without labels",
			build: func() *StateGraph {
				return NewStateGraph("g").AddNode("a", noopNode()).
					AddConditionalEdges("a", constRouter("x"), nil).SetEntry("a")
			},
			code: CodeEmptyRoutes,
		},
		{
			name: "nil router",
			build: func() *StateGraph {
				return NewStateGraph("g").AddNode("a", noopNode()).
					AddConditionalEdges("a", nil, map[string]string{"x": END}).SetEntry("a")
			},
			code: CodeNilRouter,
		},
		{
			name: "cycle",
			build: func() *StateGraph {
				return NewStateGraph("g").AddNode("a", noopNode()).AddNode("b", noopNode()).
					AddEdge("a", "b").
					AddConditionalEdges("b", constRouter("again"), map[string]string{"again": "a", "done": END}).
					SetEntry("a")
			},
			code: CodeCycle,
		},
		{
			name: "invalid max steps",
			build: func() *StateGraph {
				return NewStateGraph("g").AddNode("a", noopNode()).AddEdge("a", END).
					SetEntry("a").WithMaxSteps(0)
			},
			code: CodeInvalidOptions,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g, err := tt.build().Compile()
			assert.Nil(t, g)
			requireCode(t, err, tt.code)
			assert.True(t, IsConfigError(err))
		})
	}
}

func TestCompile_ReportsAllProblems(t *testing.T) {
	t.Parallel()

	_, err := NewStateGraph("g").
		AddNode("a", noopNode()).
		AddNode("b", noopNode()).
		AddNode("island", noopNode()).
		AddEdge("a", "b").
		AddEdge("island", END).
		SetEntry("a").
		Compile()

	require.Error(t, err)
	msg := err.Error()
	assert.True(t, strings.Contains(msg, string(CodeMissingEdge)))
	assert.True(t, strings.Contains(msg, string(CodeUnreachable)))

	var ge *GraphError
	require.True(t, errors.As(err, &ge))
}

func TestCompile_AllowCycles(t *testing.T) {
	t.Parallel()

	_, err := NewStateGraph("loop").
		AddNode("a", noopNode()).
		AddConditionalEdges("a", constRouter("again"), map[string]string{"again": "a", "done": END}).
		SetEntry("a").
		AllowCycles().
		Compile()
	require.NoError(t, err)
}

func TestCompiledGraph_Mermaid(t *testing.T) {
	t.Parallel()

	g, err := NewStateGraph("research").
		AddNode("supervisor", noopNode()).
		AddNode("medical", noopNode()).
		AddNode("financial", noopNode()).
		AddConditionalEdges("supervisor", constRouter("medical"), map[string]string{
			"medical":   "medical",
			"financial": "financial",
		}).
		AddEdge("medical", END).
		AddEdge("financial", END).
		SetEntry("supervisor").
		Compile()
	require.NoError(t, err)

	out := g.Mermaid()
	assert.True(t, strings.HasPrefix(out, "flowchart TD\n"))
	assert.Contains(t, out, "__start__ --> supervisor")
	assert.Contains(t, out, "supervisor -.->|financial| financial")
	assert.Contains(t, out, "supervisor -.->|medical| medical")
	assert.Contains(t, out, "medical --> __end__")
}
