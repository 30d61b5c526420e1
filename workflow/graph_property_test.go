package workflow

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// buildChain wires n nodes in a line; each node bumps a counter.
func buildChain(n int) (*CompiledGraph, error) {
	b := NewStateGraph("chain")
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("n%d", i)
		b.AddNode(name, NodeFunc(func(ctx context.Context, rt *Runtime, s State) (State, error) {
			c := NewField[int]("count").GetOr(s, 0)
			return StateFrom("count", c+1, "last", rt.Node), nil
		}))
		if i > 0 {
			b.AddEdge(fmt.Sprintf("n%d", i-1), name)
		}
	}
	b.AddEdge(fmt.Sprintf("n%d", n-1), END)
	return b.SetEntry("n0").WithMaxSteps(n).Compile()
}

// Property: a valid acyclic run terminates after exactly path-length steps.
func TestProperty_RunTerminatesInPathLength(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("linear graphs visit every node once and stop at END", prop.ForAll(
		func(n int) bool {
			g, err := buildChain(n)
			if err != nil {
				t.Logf("compile failed: %v", err)
				return false
			}
			res, err := g.Run(context.Background(), NewState())
			if err != nil {
				t.Logf("run failed: %v", err)
				return false
			}
			count := NewField[int]("count").GetOr(res.State, -1)
			last := NewField[string]("last").GetOr(res.State, "")
			return len(res.Path) == n && count == n && last == fmt.Sprintf("n%d", n-1)
		},
		gen.IntRange(1, 30),
	))

	properties.TestingRun(t)
}

// Property: a router label always selects the mapped target; unknown labels fail.
func TestProperty_ConditionalRoutingCorrectness(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("declared labels route to their target", prop.ForAll(
		func(label string) bool {
			var visited []string
			g := buildRoutingGraph(t, label, &visited)
			_, err := g.Run(context.Background(), NewState())
			if err != nil {
				return false
			}
			return len(visited) == 2 && visited[1] == label
		},
		gen.OneConstOf("medical", "financial"),
	))

	properties.Property("undeclared labels abort with a routing error", prop.ForAll(
		func(label string) bool {
			if label == "medical" || label == "financial" {
				return true
			}
			var visited []string
			g := buildRoutingGraph(t, label, &visited)
			_, err := g.Run(context.Background(), NewState())
			return IsConfigError(err) && len(visited) == 1
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
