package workflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// ============================================================================
// Test helpers
// ============================================================================

// setNode writes a fixed value and records the order it ran in
func setNode(order *[]string, name, field string, value any) Node {
	return NodeFunc(func(ctx context.Context, rt *Runtime, s State) (State, error) {
		*order = append(*order, name)
		return StateFrom(field, value), nil
	})
}

type recordingObserver struct {
	mu    sync.Mutex
	nodes map[string]ExecutionStatus
	runs  []ExecutionStatus
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{nodes: make(map[string]ExecutionStatus)}
}

func (o *recordingObserver) ObserveNode(graph, node string, status ExecutionStatus, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nodes[node] = status
}

func (o *recordingObserver) ObserveRun(graph string, status ExecutionStatus, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs = append(o.runs, status)
}

// ============================================================================
// Sequential execution
// ============================================================================

func TestRun_SequentialMergedState(t *testing.T) {
	t.Parallel()

	var seen float64
	g, err := NewStateGraph("chain").
		AddNode("hotel", NodeFunc(func(ctx context.Context, rt *Runtime, s State) (State, error) {
			return StateFrom("hotel_cost", 500.0), nil
		})).
		AddNode("convert", NodeFunc(func(ctx context.Context, rt *Runtime, s State) (State, error) {
			cost, ok := NewField[float64]("hotel_cost").Get(s)
			if !ok {
				return NewState(), errors.New("hotel cost missing")
			}
			seen = cost
			return StateFrom("total_cost", cost*2), nil
		})).
		AddEdge("hotel", "convert").
		AddEdge("convert", END).
		SetEntry("hotel").
		Compile()
	require.NoError(t, err)

	res, err := g.Run(context.Background(), StateFrom("user_query", "q"))
	require.NoError(t, err)

	assert.Equal(t, 500.0, seen)
	assert.Equal(t, []string{"hotel", "convert"}, res.Path)
	assert.Equal(t, []string{"user_query", "hotel_cost", "total_cost"}, res.State.Keys())
	total, _ := res.State.Get("total_cost")
	assert.Equal(t, 1000.0, total)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, ExecutionStatusCompleted, res.History.Status)
	assert.Empty(t, res.Degraded())
}

func TestRun_NodeReceivesPrivateCopy(t *testing.T) {
	t.Parallel()

	g, err := NewStateGraph("copy").
		AddNode("tamper", NodeFunc(func(ctx context.Context, rt *Runtime, s State) (State, error) {
			list, _ := s.Get("list")
			list.([]string)[0] = "tampered"
			return NewState(), nil
		})).
		AddEdge("tamper", END).
		SetEntry("tamper").
		Compile()
	require.NoError(t, err)

	initial := StateFrom("list", []string{"original"})
	final, err := g.Invoke(context.Background(), initial)
	require.NoError(t, err)

	got, _ := final.Get("list")
	assert.Equal(t, []string{"original"}, got)
	orig, _ := initial.Get("list")
	assert.Equal(t, []string{"original"}, orig)
}

// ============================================================================
// Degraded and fatal errors
// ============================================================================

func TestRun_RecoverableErrorMergesDelta(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	var order []string
	obs := newRecordingObserver()

	g, err := NewStateGraph("degraded").
		WithLogger(zap.New(core)).
		AddNode("weather", NodeFunc(func(ctx context.Context, rt *Runtime, s State) (State, error) {
			order = append(order, "weather")
			return StateFrom("weather", "Weather data unavailable."), errors.New("upstream 503")
		})).
		AddNode("summary", setNode(&order, "summary", "summary", "ok")).
		AddEdge("weather", "summary").
		AddEdge("summary", END).
		SetEntry("weather").
		WithObserver(obs).
		Compile()
	require.NoError(t, err)

	res, err := g.Run(context.Background(), NewState())
	require.NoError(t, err)

	assert.Equal(t, []string{"weather", "summary"}, order)
	w, _ := res.State.Get("weather")
	assert.Equal(t, "Weather data unavailable.", w)
	assert.Equal(t, []string{"weather"}, res.Degraded())
	assert.Equal(t, ExecutionStatusDegraded, res.History.Status)

	node := res.History.GetNodeByID("weather")
	require.NotNil(t, node)
	assert.Equal(t, ExecutionStatusDegraded, node.Status)
	assert.Equal(t, "upstream 503", node.Error)
	assert.Equal(t, []string{"weather"}, node.Changed)

	assert.Equal(t, 1, logs.FilterMessage("node degraded").Len())
	assert.Equal(t, ExecutionStatusDegraded, obs.nodes["weather"])
	assert.Equal(t, ExecutionStatusCompleted, obs.nodes["summary"])
	assert.Equal(t, []ExecutionStatus{ExecutionStatusDegraded}, obs.runs)
}

func TestRun_FatalErrorAborts(t *testing.T) {
	t.Parallel()

	var order []string
	boom := errors.New("credentials rejected")
	g, err := NewStateGraph("fatal").
		AddNode("first", setNode(&order, "first", "a", 1)).
		AddNode("broken", NodeFunc(func(ctx context.Context, rt *Runtime, s State) (State, error) {
			order = append(order, "broken")
			return StateFrom("partial", true), Fatal(boom)
		})).
		AddNode("never", setNode(&order, "never", "b", 2)).
		AddEdge("first", "broken").
		AddEdge("broken", "never").
		AddEdge("never", END).
		SetEntry("first").
		Compile()
	require.NoError(t, err)

	res, err := g.Run(context.Background(), NewState())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, IsFatal(err))
	assert.False(t, IsConfigError(err))

	require.NotNil(t, res)
	assert.Equal(t, []string{"first", "broken"}, order)
	assert.False(t, res.State.Has("partial"), "fatal node delta must not be merged")
	assert.True(t, res.State.Has("a"))
	assert.Equal(t, ExecutionStatusFailed, res.History.Status)
}

func TestRun_PanicIsFatal(t *testing.T) {
	t.Parallel()

	g, err := NewStateGraph("panic").
		AddNode("p", NodeFunc(func(ctx context.Context, rt *Runtime, s State) (State, error) {
			panic("bad node")
		})).
		AddEdge("p", END).
		SetEntry("p").
		Compile()
	require.NoError(t, err)

	_, err = g.Run(context.Background(), NewState())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad node")
}

func TestRun_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	g, err := NewStateGraph("cancel").
		AddNode("first", NodeFunc(func(ctx context.Context, rt *Runtime, s State) (State, error) {
			calls.Add(1)
			cancel()
			return NewState(), nil
		})).
		AddNode("second", NodeFunc(func(ctx context.Context, rt *Runtime, s State) (State, error) {
			calls.Add(1)
			return NewState(), nil
		})).
		AddEdge("first", "second").
		AddEdge("second", END).
		SetEntry("first").
		Compile()
	require.NoError(t, err)

	_, err = g.Run(ctx, NewState())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), calls.Load())
}

// ============================================================================
// Routing
// ============================================================================

func buildRoutingGraph(t *testing.T, label string, visited *[]string) *CompiledGraph {
	t.Helper()
	g, err := NewStateGraph("routing").
		AddNode("supervisor", setNode(visited, "supervisor", "next", label)).
		AddNode("medical", setNode(visited, "medical", "branch", "medical")).
		AddNode("financial", setNode(visited, "financial", "branch", "financial")).
		AddConditionalEdges("supervisor", RouterFunc(func(ctx context.Context, s State) (string, error) {
			return NewField[string]("next").GetOr(s, ""), nil
		}), map[string]string{"medical": "medical", "financial": "financial"}).
		AddEdge("medical", END).
		AddEdge("financial", END).
		SetEntry("supervisor").
		Compile()
	require.NoError(t, err)
	return g
}

func TestRun_ConditionalRouting(t *testing.T) {
	t.Parallel()

	var visited []string
	g := buildRoutingGraph(t, "financial", &visited)

	res, err := g.Run(context.Background(), NewState())
	require.NoError(t, err)
	assert.Equal(t, []string{"supervisor", "financial"}, visited)
	assert.Equal(t, "financial", res.History.GetNodeByID("supervisor").Next)
}

func TestRun_UnmappedLabelIsConfigError(t *testing.T) {
	t.Parallel()

	var visited []string
	g := buildRoutingGraph(t, "sports", &visited)

	res, err := g.Run(context.Background(), NewState())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRouting)
	assert.True(t, IsConfigError(err))

	var ge *GraphError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, CodeUnmappedLabel, ge.Code)
	assert.Equal(t, "sports", ge.Label)
	assert.Equal(t, "supervisor", ge.Node)

	assert.Equal(t, []string{"supervisor"}, visited)
	assert.Equal(t, ExecutionStatusFailed, res.History.Status)
	assert.True(t, res.State.Has("next"), "supervisor delta is merged before routing")
}

func TestRun_RouterErrorIsFatal(t *testing.T) {
	t.Parallel()

	g, err := NewStateGraph("router-error").
		AddNode("a", noopNode()).
		AddConditionalEdges("a", RouterFunc(func(ctx context.Context, s State) (string, error) {
			return "", errors.New("cannot classify")
		}), map[string]string{"x": END}).
		SetEntry("a").
		Compile()
	require.NoError(t, err)

	_, err = g.Run(context.Background(), NewState())
	assert.ErrorIs(t, err, ErrRouting)
}

func TestRun_StepLimit(t *testing.T) {
	t.Parallel()

	g, err := NewStateGraph("loop").
		AddNode("tick", NodeFunc(func(ctx context.Context, rt *Runtime, s State) (State, error) {
			n := NewField[int]("n").GetOr(s, 0)
			return StateFrom("n", n+1), nil
		})).
		AddConditionalEdges("tick", RouterFunc(func(ctx context.Context, s State) (string, error) {
			return "again", nil
		}), map[string]string{"again": "tick", "done": END}).
		SetEntry("tick").
		AllowCycles().
		WithMaxSteps(5).
		Compile()
	require.NoError(t, err)

	res, err := g.Run(context.Background(), NewState())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStepLimit)
	assert.False(t, IsConfigError(err))
	n, _ := res.State.Get("n")
	assert.Equal(t, 5, n)
}

func TestRun_BoundedLoop(t *testing.T) {
	t.Parallel()

	g, err := NewStateGraph("retry").
		AddNode("tick", NodeFunc(func(ctx context.Context, rt *Runtime, s State) (State, error) {
			n := NewField[int]("n").GetOr(s, 0)
			return StateFrom("n", n+1), nil
		})).
		AddConditionalEdges("tick", RouterFunc(func(ctx context.Context, s State) (string, error) {
			if NewField[int]("n").GetOr(s, 0) < 3 {
				return "again", nil
			}
			return "done", nil
		}), map[string]string{"again": "tick", "done": END}).
		SetEntry("tick").
		AllowCycles().
		Compile()
	require.NoError(t, err)

	res, err := g.Run(context.Background(), NewState())
	require.NoError(t, err)
	assert.Equal(t, []string{"tick", "tick", "tick"}, res.Path)
}

// ============================================================================
// Runtime capabilities
// ============================================================================

func TestRun_InputProviderInjected(t *testing.T) {
	t.Parallel()

	ask := NodeFunc(func(ctx context.Context, rt *Runtime, s State) (State, error) {
		v, err := rt.Prompt(ctx, "city")
		if err != nil {
			return NewState(), err
		}
		return StateFrom("city", v), nil
	})
	g, err := NewStateGraph("ask").AddNode("ask", ask).AddEdge("ask", END).SetEntry("ask").Compile()
	require.NoError(t, err)

	final, err := g.Invoke(context.Background(), NewState(), WithInput(StaticInput{"city": "Lisbon"}), WithRunID("run-1"))
	require.NoError(t, err)
	city, _ := final.Get("city")
	assert.Equal(t, "Lisbon", city)

	res, err := g.Run(context.Background(), NewState())
	require.NoError(t, err)
	assert.False(t, res.State.Has("city"))
	assert.Equal(t, ErrNoInputProvider.Error(), res.History.GetNodeByID("ask").Error)
}

func TestRun_StreamEvents(t *testing.T) {
	t.Parallel()

	var order []string
	g, err := NewStateGraph("events").
		AddNode("a", setNode(&order, "a", "x", 1)).
		AddNode("b", NodeFunc(func(ctx context.Context, rt *Runtime, s State) (State, error) {
			return NewState(), errors.New("soft failure")
		})).
		AddEdge("a", "b").
		AddEdge("b", END).
		SetEntry("a").
		Compile()
	require.NoError(t, err)

	var events []WorkflowStreamEvent
	ctx := WithWorkflowStreamEmitter(context.Background(), func(e WorkflowStreamEvent) {
		events = append(events, e)
	})
	_, err = g.Run(ctx, NewState(), WithRunID("run-events"))
	require.NoError(t, err)

	require.Len(t, events, 4)
	assert.Equal(t, WorkflowEventNodeStart, events[0].Type)
	assert.Equal(t, WorkflowEventNodeComplete, events[1].Type)
	assert.Equal(t, []string{"x"}, events[1].Changed)
	assert.Equal(t, WorkflowEventNodeStart, events[2].Type)
	assert.Equal(t, WorkflowEventNodeDegraded, events[3].Type)
	assert.EqualError(t, events[3].Error, "soft failure")
	for _, e := range events {
		assert.Equal(t, "run-events", e.RunID)
	}
}

func TestRun_Spans(t *testing.T) {
	t.Parallel()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	var order []string
	g, err := NewStateGraph("traced").
		WithTracerProvider(tp).
		AddNode("a", setNode(&order, "a", "x", 1)).
		AddNode("b", setNode(&order, "b", "y", 2)).
		AddEdge("a", "b").
		AddEdge("b", END).
		SetEntry("a").
		Compile()
	require.NoError(t, err)

	_, err = g.Run(context.Background(), NewState())
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 3)
	names := map[string]int{}
	for _, s := range spans {
		names[s.Name()]++
	}
	assert.Equal(t, 1, names["workflow.run"])
	assert.Equal(t, 2, names["workflow.node"])
}

func TestCompiledGraph_ConcurrentRuns(t *testing.T) {
	t.Parallel()

	g, err := NewStateGraph("shared").
		AddNode("inc", NodeFunc(func(ctx context.Context, rt *Runtime, s State) (State, error) {
			n := NewField[int]("n").GetOr(s, 0)
			return StateFrom("n", n+1), nil
		})).
		AddEdge("inc", END).
		SetEntry("inc").
		Compile()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			final, err := g.Invoke(context.Background(), StateFrom("n", i))
			assert.NoError(t, err)
			n, _ := final.Get("n")
			assert.Equal(t, i+1, n)
		}(i)
	}
	wg.Wait()
}
