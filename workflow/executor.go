package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/stategraph/internal/ctxkeys"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// CompiledGraph is a validated, immutable graph. It is safe for concurrent
// use by independent runs.
type CompiledGraph struct {
	name      string
	entry     string
	nodes     map[string]Node
	order     []string
	edges     map[string]Edge
	maxSteps  int
	logger    *zap.Logger
	tracer    trace.Tracer
	observers []Observer
}

// Name returns the graph name
func (g *CompiledGraph) Name() string { return g.name }

// Entry returns the entry node name
func (g *CompiledGraph) Entry() string { return g.entry }

// Nodes returns node names in registration order
func (g *CompiledGraph) Nodes() []string {
	return append([]string(nil), g.order...)
}

// Edge returns the outgoing edge of a node
func (g *CompiledGraph) Edge(node string) (Edge, bool) {
	e, ok := g.edges[node]
	return e, ok
}

// RunResult is the outcome of a single run
type RunResult struct {
	RunID   string
	State   State
	Path    []string
	History *ExecutionHistory
}

// Degraded returns the nodes that completed with a non-fatal error
func (r *RunResult) Degraded() []string {
	if r == nil || r.History == nil {
		return nil
	}
	return r.History.DegradedNodes()
}

// RunOption configures a single run
type RunOption func(*runConfig)

type runConfig struct {
	runID     string
	input     InputProvider
	observers []Observer
}

// WithRunID overrides the generated run ID
func WithRunID(id string) RunOption {
	return func(c *runConfig) { c.runID = id }
}

// WithInput injects the provider used by nodes to ask for missing fields
func WithInput(p InputProvider) RunOption {
	return func(c *runConfig) { c.input = p }
}

// WithRunObserver adds an observer for this run only
func WithRunObserver(o Observer) RunOption {
	return func(c *runConfig) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

// Invoke runs the graph and returns the final state
func (g *CompiledGraph) Invoke(ctx context.Context, initial State, opts ...RunOption) (State, error) {
	res, err := g.Run(ctx, initial, opts...)
	return res.State, err
}

// Run executes the graph from its entry node until a transition reaches END.
//
// Nodes run strictly one after another; each node sees the state with every
// earlier delta merged. The returned result is never nil: on a fatal error it
// holds the state reached so far and the partial history.
func (g *CompiledGraph) Run(ctx context.Context, initial State, opts ...RunOption) (*RunResult, error) {
	cfg := runConfig{observers: g.observers}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.runID == "" {
		cfg.runID = uuid.NewString()
	}

	logger := g.logger.With(zap.String("run_id", cfg.runID))
	history := NewExecutionHistory(cfg.runID, g.name)
	emit, _ := workflowStreamEmitterFromContext(ctx)

	ctx, span := g.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("workflow.graph", g.name),
		attribute.String("workflow.run_id", cfg.runID),
	))
	defer span.End()

	logger.Info("starting workflow run", zap.String("entry_node", g.entry))

	state := initial.Clone()
	result := &RunResult{RunID: cfg.runID, History: history}
	start := time.Now()

	finish := func(err error) (*RunResult, error) {
		history.Complete(state, err)
		result.State = state
		result.Path = history.Path()
		status := history.Status
		for _, o := range cfg.observers {
			o.ObserveRun(g.name, status, time.Since(start))
		}
		span.SetAttributes(attribute.String("workflow.status", string(status)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error("workflow run failed", zap.Error(err))
			return result, err
		}
		logger.Info("workflow run completed",
			zap.String("status", string(status)),
			zap.Int("steps", len(result.Path)),
			zap.Duration("duration", time.Since(start)),
		)
		return result, nil
	}

	current := g.entry
	for step := 0; current != END; step++ {
		if step >= g.maxSteps {
			return finish(&GraphError{
				Code:    CodeStepLimit,
				Node:    current,
				Message: fmt.Sprintf("run exceeded %d steps", g.maxSteps),
			})
		}
		if err := ctx.Err(); err != nil {
			return finish(fmt.Errorf("run cancelled before node %s: %w", current, err))
		}

		rt := &Runtime{
			RunID:  cfg.runID,
			Graph:  g.name,
			Node:   current,
			Step:   step,
			Input:  cfg.input,
			Logger: logger.With(zap.String("node_id", current)),
		}
		record := history.RecordNodeStart(current, step)
		emitEvent(emit, WorkflowStreamEvent{Type: WorkflowEventNodeStart, RunID: cfg.runID, NodeID: current, Step: step})

		delta, fatal, nodeErr := g.executeNode(ctx, rt, current, state)
		if fatal {
			history.RecordNodeEnd(record, nil, nodeErr, true)
			g.observeNode(cfg.observers, current, ExecutionStatusFailed, record.Duration)
			emitEvent(emit, WorkflowStreamEvent{Type: WorkflowEventNodeError, RunID: cfg.runID, NodeID: current, Step: step, Error: nodeErr})
			return finish(fmt.Errorf("node %s failed: %w", current, nodeErr))
		}

		var changed []string
		state, changed = mergeState(state, delta)
		history.RecordNodeEnd(record, changed, nodeErr, false)

		evt := WorkflowStreamEvent{RunID: cfg.runID, NodeID: current, Step: step, Changed: changed, Duration: record.Duration}
		if nodeErr != nil {
			logger.Warn("node degraded",
				zap.String("node_id", current),
				zap.Strings("changed", changed),
				zap.Error(nodeErr),
			)
			g.observeNode(cfg.observers, current, ExecutionStatusDegraded, record.Duration)
			evt.Type = WorkflowEventNodeDegraded
			evt.Error = nodeErr
		} else {
			g.observeNode(cfg.observers, current, ExecutionStatusCompleted, record.Duration)
			evt.Type = WorkflowEventNodeComplete
		}
		emitEvent(emit, evt)

		next, err := g.next(ctx, current, state)
		if err != nil {
			emitEvent(emit, WorkflowStreamEvent{Type: WorkflowEventNodeError, RunID: cfg.runID, NodeID: current, Step: step, Error: err})
			return finish(err)
		}
		history.RecordTransition(record, next)
		logger.Debug("transition", zap.String("from", current), zap.String("to", next))
		current = next
	}

	return finish(nil)
}

// executeNode applies a node inside its own span. fatal reports whether
// the returned error must abort the run.
func (g *CompiledGraph) executeNode(ctx context.Context, rt *Runtime, name string, state State) (delta State, fatal bool, err error) {
	ctx, span := g.tracer.Start(ctx, "workflow.node", trace.WithAttributes(
		attribute.String("workflow.node", name),
		attribute.Int("workflow.step", rt.Step),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			fatal = true
			delta = State{}
		}
		if err != nil {
			span.RecordError(err)
			if fatal {
				span.SetStatus(codes.Error, err.Error())
				rt.Log().Error("node execution failed",
					zap.Duration("duration", time.Since(start)),
					zap.Error(err),
				)
			}
		}
	}()

	ctx = ctxkeys.WithNode(ctxkeys.WithRunID(ctx, rt.RunID), name)
	delta, err = g.nodes[name].Apply(ctx, rt, state.Clone())
	if err == nil {
		return delta, false, nil
	}
	return delta, isFatalNodeError(ctx, err), err
}

func isFatalNodeError(ctx context.Context, err error) bool {
	if IsFatal(err) {
		return true
	}
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return true
	}
	return false
}

// next resolves the outgoing edge of a node against the merged state
func (g *CompiledGraph) next(ctx context.Context, current string, state State) (string, error) {
	e, ok := g.edges[current]
	if !ok {
		return "", newGraphError(CodeMissingEdge, current, "node has no outgoing edge")
	}
	if !e.IsConditional() {
		return e.to, nil
	}

	label, err := e.router.Route(ctx, state.Clone())
	if err != nil {
		return "", &GraphError{Code: CodeRouterFailed, Node: current, Message: "router failed", Err: err}
	}
	target, ok := e.routes[label]
	if !ok {
		return "", &GraphError{
			Code:    CodeUnmappedLabel,
			Node:    current,
			Label:   label,
			Message: fmt.Sprintf("router returned unmapped label %q, declared labels %v", label, e.Labels()),
		}
	}
	return target, nil
}

func (g *CompiledGraph) observeNode(observers []Observer, node string, status ExecutionStatus, d time.Duration) {
	for _, o := range observers {
		o.ObserveNode(g.name, node, status, d)
	}
}

func emitEvent(emit WorkflowStreamEmitter, evt WorkflowStreamEvent) {
	if emit != nil {
		emit(evt)
	}
}
