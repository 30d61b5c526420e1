package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultMaxSteps bounds a run when the caller does not set a limit.
const DefaultMaxSteps = 25

const tracerName = "github.com/BaSui01/stategraph/workflow"

// StateGraph provides a fluent API for constructing workflows.
// Errors found while adding nodes and edges are reported by Compile.
type StateGraph struct {
	name        string
	nodes       map[string]Node
	order       []string
	edges       map[string]Edge
	entry       string
	allowCycles bool
	maxSteps    int
	logger      *zap.Logger
	tp          trace.TracerProvider
	observers   []Observer
	errs        []error
}

// NewStateGraph creates a new graph builder with the given name
func NewStateGraph(name string) *StateGraph {
	return &StateGraph{
		name:     name,
		nodes:    make(map[string]Node),
		edges:    make(map[string]Edge),
		maxSteps: DefaultMaxSteps,
		logger:   zap.NewNop(),
	}
}

// WithLogger sets a custom logger
func (g *StateGraph) WithLogger(logger *zap.Logger) *StateGraph {
	if logger == nil {
		logger = zap.NewNop()
	}
	g.logger = logger
	return g
}

// WithTracerProvider sets the provider used for run and node spans.
// The global otel provider is used by default.
func (g *StateGraph) WithTracerProvider(tp trace.TracerProvider) *StateGraph {
	g.tp = tp
	return g
}

// WithObserver registers an observer that is notified for every run
func (g *StateGraph) WithObserver(o Observer) *StateGraph {
	if o != nil {
		g.observers = append(g.observers, o)
	}
	return g
}

// WithMaxSteps sets the number of node visits allowed per run
func (g *StateGraph) WithMaxSteps(n int) *StateGraph {
	if n <= 0 {
		g.errs = append(g.errs, newGraphError(CodeInvalidOptions, "", "max steps must be positive, got %d", n))
		return g
	}
	g.maxSteps = n
	return g
}

// AllowCycles permits graphs where a node can be revisited.
// Runs are then bounded only by the step limit.
func (g *StateGraph) AllowCycles() *StateGraph {
	g.allowCycles = true
	return g
}

// AddNode registers a node under a unique name
func (g *StateGraph) AddNode(name string, node Node) *StateGraph {
	switch {
	case name == "" || name == END:
		g.errs = append(g.errs, newGraphError(CodeReservedName, name, "node name %q is reserved", name))
		return g
	case node == nil:
		g.errs = append(g.errs, newGraphError(CodeNilNode, name, "node is nil"))
		return g
	}
	if _, exists := g.nodes[name]; exists {
		g.errs = append(g.errs, newGraphError(CodeDuplicateNode, name, "node registered twice"))
		return g
	}
	g.nodes[name] = node
	g.order = append(g.order, name)
	return g
}

// AddNodeFunc registers a function as a node
func (g *StateGraph) AddNodeFunc(name string, fn func(ctx context.Context, rt *Runtime, state State) (State, error)) *StateGraph {
	if fn == nil {
		return g.AddNode(name, nil)
	}
	return g.AddNode(name, NodeFunc(fn))
}

// AddEdge adds a static edge. Use END as target to finish the run.
func (g *StateGraph) AddEdge(from, to string) *StateGraph {
	return g.setEdge(Edge{kind: edgeStatic, from: from, to: to})
}

// AddConditionalEdges attaches a router to a node. The router's label is
// looked up in routes to find the next node; targets may include END.
func (g *StateGraph) AddConditionalEdges(from string, router Router, routes map[string]string) *StateGraph {
	if router == nil {
		g.errs = append(g.errs, newGraphError(CodeNilRouter, from, "conditional edge has no router"))
		return g
	}
	table := make(map[string]string, len(routes))
	for label, target := range routes {
		table[label] = target
	}
	return g.setEdge(Edge{kind: edgeConditional, from: from, router: router, routes: table})
}

func (g *StateGraph) setEdge(e Edge) *StateGraph {
	if e.from == END {
		g.errs = append(g.errs, newGraphError(CodeReservedName, e.from, "edges cannot start at the terminal marker"))
		return g
	}
	if _, exists := g.edges[e.from]; exists {
		g.errs = append(g.errs, newGraphError(CodeDuplicateEdge, e.from, "node already has an outgoing edge"))
		return g
	}
	g.edges[e.from] = e
	return g
}

// SetEntry sets the entry node for the workflow
func (g *StateGraph) SetEntry(name string) *StateGraph {
	g.entry = name
	return g
}

// Compile validates the graph and freezes it into an executable form.
func (g *StateGraph) Compile() (*CompiledGraph, error) {
	if err := g.validate(); err != nil {
		return nil, fmt.Errorf("graph %q validation failed: %w", g.name, err)
	}

	cg := &CompiledGraph{
		name:      g.name,
		entry:     g.entry,
		nodes:     make(map[string]Node, len(g.nodes)),
		order:     append([]string(nil), g.order...),
		edges:     make(map[string]Edge, len(g.edges)),
		maxSteps:  g.maxSteps,
		logger:    g.logger.With(zap.String("component", "workflow"), zap.String("graph", g.name)),
		observers: append([]Observer(nil), g.observers...),
	}
	for k, v := range g.nodes {
		cg.nodes[k] = v
	}
	for k, v := range g.edges {
		cg.edges[k] = v
	}
	tp := g.tp
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	cg.tracer = tp.Tracer(tracerName)

	g.logger.Debug("graph compiled",
		zap.String("name", g.name),
		zap.Int("nodes", len(cg.nodes)),
		zap.String("entry", cg.entry),
	)
	return cg, nil
}

// validate checks the graph structure and returns every problem found
func (g *StateGraph) validate() error {
	errs := append([]error(nil), g.errs...)

	if len(g.nodes) == 0 {
		errs = append(errs, newGraphError(CodeNoNodes, "", "graph has no nodes"))
		return errors.Join(errs...)
	}
	if g.entry == "" {
		errs = append(errs, newGraphError(CodeNoEntry, "", "entry node not set"))
		return errors.Join(errs...)
	}
	if _, ok := g.nodes[g.entry]; !ok {
		errs = append(errs, newGraphError(CodeUnknownEntry, g.entry, "entry node not registered"))
		return errors.Join(errs...)
	}

	for _, from := range g.sortedEdgeSources() {
		e := g.edges[from]
		if _, ok := g.nodes[from]; !ok {
			errs = append(errs, newGraphError(CodeUnknownSource, from, "edge starts at unregistered node"))
		}
		if e.IsConditional() && len(e.routes) == 0 {
			errs = append(errs, newGraphError(CodeEmptyRoutes, from, "conditional edge declares no labels"))
		}
		for _, label := range e.Labels() {
			if !g.isTarget(e.routes[label]) {
				ge := newGraphError(CodeUnknownTarget, from, "route targets unregistered node %q", e.routes[label])
				ge.Label = label
				errs = append(errs, ge)
			}
		}
		if !e.IsConditional() && !g.isTarget(e.to) {
			errs = append(errs, newGraphError(CodeUnknownTarget, from, "edge targets unregistered node %q", e.to))
		}
	}

	reachable := make(map[string]bool)
	g.markReachable(g.entry, reachable)
	for _, name := range g.order {
		if !reachable[name] {
			errs = append(errs, newGraphError(CodeUnreachable, name, "node is not reachable from entry %q", g.entry))
			continue
		}
		if _, ok := g.edges[name]; !ok {
			errs = append(errs, newGraphError(CodeMissingEdge, name, "reachable node has no outgoing edge"))
		}
	}

	if !g.allowCycles {
		if cycle := g.detectCycle(); cycle != "" {
			errs = append(errs, newGraphError(CodeCycle, cycle, "cycle detected"))
		}
	}

	return errors.Join(errs...)
}

func (g *StateGraph) isTarget(name string) bool {
	if name == END {
		return true
	}
	_, ok := g.nodes[name]
	return ok
}

func (g *StateGraph) sortedEdgeSources() []string {
	// registered nodes first in insertion order, then unknown sources
	out := make([]string, 0, len(g.edges))
	seen := make(map[string]bool, len(g.edges))
	for _, name := range g.order {
		if _, ok := g.edges[name]; ok {
			out = append(out, name)
			seen[name] = true
		}
	}
	var extra []string
	for from := range g.edges {
		if !seen[from] {
			extra = append(extra, from)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

// markReachable marks all nodes reachable from the given node
func (g *StateGraph) markReachable(name string, reachable map[string]bool) {
	if name == END || reachable[name] {
		return
	}
	if _, ok := g.nodes[name]; !ok {
		return
	}
	reachable[name] = true
	if e, ok := g.edges[name]; ok {
		for _, t := range e.Targets() {
			g.markReachable(t, reachable)
		}
	}
}

// detectCycle returns a node on a cycle, or "" when the graph is acyclic
func (g *StateGraph) detectCycle() string {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	var dfs func(name string) string
	dfs = func(name string) string {
		visited[name] = true
		recStack[name] = true
		if e, ok := g.edges[name]; ok {
			for _, t := range e.Targets() {
				if t == END {
					continue
				}
				if _, ok := g.nodes[t]; !ok {
					continue
				}
				if recStack[t] {
					return t
				}
				if !visited[t] {
					if c := dfs(t); c != "" {
						return c
					}
				}
			}
		}
		recStack[name] = false
		return ""
	}

	for _, name := range g.order {
		if !visited[name] {
			if c := dfs(name); c != "" {
				return c
			}
		}
	}
	return ""
}
