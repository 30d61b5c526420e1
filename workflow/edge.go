package workflow

import (
	"context"
	"sort"
)

// END is the terminal marker. An edge targeting END stops the run.
const END = "__end__"

// Router selects the label of the next node from the post-merge state.
type Router interface {
	Route(ctx context.Context, state State) (string, error)
}

// RouterFunc adapts a function to Router
type RouterFunc func(ctx context.Context, state State) (string, error)

// Route calls f
func (f RouterFunc) Route(ctx context.Context, state State) (string, error) {
	return f(ctx, state)
}

type edgeKind int

const (
	edgeStatic edgeKind = iota
	edgeConditional
)

// Edge is the outgoing transition of a node: either a fixed target
// or a router with a finite label table.
type Edge struct {
	kind   edgeKind
	from   string
	to     string
	router Router
	routes map[string]string
}

// From returns the source node
func (e Edge) From() string { return e.from }

// IsConditional reports whether the edge uses a router
func (e Edge) IsConditional() bool { return e.kind == edgeConditional }

// Target returns the static target. It is empty for conditional edges.
func (e Edge) Target() string { return e.to }

// Labels returns the declared router labels in sorted order
func (e Edge) Labels() []string {
	labels := make([]string, 0, len(e.routes))
	for l := range e.routes {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// Route returns the target for a label
func (e Edge) Route(label string) (string, bool) {
	t, ok := e.routes[label]
	return t, ok
}

// Targets returns every node the edge can lead to, deduplicated and sorted
func (e Edge) Targets() []string {
	if e.kind == edgeStatic {
		return []string{e.to}
	}
	seen := make(map[string]bool, len(e.routes))
	var out []string
	for _, t := range e.routes {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}
