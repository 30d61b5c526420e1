// Package pipelines holds the concrete workflows built on the workflow engine.
package pipelines

import (
	"github.com/BaSui01/stategraph/workflow"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Options are the cross-cutting settings every pipeline graph accepts.
type Options struct {
	Logger         *zap.Logger
	TracerProvider trace.TracerProvider
	Observer       workflow.Observer
	// MaxSteps overrides workflow.DefaultMaxSteps when positive.
	MaxSteps int
}

// Apply copies the options onto a graph builder.
func (o Options) Apply(g *workflow.StateGraph) *workflow.StateGraph {
	if o.Logger != nil {
		g = g.WithLogger(o.Logger)
	}
	if o.TracerProvider != nil {
		g = g.WithTracerProvider(o.TracerProvider)
	}
	if o.Observer != nil {
		g = g.WithObserver(o.Observer)
	}
	if o.MaxSteps > 0 {
		g = g.WithMaxSteps(o.MaxSteps)
	}
	return g
}

// Log returns the configured logger, never nil.
func (o Options) Log() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}
