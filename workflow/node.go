package workflow

import (
	"context"

	"go.uber.org/zap"
)

// Node is a stateless transformation registered into a graph.
//
// Apply receives a private copy of the current state and returns a delta
// holding the fields it wants to change. Recoverable failures should be
// folded into the delta as placeholder values; an error that is returned
// anyway is logged and the delta is still merged. Wrap the error with Fatal
// to abort the run.
type Node interface {
	Apply(ctx context.Context, rt *Runtime, state State) (State, error)
}

// NodeFunc adapts a function to Node
type NodeFunc func(ctx context.Context, rt *Runtime, state State) (State, error)

// Apply calls f
func (f NodeFunc) Apply(ctx context.Context, rt *Runtime, state State) (State, error) {
	return f(ctx, rt, state)
}

// Runtime carries per-run capabilities into a node.
type Runtime struct {
	RunID string
	Graph string
	Node  string
	Step  int
	// Input is nil when the caller did not supply a provider.
	Input  InputProvider
	Logger *zap.Logger
}

// Prompt asks the input provider for a missing field value
func (rt *Runtime) Prompt(ctx context.Context, field string) (string, error) {
	if rt == nil || rt.Input == nil {
		return "", ErrNoInputProvider
	}
	return rt.Input.PromptForMissing(ctx, field)
}

// Log returns the runtime logger, never nil
func (rt *Runtime) Log() *zap.Logger {
	if rt == nil || rt.Logger == nil {
		return zap.NewNop()
	}
	return rt.Logger
}
