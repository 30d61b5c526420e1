package workflow

import (
	"context"
	"time"
)

// =============================================================================
// Workflow Streaming
// =============================================================================

// WorkflowStreamEventType defines the type of workflow stream event.
type WorkflowStreamEventType string

const (
	// WorkflowEventNodeStart is emitted before a node begins execution.
	WorkflowEventNodeStart WorkflowStreamEventType = "node_start"
	// WorkflowEventNodeComplete is emitted after a node finishes successfully.
	WorkflowEventNodeComplete WorkflowStreamEventType = "node_complete"
	// WorkflowEventNodeDegraded is emitted when a node returned a non-fatal error.
	WorkflowEventNodeDegraded WorkflowStreamEventType = "node_degraded"
	// WorkflowEventNodeError is emitted when a node or its edge fails the run.
	WorkflowEventNodeError WorkflowStreamEventType = "node_error"
)

// WorkflowStreamEvent carries information about a workflow execution event.
type WorkflowStreamEvent struct {
	Type     WorkflowStreamEventType `json:"type"`
	RunID    string                  `json:"run_id"`
	NodeID   string                  `json:"node_id,omitempty"`
	Step     int                     `json:"step"`
	Changed  []string                `json:"changed,omitempty"`
	Duration time.Duration           `json:"duration,omitempty"`
	Error    error                   `json:"-"`
}

// WorkflowStreamEmitter is a callback that receives workflow stream events.
type WorkflowStreamEmitter func(WorkflowStreamEvent)

// workflowStreamEmitterKey is the context key for WorkflowStreamEmitter.
type workflowStreamEmitterKey struct{}

// WithWorkflowStreamEmitter stores a WorkflowStreamEmitter in the context.
func WithWorkflowStreamEmitter(ctx context.Context, emitter WorkflowStreamEmitter) context.Context {
	if emitter == nil {
		return ctx
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, workflowStreamEmitterKey{}, emitter)
}

// workflowStreamEmitterFromContext retrieves the WorkflowStreamEmitter from context.
func workflowStreamEmitterFromContext(ctx context.Context) (WorkflowStreamEmitter, bool) {
	if ctx == nil {
		return nil, false
	}
	v := ctx.Value(workflowStreamEmitterKey{})
	if v == nil {
		return nil, false
	}
	emit, ok := v.(WorkflowStreamEmitter)
	return emit, ok && emit != nil
}

// =============================================================================
// Observers
// =============================================================================

// Observer receives run and node outcomes, e.g. to export metrics.
// Callbacks run synchronously on the executing goroutine.
type Observer interface {
	ObserveNode(graph, node string, status ExecutionStatus, d time.Duration)
	ObserveRun(graph string, status ExecutionStatus, d time.Duration)
}
