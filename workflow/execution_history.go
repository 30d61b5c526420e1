package workflow

import (
	"sync"
	"time"
)

// ExecutionStatus represents the status of an execution
type ExecutionStatus string

const (
	// ExecutionStatusRunning indicates the execution is in progress
	ExecutionStatusRunning ExecutionStatus = "running"
	// ExecutionStatusCompleted indicates the execution completed successfully
	ExecutionStatusCompleted ExecutionStatus = "completed"
	// ExecutionStatusDegraded indicates completion with at least one degraded node
	ExecutionStatusDegraded ExecutionStatus = "degraded"
	// ExecutionStatusFailed indicates the execution failed
	ExecutionStatusFailed ExecutionStatus = "failed"
)

// NodeExecution records the execution of a single node
type NodeExecution struct {
	NodeID    string          `json:"node_id"`
	Step      int             `json:"step"`
	StartTime time.Time       `json:"start_time"`
	EndTime   time.Time       `json:"end_time"`
	Duration  time.Duration   `json:"duration"`
	Status    ExecutionStatus `json:"status"`
	Changed   []string        `json:"changed,omitempty"`
	Next      string          `json:"next,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// ExecutionHistory records the complete execution path of a run
type ExecutionHistory struct {
	ExecutionID string           `json:"execution_id"`
	WorkflowID  string           `json:"workflow_id"`
	StartTime   time.Time        `json:"start_time"`
	EndTime     time.Time        `json:"end_time"`
	Duration    time.Duration    `json:"duration"`
	Status      ExecutionStatus  `json:"status"`
	Nodes       []*NodeExecution `json:"nodes"`
	Error       string           `json:"error,omitempty"`
	FinalState  State            `json:"final_state"`
	mu          sync.RWMutex
}

// NewExecutionHistory creates a new execution history
func NewExecutionHistory(executionID, workflowID string) *ExecutionHistory {
	return &ExecutionHistory{
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		StartTime:   time.Now(),
		Status:      ExecutionStatusRunning,
		Nodes:       make([]*NodeExecution, 0),
		FinalState:  NewState(),
	}
}

// RecordNodeStart records the start of a node execution
func (h *ExecutionHistory) RecordNodeStart(nodeID string, step int) *NodeExecution {
	h.mu.Lock()
	defer h.mu.Unlock()

	node := &NodeExecution{
		NodeID:    nodeID,
		Step:      step,
		StartTime: time.Now(),
		Status:    ExecutionStatusRunning,
	}
	h.Nodes = append(h.Nodes, node)
	return node
}

// RecordNodeEnd records the end of a node execution.
// A non-fatal error marks the node degraded, a fatal one marks it failed.
func (h *ExecutionHistory) RecordNodeEnd(node *NodeExecution, changed []string, err error, fatal bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	node.EndTime = time.Now()
	node.Duration = node.EndTime.Sub(node.StartTime)
	node.Changed = changed

	switch {
	case err != nil && fatal:
		node.Status = ExecutionStatusFailed
		node.Error = err.Error()
	case err != nil:
		node.Status = ExecutionStatusDegraded
		node.Error = err.Error()
	default:
		node.Status = ExecutionStatusCompleted
	}
}

// RecordTransition stores the node chosen after a node finished
func (h *ExecutionHistory) RecordTransition(node *NodeExecution, next string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	node.Next = next
}

// Complete marks the execution as finished and stores the final state
func (h *ExecutionHistory) Complete(final State, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.EndTime = time.Now()
	h.Duration = h.EndTime.Sub(h.StartTime)
	h.FinalState = final.Clone()

	if err != nil {
		h.Status = ExecutionStatusFailed
		h.Error = err.Error()
		return
	}
	h.Status = ExecutionStatusCompleted
	for _, n := range h.Nodes {
		if n.Status == ExecutionStatusDegraded {
			h.Status = ExecutionStatusDegraded
			break
		}
	}
}

// GetNodes returns a copy of the node executions
func (h *ExecutionHistory) GetNodes() []*NodeExecution {
	h.mu.RLock()
	defer h.mu.RUnlock()

	nodes := make([]*NodeExecution, len(h.Nodes))
	copy(nodes, h.Nodes)
	return nodes
}

// GetNodeByID returns the first execution record for a specific node
func (h *ExecutionHistory) GetNodeByID(nodeID string) *NodeExecution {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, node := range h.Nodes {
		if node.NodeID == nodeID {
			return node
		}
	}
	return nil
}

// Path returns the visited node names in order
func (h *ExecutionHistory) Path() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	path := make([]string, 0, len(h.Nodes))
	for _, n := range h.Nodes {
		path = append(path, n.NodeID)
	}
	return path
}

// DegradedNodes returns the names of nodes that finished degraded
func (h *ExecutionHistory) DegradedNodes() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []string
	for _, n := range h.Nodes {
		if n.Status == ExecutionStatusDegraded {
			out = append(out, n.NodeID)
		}
	}
	return out
}
