package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/stategraph/internal/database"
	"github.com/BaSui01/stategraph/workflow"
)

// Common errors
var (
	ErrNotFound     = errors.New("run not found")
	ErrStoreClosed  = errors.New("store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// RunRecord is the persisted form of a finished run.
type RunRecord struct {
	ID         string                   `json:"id"`
	Workflow   string                   `json:"workflow"`
	Status     workflow.ExecutionStatus `json:"status"`
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt time.Time                `json:"finished_at"`
	Duration   time.Duration            `json:"duration"`
	Error      string                   `json:"error,omitempty"`
	Path       []string                 `json:"path"`
	Nodes      []workflow.NodeExecution `json:"nodes"`
	FinalState workflow.State           `json:"final_state"`
}

// Degraded returns the nodes that finished degraded.
func (r *RunRecord) Degraded() []string {
	var out []string
	for _, n := range r.Nodes {
		if n.Status == workflow.ExecutionStatusDegraded {
			out = append(out, n.NodeID)
		}
	}
	return out
}

// FromHistory snapshots a completed execution history.
func FromHistory(h *workflow.ExecutionHistory) *RunRecord {
	if h == nil {
		return nil
	}
	nodes := h.GetNodes()
	rec := &RunRecord{
		ID:         h.ExecutionID,
		Workflow:   h.WorkflowID,
		Status:     h.Status,
		StartedAt:  h.StartTime,
		FinishedAt: h.EndTime,
		Duration:   h.Duration,
		Error:      h.Error,
		Path:       h.Path(),
		Nodes:      make([]workflow.NodeExecution, 0, len(nodes)),
		FinalState: h.FinalState.Clone(),
	}
	for _, n := range nodes {
		rec.Nodes = append(rec.Nodes, *n)
	}
	return rec
}

// RunFilter narrows ListRuns. Zero values match everything.
type RunFilter struct {
	Workflow string
	Status   workflow.ExecutionStatus
	Limit    int
	Offset   int
}

func (f RunFilter) matches(r *RunRecord) bool {
	if f.Workflow != "" && r.Workflow != f.Workflow {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	return true
}

// page applies offset and limit to a newest-first slice.
func (f RunFilter) page(runs []*RunRecord) []*RunRecord {
	if f.Offset > 0 {
		if f.Offset >= len(runs) {
			return []*RunRecord{}
		}
		runs = runs[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(runs) {
		runs = runs[:f.Limit]
	}
	return runs
}

// RunStore persists run records. ListRuns returns newest runs first.
type RunStore interface {
	SaveRun(ctx context.Context, run *RunRecord) error
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*RunRecord, error)
	DeleteRun(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Close() error
}

// StoreStats describes a store for the health command. Pool is set only for
// the SQL backend.
type StoreStats struct {
	Backend string
	Runs    int64
	Pool    *database.PoolStats
}

// StatsReporter is implemented by stores that can describe themselves.
type StatsReporter interface {
	Stats(ctx context.Context) (StoreStats, error)
}

func validate(run *RunRecord) error {
	if run == nil || run.ID == "" || run.Workflow == "" {
		return ErrInvalidInput
	}
	return nil
}
