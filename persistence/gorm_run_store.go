package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/stategraph/internal/database"
	"github.com/BaSui01/stategraph/workflow"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// runRow is the table layout for GormRunStore.
type runRow struct {
	ID         string    `gorm:"primaryKey;size:64"`
	Workflow   string    `gorm:"size:128;index"`
	Status     string    `gorm:"size:32;index"`
	StartedAt  time.Time `gorm:"index"`
	FinishedAt time.Time
	DurationNS int64
	Error      string `gorm:"type:text"`
	Path       string `gorm:"type:text"`
	Nodes      string `gorm:"type:text"`
	FinalState string `gorm:"type:text"`
}

func (runRow) TableName() string { return "workflow_runs" }

// GormRunStore stores runs in a SQL database through gorm.
type GormRunStore struct {
	pool        *database.PoolManager
	maxAttempts int
}

// NewGormRunStore migrates the runs table and returns a store backed by pool.
func NewGormRunStore(ctx context.Context, pool *database.PoolManager) (*GormRunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: pool is nil", ErrInvalidInput)
	}
	if err := pool.DB().WithContext(ctx).AutoMigrate(&runRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate runs table: %w", err)
	}
	return &GormRunStore{pool: pool, maxAttempts: 3}, nil
}

// SaveRun inserts or replaces a run.
func (s *GormRunStore) SaveRun(ctx context.Context, run *RunRecord) error {
	if err := validate(run); err != nil {
		return err
	}
	row, err := toRow(run)
	if err != nil {
		return err
	}
	err = s.pool.WithTransactionRetry(ctx, s.maxAttempts, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error
	})
	return s.mapErr(err)
}

// GetRun loads a run by ID.
func (s *GormRunStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	var row runRow
	err := s.pool.DB().WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, s.mapErr(err)
	}
	return fromRow(&row)
}

// ListRuns queries runs newest first.
func (s *GormRunStore) ListRuns(ctx context.Context, filter RunFilter) ([]*RunRecord, error) {
	q := s.pool.DB().WithContext(ctx).Model(&runRow{}).Order("started_at DESC")
	if filter.Workflow != "" {
		q = q.Where("workflow = ?", filter.Workflow)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var rows []runRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, s.mapErr(err)
	}
	out := make([]*RunRecord, 0, len(rows))
	for i := range rows {
		rec, err := fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// DeleteRun removes a run.
func (s *GormRunStore) DeleteRun(ctx context.Context, id string) error {
	res := s.pool.DB().WithContext(ctx).Delete(&runRow{}, "id = ?", id)
	if res.Error != nil {
		return s.mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Prune deletes runs that started before cutoff and returns how many were removed.
func (s *GormRunStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.pool.DB().WithContext(ctx).Where("started_at < ?", cutoff).Delete(&runRow{})
	return res.RowsAffected, s.mapErr(res.Error)
}

// Stats counts stored runs and snapshots the connection pool.
func (s *GormRunStore) Stats(ctx context.Context) (StoreStats, error) {
	var n int64
	if err := s.pool.DB().WithContext(ctx).Model(&runRow{}).Count(&n).Error; err != nil {
		return StoreStats{}, s.mapErr(err)
	}
	pool := s.pool.Stats()
	return StoreStats{Backend: "sql", Runs: n, Pool: &pool}, nil
}

// Ping checks the database connection.
func (s *GormRunStore) Ping(ctx context.Context) error {
	return s.mapErr(s.pool.Ping(ctx))
}

// Close closes the underlying pool.
func (s *GormRunStore) Close() error {
	return s.pool.Close()
}

func (s *GormRunStore) mapErr(err error) error {
	if errors.Is(err, database.ErrPoolClosed) {
		return ErrStoreClosed
	}
	return err
}

func toRow(run *RunRecord) (*runRow, error) {
	path, err := json.Marshal(run.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal path: %w", err)
	}
	nodes, err := json.Marshal(run.Nodes)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal nodes: %w", err)
	}
	state, err := json.Marshal(run.FinalState)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal final state: %w", err)
	}
	return &runRow{
		ID:         run.ID,
		Workflow:   run.Workflow,
		Status:     string(run.Status),
		StartedAt:  run.StartedAt.UTC(),
		FinishedAt: run.FinishedAt.UTC(),
		DurationNS: int64(run.Duration),
		Error:      run.Error,
		Path:       string(path),
		Nodes:      string(nodes),
		FinalState: string(state),
	}, nil
}

func fromRow(row *runRow) (*RunRecord, error) {
	rec := &RunRecord{
		ID:         row.ID,
		Workflow:   row.Workflow,
		Status:     workflow.ExecutionStatus(row.Status),
		StartedAt:  row.StartedAt,
		FinishedAt: row.FinishedAt,
		Duration:   time.Duration(row.DurationNS),
		Error:      row.Error,
	}
	if err := json.Unmarshal([]byte(row.Path), &rec.Path); err != nil {
		return nil, fmt.Errorf("failed to unmarshal path: %w", err)
	}
	if err := json.Unmarshal([]byte(row.Nodes), &rec.Nodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
	}
	if err := json.Unmarshal([]byte(row.FinalState), &rec.FinalState); err != nil {
		return nil, fmt.Errorf("failed to unmarshal final state: %w", err)
	}
	return rec, nil
}
