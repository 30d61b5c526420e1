package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemoryRunStore is an in-memory RunStore. Data is lost on restart.
type MemoryRunStore struct {
	runs   map[string][]byte
	mu     sync.RWMutex
	closed bool
}

// NewMemoryRunStore creates an empty in-memory store.
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: make(map[string][]byte)}
}

// SaveRun stores a copy of the record, replacing any record with the same ID.
func (s *MemoryRunStore) SaveRun(ctx context.Context, run *RunRecord) error {
	if err := validate(run); err != nil {
		return err
	}
	// Stored encoded so later mutation by the caller cannot leak in.
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.runs[run.ID] = data
	return nil
}

// GetRun returns the record with the given ID.
func (s *MemoryRunStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	data, ok := s.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return decodeRun(data)
}

// ListRuns returns matching records, newest first.
func (s *MemoryRunStore) ListRuns(ctx context.Context, filter RunFilter) ([]*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	result := make([]*RunRecord, 0, len(s.runs))
	for _, data := range s.runs {
		run, err := decodeRun(data)
		if err != nil {
			return nil, err
		}
		if filter.matches(run) {
			result = append(result, run)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})
	return filter.page(result), nil
}

// DeleteRun removes a record.
func (s *MemoryRunStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if _, ok := s.runs[id]; !ok {
		return ErrNotFound
	}
	delete(s.runs, id)
	return nil
}

// Ping reports whether the store is open.
func (s *MemoryRunStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Stats reports the number of stored runs.
func (s *MemoryRunStore) Stats(ctx context.Context) (StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return StoreStats{}, ErrStoreClosed
	}
	return StoreStats{Backend: "memory", Runs: int64(len(s.runs))}, nil
}

// Close closes the store.
func (s *MemoryRunStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func decodeRun(data []byte) (*RunRecord, error) {
	var run RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &run, nil
}
