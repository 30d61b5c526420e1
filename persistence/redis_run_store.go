package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/stategraph/internal/cache"
	"github.com/redis/go-redis/v9"
)

// RedisRunStore keeps runs in Redis. Each run is a JSON string key; sorted
// sets scored by start time index all runs and runs per workflow.
type RedisRunStore struct {
	client    *redis.Client
	keyPrefix string
	retention time.Duration

	mu     sync.RWMutex
	closed bool
}

// NewRedisRunStore builds a store on a cache manager's client. Keys share the
// manager's prefix. A positive retention expires run data after that long.
// The store does not own the manager; Close leaves it open.
func NewRedisRunStore(mgr *cache.Manager, retention time.Duration) (*RedisRunStore, error) {
	if mgr == nil {
		return nil, fmt.Errorf("%w: cache manager is nil", ErrInvalidInput)
	}
	return &RedisRunStore{
		client:    mgr.Client(),
		keyPrefix: mgr.Key("runs:"),
		retention: retention,
	}, nil
}

func (s *RedisRunStore) dataKey(id string) string {
	return s.keyPrefix + "data:" + id
}

func (s *RedisRunStore) allKey() string {
	return s.keyPrefix + "index:all"
}

func (s *RedisRunStore) workflowKey(name string) string {
	return s.keyPrefix + "index:workflow:" + name
}

func (s *RedisRunStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// SaveRun writes the run and its index entries in one pipeline.
func (s *RedisRunStore) SaveRun(ctx context.Context, run *RunRecord) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := validate(run); err != nil {
		return err
	}

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	score := float64(run.StartedAt.UnixNano())
	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.dataKey(run.ID), data, s.retention)
	pipe.ZAdd(ctx, s.allKey(), redis.Z{Score: score, Member: run.ID})
	pipe.ZAdd(ctx, s.workflowKey(run.Workflow), redis.Z{Score: score, Member: run.ID})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetRun loads one run.
func (s *RedisRunStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	data, err := s.client.Get(ctx, s.dataKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return decodeRun(data)
}

// ListRuns walks the relevant index newest first. Index entries whose data
// has expired are removed on the way.
func (s *RedisRunStore) ListRuns(ctx context.Context, filter RunFilter) ([]*RunRecord, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	indexKey := s.allKey()
	if filter.Workflow != "" {
		indexKey = s.workflowKey(filter.Workflow)
	}

	ids, err := s.client.ZRevRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	if len(ids) == 0 {
		return []*RunRecord{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.dataKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load runs: %w", err)
	}

	result := make([]*RunRecord, 0, len(ids))
	var stale []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		run, err := decodeRun([]byte(raw))
		if err != nil {
			return nil, err
		}
		if filter.matches(run) {
			result = append(result, run)
		}
	}
	if len(stale) > 0 {
		s.client.ZRem(ctx, indexKey, stale...)
	}
	return filter.page(result), nil
}

// DeleteRun removes a run and its index entries.
func (s *RedisRunStore) DeleteRun(ctx context.Context, id string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	run, err := s.GetRun(ctx, id)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.dataKey(id))
	pipe.ZRem(ctx, s.allKey(), id)
	pipe.ZRem(ctx, s.workflowKey(run.Workflow), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *RedisRunStore) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.client.Ping(ctx).Err()
}

// Stats reports the size of the all-runs index. Expired runs whose index
// entries have not been swept yet are included.
func (s *RedisRunStore) Stats(ctx context.Context) (StoreStats, error) {
	if err := s.checkOpen(); err != nil {
		return StoreStats{}, err
	}
	n, err := s.client.ZCard(ctx, s.allKey()).Result()
	if err != nil {
		return StoreStats{}, fmt.Errorf("failed to count runs: %w", err)
	}
	return StoreStats{Backend: "redis", Runs: n}, nil
}

// Close marks the store closed.
func (s *RedisRunStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
