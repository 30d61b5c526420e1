package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/stategraph/config"
	"github.com/BaSui01/stategraph/internal/cache"
	"github.com/BaSui01/stategraph/internal/database"
	"github.com/BaSui01/stategraph/workflow"
	"go.uber.org/zap"
)

// Open builds the RunStore selected by cfg.Backend. The redis backend needs
// mgr; the other backends ignore it.
func Open(ctx context.Context, cfg config.HistoryConfig, mgr *cache.Manager, logger *zap.Logger) (RunStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Backend {
	case "memory":
		return NewMemoryRunStore(), nil

	case "sql", "":
		pool, err := database.Open(cfg, logger)
		if err != nil {
			return nil, err
		}
		store, err := NewGormRunStore(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		if cfg.Retention > 0 {
			if n, err := store.Prune(ctx, time.Now().Add(-cfg.Retention)); err != nil {
				logger.Warn("failed to prune run history", zap.Error(err))
			} else if n > 0 {
				logger.Debug("pruned run history", zap.Int64("removed", n))
			}
		}
		return store, nil

	case "redis":
		if mgr == nil {
			return nil, fmt.Errorf("history backend redis requires an enabled cache")
		}
		return NewRedisRunStore(mgr, cfg.Retention)

	default:
		return nil, fmt.Errorf("unsupported history backend: %s", cfg.Backend)
	}
}

// Record saves the history of a finished run.
func Record(ctx context.Context, store RunStore, res *workflow.RunResult) error {
	if res == nil || res.History == nil {
		return ErrInvalidInput
	}
	return store.SaveRun(ctx, FromHistory(res.History))
}
