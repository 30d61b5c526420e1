package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BaSui01/stategraph/internal/retry"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// =============================================================================
// 🗄️ 运行记录数据库连接池
// =============================================================================

// ErrPoolClosed 连接池已关闭
var ErrPoolClosed = errors.New("pool is closed")

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	// HealthCheckInterval 后台 Ping 间隔，0 表示不启动
	HealthCheckInterval time.Duration
	// PingTimeout 单次后台 Ping 的超时
	PingTimeout time.Duration
}

// DefaultPoolConfig 返回默认连接池配置；sqlite 单写者，默认只开一个连接
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:    1,
		MaxOpenConns:    1,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		PingTimeout:     5 * time.Second,
	}
}

// Validate 校验连接池配置
func (c PoolConfig) Validate() error {
	switch {
	case c.MaxOpenConns <= 0:
		return fmt.Errorf("max_open_conns must be positive, got %d", c.MaxOpenConns)
	case c.MaxIdleConns <= 0:
		return fmt.Errorf("max_idle_conns must be positive, got %d", c.MaxIdleConns)
	case c.MaxIdleConns > c.MaxOpenConns:
		return fmt.Errorf("max_idle_conns (%d) exceeds max_open_conns (%d)", c.MaxIdleConns, c.MaxOpenConns)
	case c.HealthCheckInterval < 0:
		return fmt.Errorf("health_check_interval must not be negative, got %s", c.HealthCheckInterval)
	}
	return nil
}

// PoolManager 持有运行记录库的 GORM 句柄与底层连接池
type PoolManager struct {
	db      *gorm.DB
	sqlDB   *sql.DB
	config  PoolConfig
	logger  *zap.Logger
	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	healthy atomic.Bool
}

// NewPoolManager 应用连接池配置；HealthCheckInterval > 0 时启动后台 Ping
func NewPoolManager(db *gorm.DB, config PoolConfig, logger *zap.Logger) (*PoolManager, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pool config: %w", err)
	}
	if config.PingTimeout <= 0 {
		config.PingTimeout = DefaultPoolConfig().PingTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	pm := &PoolManager{
		db:     db,
		sqlDB:  sqlDB,
		config: config,
		logger: logger.With(zap.String("component", "history_db")),
		done:   make(chan struct{}),
	}
	pm.healthy.Store(true)

	if config.HealthCheckInterval > 0 {
		go pm.watch()
	}
	return pm, nil
}

// DB 返回 GORM 实例
func (pm *PoolManager) DB() *gorm.DB {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.db
}

// Ping 检查数据库连接
func (pm *PoolManager) Ping(ctx context.Context) error {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	if pm.closed {
		return ErrPoolClosed
	}
	return pm.sqlDB.PingContext(ctx)
}

// Healthy 返回最近一次后台检查的结果；未启用后台检查时恒为 true
func (pm *PoolManager) Healthy() bool {
	return pm.healthy.Load()
}

// Close 关闭连接池并停止后台检查，可重复调用
func (pm *PoolManager) Close() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.closed {
		return nil
	}
	pm.closed = true
	close(pm.done)
	return pm.sqlDB.Close()
}

// watch 定期 Ping，只在健康状态变化时记日志
func (pm *PoolManager) watch() {
	ticker := time.NewTicker(pm.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pm.done:
			return
		case <-ticker.C:
		}
		pm.checkOnce()
	}
}

func (pm *PoolManager) checkOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), pm.config.PingTimeout)
	defer cancel()

	err := pm.Ping(ctx)
	if errors.Is(err, ErrPoolClosed) {
		return
	}
	was := pm.healthy.Swap(err == nil)
	switch {
	case err != nil && was:
		pm.logger.Warn("history database unreachable", zap.Error(err))
	case err == nil && !was:
		pm.logger.Info("history database reachable again")
	}
}

// =============================================================================
// 📊 统计
// =============================================================================

// PoolStats 连接池快照，health 命令输出使用
type PoolStats struct {
	MaxOpen      int           `json:"max_open"`
	Open         int           `json:"open"`
	InUse        int           `json:"in_use"`
	Idle         int           `json:"idle"`
	WaitCount    int64         `json:"wait_count"`
	WaitDuration time.Duration `json:"wait_duration"`
	Healthy      bool          `json:"healthy"`
}

// Stats 返回连接池快照
func (pm *PoolManager) Stats() PoolStats {
	pm.mu.RLock()
	s := pm.sqlDB.Stats()
	pm.mu.RUnlock()
	return PoolStats{
		MaxOpen:      s.MaxOpenConnections,
		Open:         s.OpenConnections,
		InUse:        s.InUse,
		Idle:         s.Idle,
		WaitCount:    s.WaitCount,
		WaitDuration: s.WaitDuration,
		Healthy:      pm.Healthy(),
	}
}

// =============================================================================
// 🔄 事务
// =============================================================================

// TransactionFunc 事务函数
type TransactionFunc func(tx *gorm.DB) error

// WithTransaction 在单个事务中执行 fn
func (pm *PoolManager) WithTransaction(ctx context.Context, fn TransactionFunc) error {
	pm.mu.RLock()
	if pm.closed {
		pm.mu.RUnlock()
		return ErrPoolClosed
	}
	db := pm.db
	pm.mu.RUnlock()

	return db.WithContext(ctx).Transaction(fn)
}

// WithTransactionRetry 最多执行 attempts 次事务，仅对死锁、序列化失败与连接错误重试
func (pm *PoolManager) WithTransactionRetry(ctx context.Context, attempts int, fn TransactionFunc) error {
	if attempts < 1 {
		attempts = 1
	}
	r := retry.NewBackoffRetryer(&retry.RetryPolicy{
		MaxRetries:   attempts - 1,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2,
		Jitter:       true,
		ShouldRetry:  isRetryableError,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			pm.logger.Warn("transaction failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
		},
	}, pm.logger)

	return r.Do(ctx, func() error {
		err := pm.WithTransaction(ctx, fn)
		if errors.Is(err, ErrPoolClosed) {
			return retry.Permanent(err)
		}
		return err
	})
}

// retryableMarkers 驱动错误文本中表示瞬时失败的片段（小写）
var retryableMarkers = []string{
	"deadlock",
	"serialization failure",
	"could not serialize",
	"40001",
	"lock timeout",
	"lock wait timeout",
	"database is locked",
	"connection reset",
	"connection refused",
	"broken pipe",
	"bad connection",
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range retryableMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
