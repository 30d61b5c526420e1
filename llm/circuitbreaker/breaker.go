package circuitbreaker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State 熔断器状态
type State int

const (
	// StateClosed 关闭状态（正常工作）
	StateClosed State = iota
	// StateOpen 打开状态（熔断中）
	StateOpen
	// StateHalfOpen 半开状态（试探性恢复）
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateOpen:
		return "Open"
	case StateHalfOpen:
		return "HalfOpen"
	default:
		return "Unknown"
	}
}

// 错误定义
var (
	ErrCircuitOpen            = errors.New("circuit breaker is open")
	ErrTooManyCallsInHalfOpen = errors.New("too many calls while half-open")
)

// Config 熔断器配置
type Config struct {
	// Threshold 连续失败次数阈值
	Threshold int

	// Timeout 单次调用超时，通过 context 传递给被保护的调用
	Timeout time.Duration

	// ResetTimeout Open -> HalfOpen 的等待时间
	ResetTimeout time.Duration

	// HalfOpenMaxCalls 半开状态下允许的并发探测数
	HalfOpenMaxCalls int

	// IsSuccessful 判定一次调用是否计为成功；为 nil 时客户端错误不计入失败
	IsSuccessful func(err error) bool

	// OnStateChange 状态变更回调，在状态锁之外同步调用
	OnStateChange func(from State, to State)
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Threshold:        5,
		Timeout:          30 * time.Second,
		ResetTimeout:     60 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// CircuitBreaker 熔断器接口
type CircuitBreaker interface {
	// Call 执行调用，熔断器打开时直接返回 ErrCircuitOpen
	Call(ctx context.Context, fn func(ctx context.Context) error) error

	// State 获取当前状态
	State() State

	// Reset 手动恢复到关闭状态
	Reset()
}

type breaker struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	inFlight int // 半开状态下的探测数
}

// NewCircuitBreaker 创建熔断器
func NewCircuitBreaker(config *Config, logger *zap.Logger) CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := *config
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 60 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}
	return &breaker{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "circuit_breaker")),
		now:    time.Now,
		state:  StateClosed,
	}
}

// Call 实现 CircuitBreaker.Call
func (b *breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.acquire(); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	err := fn(callCtx)
	b.release(b.isSuccessful(err))
	return err
}

func (b *breaker) isSuccessful(err error) bool {
	if b.cfg.IsSuccessful != nil {
		return b.cfg.IsSuccessful(err)
	}
	return err == nil || isClientError(err)
}

// isClientError 判断错误是否为客户端错误（不应计入熔断失败）。
func isClientError(err error) bool {
	msg := err.Error()
	for _, code := range []string{"INVALID_REQUEST", "UNAUTHORIZED", "FORBIDDEN", "QUOTA_EXCEEDED"} {
		if strings.Contains(msg, code) {
			return true
		}
	}
	return false
}

// acquire 调用前检查并占用探测名额
func (b *breaker) acquire() error {
	b.mu.Lock()
	var from State
	changed := false

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		from, changed = b.state, true
		b.state = StateHalfOpen
		b.inFlight = 0
		b.logger.Info("circuit breaker half-open")
		fallthrough
	case StateHalfOpen:
		if b.inFlight >= b.cfg.HalfOpenMaxCalls {
			b.mu.Unlock()
			b.notify(from, StateHalfOpen, changed)
			return ErrTooManyCallsInHalfOpen
		}
		b.inFlight++
	}
	b.mu.Unlock()
	b.notify(from, StateHalfOpen, changed)
	return nil
}

// release 根据调用结果推进状态机
func (b *breaker) release(success bool) {
	b.mu.Lock()
	from := b.state
	to := from

	switch {
	case b.state == StateHalfOpen && success:
		to = StateClosed
		b.failures = 0
		b.inFlight = 0
		b.logger.Info("circuit breaker closed")
	case b.state == StateHalfOpen:
		to = StateOpen
		b.openedAt = b.now()
		b.inFlight = 0
		b.logger.Warn("half-open trial request failed, reopening")
	case success:
		b.failures = 0
	default:
		b.failures++
		if b.state == StateClosed && b.failures >= b.cfg.Threshold {
			to = StateOpen
			b.openedAt = b.now()
			b.logger.Warn("circuit breaker opened",
				zap.Int("failure_count", b.failures),
				zap.Int("threshold", b.cfg.Threshold),
			)
		}
	}
	b.state = to
	b.mu.Unlock()
	b.notify(from, to, from != to)
}

func (b *breaker) notify(from, to State, changed bool) {
	if changed && b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}

// State 实现 CircuitBreaker.State
func (b *breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset 实现 CircuitBreaker.Reset
func (b *breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.failures = 0
	b.inFlight = 0
	b.mu.Unlock()

	b.logger.Info("circuit breaker reset", zap.String("from_state", from.String()))
	b.notify(from, StateClosed, from != StateClosed)
}
