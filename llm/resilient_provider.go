package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/BaSui01/stategraph/internal/ctxkeys"
	"github.com/BaSui01/stategraph/internal/retry"
	"github.com/BaSui01/stategraph/llm/circuitbreaker"
	"go.uber.org/zap"
)

// ResponseCache 响应缓存，internal/cache.Manager 满足该接口
type ResponseCache interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// CallObserver 接收每次上游调用的结果，用于指标统计
type CallObserver interface {
	ObserveLLMCall(provider, model, outcome string, d time.Duration, tokens int)
}

// 调用结果
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeCached  = "cached"
)

// ResilientProvider 为 Provider 叠加重试、熔断与响应缓存（装饰器）
type ResilientProvider struct {
	provider Provider
	retryer  retry.Retryer
	breaker  circuitbreaker.CircuitBreaker
	cache    ResponseCache
	cacheTTL time.Duration
	observer CallObserver
	logger   *zap.Logger
}

// ResilientProviderConfig 弹性 Provider 配置
type ResilientProviderConfig struct {
	// EnableRetry 是否启用重试
	EnableRetry bool
	// RetryPolicy 重试策略，ShouldRetry 为空时使用 IsRetryable
	RetryPolicy *retry.RetryPolicy

	// EnableCircuitBreaker 是否启用熔断器
	EnableCircuitBreaker bool
	// CircuitBreakerConfig 熔断器配置
	CircuitBreakerConfig *circuitbreaker.Config

	// Cache 可选的响应缓存
	Cache ResponseCache
	// CacheTTL 缓存过期时间
	CacheTTL time.Duration

	// Observer 可选的调用观察者
	Observer CallObserver
}

// DefaultResilientProviderConfig 返回默认配置
func DefaultResilientProviderConfig() *ResilientProviderConfig {
	return &ResilientProviderConfig{
		EnableRetry:          true,
		RetryPolicy:          retry.DefaultRetryPolicy(),
		EnableCircuitBreaker: true,
		CircuitBreakerConfig: circuitbreaker.DefaultConfig(),
		CacheTTL:             time.Hour,
	}
}

// NewResilientProvider 创建具有弹性能力的 Provider
func NewResilientProvider(provider Provider, config *ResilientProviderConfig, logger *zap.Logger) *ResilientProvider {
	if config == nil {
		config = DefaultResilientProviderConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "resilient_provider"), zap.String("provider", provider.Name()))

	rp := &ResilientProvider{
		provider: provider,
		cache:    config.Cache,
		cacheTTL: config.CacheTTL,
		observer: config.Observer,
		logger:   logger,
	}

	if config.EnableRetry {
		policy := retry.DefaultRetryPolicy()
		if config.RetryPolicy != nil {
			p := *config.RetryPolicy
			policy = &p
		}
		if policy.ShouldRetry == nil {
			policy.ShouldRetry = func(err error) bool {
				return IsRetryable(err) || errors.Is(err, circuitbreaker.ErrTooManyCallsInHalfOpen)
			}
		}
		rp.retryer = retry.NewBackoffRetryer(policy, logger)
	}
	if config.EnableCircuitBreaker {
		cbCfg := circuitbreaker.DefaultConfig()
		if config.CircuitBreakerConfig != nil {
			c := *config.CircuitBreakerConfig
			cbCfg = &c
		}
		if cbCfg.IsSuccessful == nil {
			// 只有可重试的上游错误才计入熔断失败
			cbCfg.IsSuccessful = func(err error) bool { return err == nil || !IsRetryable(err) }
		}
		rp.breaker = circuitbreaker.NewCircuitBreaker(cbCfg, logger)
	}
	return rp
}

// Completion 实现 Provider.Completion
func (rp *ResilientProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()
	model := req.Model

	key := ""
	if rp.cache != nil {
		key = cacheKey(rp.provider.Name(), req)
		var cached ChatResponse
		if err := rp.cache.GetJSON(ctx, key, &cached); err == nil {
			rp.logger.Debug("completion cache hit", append(ctxkeys.LogFields(ctx), zap.String("key", key))...)
			rp.observe(model, OutcomeCached, time.Since(start), 0)
			return &cached, nil
		}
	}

	call := func() (*ChatResponse, error) {
		if rp.breaker == nil {
			return rp.provider.Completion(ctx, req)
		}
		return circuitbreaker.CallWithResult(rp.breaker, ctx, func(ctx context.Context) (*ChatResponse, error) {
			return rp.provider.Completion(ctx, req)
		})
	}

	var (
		resp *ChatResponse
		err  error
	)
	if rp.retryer != nil {
		resp, err = retry.DoWithResultTyped(rp.retryer, ctx, call)
	} else {
		resp, err = call()
	}
	if err != nil {
		rp.observe(model, OutcomeError, time.Since(start), 0)
		return nil, err
	}
	if resp.Model != "" {
		model = resp.Model
	}
	rp.observe(model, OutcomeSuccess, time.Since(start), resp.Usage.TotalTokens)

	if key != "" {
		if cacheErr := rp.cache.SetJSON(ctx, key, resp, rp.cacheTTL); cacheErr != nil {
			rp.logger.Warn("failed to cache completion", zap.String("key", key), zap.Error(cacheErr))
		}
	}
	return resp, nil
}

func (rp *ResilientProvider) observe(model, outcome string, d time.Duration, tokens int) {
	if rp.observer != nil {
		rp.observer.ObserveLLMCall(rp.provider.Name(), model, outcome, d, tokens)
	}
}

// HealthCheck 实现 Provider.HealthCheck
func (rp *ResilientProvider) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	return rp.provider.HealthCheck(ctx)
}

// Name 实现 Provider.Name
func (rp *ResilientProvider) Name() string {
	return rp.provider.Name()
}

// BreakerState 返回熔断器状态，未启用时恒为 Closed
func (rp *ResilientProvider) BreakerState() circuitbreaker.State {
	if rp.breaker == nil {
		return circuitbreaker.StateClosed
	}
	return rp.breaker.State()
}

// cacheKey 只基于确定性参数（模型、消息、输出格式）
func cacheKey(provider string, req *ChatRequest) string {
	data, _ := json.Marshal(struct {
		Provider string    `json:"provider"`
		Model    string    `json:"model"`
		Messages []Message `json:"messages"`
		JSONMode bool      `json:"json_mode"`
	}{provider, req.Model, req.Messages, req.JSONMode})
	sum := sha256.Sum256(data)
	return "llm:completion:" + hex.EncodeToString(sum[:])
}
