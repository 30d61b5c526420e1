package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/BaSui01/stategraph/config"
	"github.com/BaSui01/stategraph/internal/cache"
	"github.com/BaSui01/stategraph/internal/metrics"
	"github.com/BaSui01/stategraph/internal/retry"
	"github.com/BaSui01/stategraph/internal/server"
	"github.com/BaSui01/stategraph/internal/telemetry"
	"github.com/BaSui01/stategraph/llm"
	"github.com/BaSui01/stategraph/llm/circuitbreaker"
	"github.com/BaSui01/stategraph/llm/providers/openaicompat"
	"github.com/BaSui01/stategraph/llm/structured"
	"github.com/BaSui01/stategraph/persistence"
	"github.com/BaSui01/stategraph/pipelines"
	"github.com/BaSui01/stategraph/pipelines/product"
	"github.com/BaSui01/stategraph/pipelines/research"
	"github.com/BaSui01/stategraph/pipelines/travel"
	"github.com/BaSui01/stategraph/sources"
	"github.com/BaSui01/stategraph/workflow"
)

// =============================================================================
// 🧩 进程级依赖装配
// =============================================================================

// app 持有一次命令执行期间的全部依赖；缓存与存储按需打开
type app struct {
	out io.Writer
	in  io.Reader

	cfg       *config.Config
	logger    *zap.Logger
	telemetry *telemetry.Providers
	collector *metrics.Collector
	ops       *server.Manager

	cacheMu sync.Mutex
	cache   *cache.Manager
	storeMu sync.Mutex
	store   persistence.RunStore
}

func newApp(out io.Writer, in io.Reader) *app {
	return &app{out: out, in: in, logger: zap.NewNop()}
}

// before 加载配置并初始化日志、遥测、指标
func (a *app) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	loader := config.NewLoader()
	if path := cmd.String("config"); path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return ctx, fmt.Errorf("load config: %w", err)
	}
	if addr := cmd.String("metrics-addr"); addr != "" {
		cfg.Metrics.Addr = addr
	}
	a.cfg = cfg
	a.logger = initLogger(cfg.Log)

	a.telemetry, err = telemetry.Init(cfg.Telemetry, a.logger)
	if err != nil {
		a.logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	a.collector = metrics.NewCollector(cfg.Metrics.Namespace, a.logger)

	if cfg.Metrics.Addr != "" {
		srvCfg := server.DefaultConfig()
		srvCfg.Addr = cfg.Metrics.Addr
		a.ops = server.NewManager(server.NewMux(a.collector.Handler(), srvCfg.CheckTimeout, a.checks()), srvCfg, a.logger)
		if err := a.ops.Start(); err != nil {
			return ctx, err
		}
	}
	return ctx, nil
}

// after 按打开的逆序释放资源
func (a *app) after(ctx context.Context, _ *cli.Command) error {
	var errs []error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close run store: %w", err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}
	if a.ops != nil {
		if err := a.ops.Shutdown(context.WithoutCancel(ctx)); err != nil {
			errs = append(errs, err)
		}
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

// checks 是 /healthz 与 health 命令共用的依赖检查
func (a *app) checks() map[string]server.CheckFunc {
	return map[string]server.CheckFunc{
		"history": func(ctx context.Context) error {
			store, err := a.runStore(ctx)
			if err != nil {
				return err
			}
			return store.Ping(ctx)
		},
		"cache": func(ctx context.Context) error {
			if !a.cfg.Cache.Enabled {
				return nil
			}
			mgr, err := a.cacheManager()
			if err != nil {
				return err
			}
			return mgr.Ping(ctx)
		},
	}
}

// cacheManager 在 cache.enabled 时连接 Redis；未启用返回 nil
func (a *app) cacheManager() (*cache.Manager, error) {
	a.cacheMu.Lock()
	defer a.cacheMu.Unlock()
	if a.cache != nil || !a.cfg.Cache.Enabled {
		return a.cache, nil
	}
	c := cache.DefaultConfig()
	c.Addr = a.cfg.Cache.Addr
	c.Password = a.cfg.Cache.Password
	c.DB = a.cfg.Cache.DB
	c.TLS = a.cfg.Cache.TLS
	if a.cfg.Cache.KeyPrefix != "" {
		c.KeyPrefix = a.cfg.Cache.KeyPrefix
	}
	if a.cfg.Cache.PoolSize > 0 {
		c.PoolSize = a.cfg.Cache.PoolSize
	}
	c.HealthCheckInterval = a.cfg.Cache.HealthCheckInterval
	mgr, err := cache.NewManager(c, a.logger)
	if err != nil {
		return nil, err
	}
	a.cache = mgr
	return mgr, nil
}

func (a *app) runStore(ctx context.Context) (persistence.RunStore, error) {
	a.storeMu.Lock()
	defer a.storeMu.Unlock()
	if a.store != nil {
		return a.store, nil
	}
	var mgr *cache.Manager
	if a.cfg.History.Backend == "redis" {
		var err error
		if mgr, err = a.cacheManager(); err != nil {
			return nil, err
		}
	}
	store, err := persistence.Open(ctx, a.cfg.History, mgr, a.logger)
	if err != nil {
		return nil, err
	}
	a.store = store
	return store, nil
}

// record 保存运行记录；失败只告警，不影响命令结果
func (a *app) record(ctx context.Context, res *workflow.RunResult) {
	if res == nil {
		return
	}
	store, err := a.runStore(ctx)
	if err == nil {
		err = persistence.Record(ctx, store, res)
	}
	if err != nil {
		a.logger.Warn("run not recorded", zap.String("run_id", res.RunID), zap.Error(err))
	}
}

// provider 构建带重试、熔断与可选响应缓存的模型服务
func (a *app) provider(c config.LLMConfig) (llm.Provider, error) {
	base, err := openaicompat.FromOptions(openaicompat.Options{
		Provider: c.Provider,
		APIKey:   c.APIKey,
		BaseURL:  c.BaseURL,
		Model:    c.Model,
		Timeout:  c.Timeout,
	}, a.logger)
	if err != nil {
		return nil, err
	}

	rc := &llm.ResilientProviderConfig{
		EnableRetry:          c.MaxRetries > 0,
		RetryPolicy:          retry.DefaultRetryPolicy(),
		EnableCircuitBreaker: c.CircuitBreaker,
		CircuitBreakerConfig: circuitbreaker.DefaultConfig(),
		CacheTTL:             c.CacheTTL,
		Observer:             a.collector,
	}
	rc.RetryPolicy.MaxRetries = c.MaxRetries
	if c.CacheResponses {
		mgr, err := a.cacheManager()
		if err != nil {
			a.logger.Warn("llm response cache unavailable", zap.Error(err))
		} else if mgr != nil {
			rc.Cache = mgr
		}
	}
	return llm.NewResilientProvider(base, rc, a.logger), nil
}

func (a *app) fetcher() *sources.Fetcher {
	sc := a.cfg.Sources
	fc := sources.DefaultFetcherConfig()
	fc.Timeout = sc.Timeout
	fc.RatePerSecond = sc.RatePerSecond
	fc.Burst = sc.Burst
	fc.CacheTTL = sc.CacheTTL
	fc.Retry.MaxRetries = sc.MaxRetries

	opts := []sources.FetcherOption{
		sources.WithObserver(a.collector),
		sources.WithLogger(a.logger),
	}
	if mgr, err := a.cacheManager(); err != nil {
		a.logger.Warn("source response cache unavailable", zap.Error(err))
	} else if mgr != nil {
		opts = append(opts, sources.WithCache(mgr))
	}
	return sources.NewFetcher(fc, opts...)
}

func (a *app) pipelineOptions() pipelines.Options {
	return pipelines.Options{
		Logger:         a.logger,
		TracerProvider: a.telemetry.TracerProvider(),
		Observer:       a.collector,
		MaxSteps:       a.cfg.Workflow.MaxSteps,
	}
}

func generatorConfig(c config.LLMConfig) llm.GeneratorConfig {
	return llm.GeneratorConfig{
		Model:       c.Model,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		Timeout:     c.Timeout,
	}
}

func extractorConfig(c config.LLMConfig) structured.Config {
	return structured.Config{
		Model:       c.Model,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		Timeout:     c.Timeout,
	}
}

func (a *app) planner() (*travel.Planner, error) {
	provider, err := a.provider(a.cfg.LLM)
	if err != nil {
		return nil, err
	}
	f := a.fetcher()
	sc := a.cfg.Sources
	deps := travel.Deps{
		Extractor: structured.NewExtractor(provider, extractorConfig(a.cfg.LLM), a.logger),
		Generator: llm.NewGenerator(provider, generatorConfig(a.cfg.LLM), a.logger),
		Weather:   sources.NewWeatherClient(f, sc.Weather.BaseURL, sc.Weather.APIKey),
		Places:    sources.NewPlacesClient(f, sc.Places.BaseURL, sc.Places.APIKey),
		Rates:     sources.NewExchangeClient(f, sc.Exchange.BaseURL, sc.Exchange.APIKey),
	}
	return travel.NewPlanner(deps, travel.ConfigFrom(a.cfg), a.pipelineOptions())
}

func (a *app) researchGraph() (*workflow.CompiledGraph, error) {
	provider, err := a.provider(a.cfg.Research.LLM)
	if err != nil {
		return nil, err
	}
	return research.NewGraph(research.Deps{
		Generator: llm.NewGenerator(provider, generatorConfig(a.cfg.Research.LLM), a.logger),
		Sink:      research.NewFileSink(a.cfg.Research.OutputDir),
	}, a.pipelineOptions())
}

func (a *app) productGraph() (*workflow.CompiledGraph, error) {
	provider, err := a.provider(a.cfg.LLM)
	if err != nil {
		return nil, err
	}
	return product.NewGraph(structured.NewExtractor(provider, extractorConfig(a.cfg.LLM), a.logger), a.pipelineOptions())
}

// graph 按名称构建工作流，供 graph 命令渲染
func (a *app) graph(name string) (*workflow.CompiledGraph, error) {
	switch name {
	case travel.GraphName:
		p, err := a.planner()
		if err != nil {
			return nil, err
		}
		return p.Graph(), nil
	case research.GraphName:
		return a.researchGraph()
	case product.GraphName:
		return a.productGraph()
	default:
		return nil, fmt.Errorf("unknown workflow %q (want travel, research or product)", name)
	}
}
