// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"net/http"
	"time"

	"github.com/BaSui01/stategraph/workflow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器，实现 workflow.Observer、llm.CallObserver 与 sources.Observer
type Collector struct {
	registry *prometheus.Registry

	// 工作流指标
	runsTotal    *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	nodesTotal   *prometheus.CounterVec
	nodeDuration *prometheus.HistogramVec

	// LLM 指标
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec

	// 数据源指标
	fetchesTotal  *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec

	logger *zap.Logger
}

var _ workflow.Observer = (*Collector)(nil)

// NewCollector 创建指标收集器；每个 Collector 持有独立的 Registry
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	// 工作流指标
	c.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_runs_total",
			Help:      "Total number of workflow runs by final status",
		},
		[]string{"graph", "status"},
	)

	c.runDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_run_duration_seconds",
			Help:      "Workflow run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"graph"},
	)

	c.nodesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_node_executions_total",
			Help:      "Total number of node executions by status",
		},
		[]string{"graph", "node", "status"},
	)

	c.nodeDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_node_duration_seconds",
			Help:      "Node execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"graph", "node"},
	)

	// LLM 指标
	c.llmRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests",
		},
		[]string{"provider", "model", "status"},
	)

	c.llmRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	c.llmTokensUsed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"provider", "model"},
	)

	// 数据源指标
	c.fetchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetches_total",
			Help:      "Total number of REST source fetches by outcome",
		},
		[]string{"source", "outcome"},
	)

	c.fetchDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_fetch_duration_seconds",
			Help:      "REST source fetch duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	return c
}

// =============================================================================
// 🎯 记录方法
// =============================================================================

// ObserveRun 实现 workflow.Observer
func (c *Collector) ObserveRun(graph string, status workflow.ExecutionStatus, d time.Duration) {
	c.runsTotal.WithLabelValues(graph, string(status)).Inc()
	c.runDuration.WithLabelValues(graph).Observe(d.Seconds())
}

// ObserveNode 实现 workflow.Observer
func (c *Collector) ObserveNode(graph, node string, status workflow.ExecutionStatus, d time.Duration) {
	c.nodesTotal.WithLabelValues(graph, node, string(status)).Inc()
	c.nodeDuration.WithLabelValues(graph, node).Observe(d.Seconds())
}

// ObserveLLMCall 实现 llm.CallObserver；缓存命中不计入耗时直方图
func (c *Collector) ObserveLLMCall(provider, model, outcome string, d time.Duration, tokens int) {
	c.llmRequestsTotal.WithLabelValues(provider, model, outcome).Inc()
	if outcome != "cached" {
		c.llmRequestDuration.WithLabelValues(provider, model).Observe(d.Seconds())
	}
	if tokens > 0 {
		c.llmTokensUsed.WithLabelValues(provider, model).Add(float64(tokens))
	}
}

// ObserveFetch 实现 sources.Observer
func (c *Collector) ObserveFetch(source, outcome string, d time.Duration) {
	c.fetchesTotal.WithLabelValues(source, outcome).Inc()
	c.fetchDuration.WithLabelValues(source).Observe(d.Seconds())
}

// =============================================================================
// 🌐 暴露
// =============================================================================

// Registry 返回底层 Registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler 返回 /metrics 处理器
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorLog: zap.NewStdLog(c.logger),
	})
}
