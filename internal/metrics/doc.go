// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的工作流、LLM 与数据源指标采集。

# 概述

Collector 持有独立的 prometheus.Registry，并通过 promauto.With
注册指标，多个 Collector 可在同一进程内共存。Handler 以
promhttp 暴露 /metrics。

# 核心类型

  - Collector：同时实现 workflow.Observer、llm.CallObserver
    与 sources.Observer。

# 主要能力

  - 工作流指标：运行次数与耗时（按 graph/status），节点执行
    次数与耗时（按 graph/node/status）。
  - LLM 指标：请求总数、耗时、Token 用量，按 provider/model 分组。
  - 数据源指标：抓取次数与耗时，按 source/outcome 分组。
*/
package metrics
