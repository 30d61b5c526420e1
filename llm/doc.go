// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 llm 提供统一的大语言模型接入层：Provider 抽象、弹性包装、
自由文本生成与推理块清理。

# 核心接口

  - [Provider]：Completion / HealthCheck / Name
  - [ResponseCache]：响应缓存（由 internal/cache.Manager 实现）
  - [CallObserver]：上游调用观测（由 internal/metrics.Collector 实现）

# 核心类型

  - [ChatRequest] / [ChatResponse]：聊天请求与响应
  - [Error]：统一错误，携带错误码、HTTP 状态与 Retryable 标记
  - [ResilientProvider]：重试 + 熔断 + 缓存的装饰器
  - [Generator]：单轮文本生成，输出经 [StripReasoning] 处理

# 相关子包

  - llm/providers/openaicompat：OpenAI 兼容端点（Groq、Gemini）
  - llm/structured：基于 JSON Schema 的结构化抽取
  - llm/circuitbreaker：熔断器
*/
package llm
