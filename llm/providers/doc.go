// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
# 概述

包 providers 提供跨模型服务商的通用适配能力，是具体 Provider 实现
（见 openaicompat 子包）的公共基础层。

# 核心函数

  - MapHTTPError：将 HTTP 状态码映射为语义化的 llm.Error（含 Retryable 标记）
  - TransportError：网络层错误统一映射为可重试的上游错误
  - ConvertMessagesToOpenAI：消息格式转换
  - ToLLMChatResponse：OpenAI 兼容响应到 llm.ChatResponse 的转换
  - ChooseModel：按优先级选择模型（请求 > 默认 > 兜底）
*/
package providers
