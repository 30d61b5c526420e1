// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package config 提供 StateGraph 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → STATEGRAPH_* 环境变量 的顺序合并，
// 未显式配置的 API Key 会回退到服务商通用的环境变量
// （GROQ_API_KEY、GEMINI_API_KEY、OPENWEATHER_API_KEY 等）。
// 加载完成后通过 validator/v10 标签与少量跨字段规则校验。
package config
