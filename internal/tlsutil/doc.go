// Package tlsutil 提供集中式 TLS 配置，
// 为 LLM 服务商、REST 数据源的 HTTP 客户端以及 Redis 连接提供安全加固设置（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
