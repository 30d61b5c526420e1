// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 cache 提供基于 Redis 的缓存管理能力，供 LLM 响应缓存与 Redis 运行记录共用。

# 核心类型

  - Manager：持有 go-redis 客户端，所有键自动加上 KeyPrefix 前缀；
    提供 Get/Set/Delete 与 GetJSON/SetJSON，Client() 暴露底层客户端
    以便 persistence 包使用管道与有序集合。
  - Config：地址、密码、连接池、默认 TTL、TLS 与健康检查间隔。
  - Stats：GetStats 返回键数量；命中数、未命中数、内存使用与连接数
    取自 INFO，服务端不支持时为零。

# 行为

  - NewManager 建立连接时立即 Ping，失败则关闭客户端并返回错误。
  - 健康检查在后台按间隔 Ping，Close 后停止。
  - 未命中返回 ErrCacheMiss，关闭后返回 ErrClosed。
*/
package cache
