// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 server 提供 CLI 进程内的运维 HTTP 端点。

# 概述

指定 --metrics-addr（或 metrics.addr）时，CLI 在运行工作流期间
通过 Manager 暴露 Prometheus /metrics 与 /healthz，进程退出前优雅关闭。

# 核心类型

  - Manager：持有 http.Server 与 net.Listener，提供 Start/Shutdown/Addr。
  - Config：监听地址、请求头超时、健康检查超时与关闭超时。
  - CheckFunc：就绪检查函数，NewMux 将其挂到 /healthz。

# 主要能力

  - 非阻塞启动，":0" 时 Addr 返回实际端口
  - Shutdown 幂等
  - 任一检查失败时 /healthz 返回 503 并列出失败项
*/
package server
