// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 stategraph 命令行程序。

# 概述

cmd/stategraph 基于 urfave/cli/v3 组织子命令，负责把配置、日志、
遥测、指标、缓存、运行记录存储与模型服务装配到三条工作流上，
每次运行结束后把执行历史写入 history 后端。

# 子命令

  - plan：旅行规划；缺失的城市与日期通过终端逐项询问，--non-interactive 时保持未设置
  - research：研究问答，摘要写入 research.output_dir
  - product：商品信息抽取与价格归一
  - graph：以 Mermaid 输出任一工作流结构
  - history list|show|delete：查询运行记录
  - health：并发检查运行记录存储、缓存与模型服务
  - version：版本信息（ldflags 注入）

# 全局参数

  - --config：YAML 配置文件，环境变量 STATEGRAPH_* 覆盖其中的值
  - --metrics-addr：命令运行期间在该地址暴露 /metrics 与 /healthz
*/
package main
