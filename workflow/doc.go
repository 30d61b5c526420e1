// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package workflow 提供基于共享状态的图式工作流引擎。

# 概述

工作流由命名节点、静态边与条件边组成。每次运行从入口节点开始，
按遍历顺序串行执行节点，将节点返回的增量（delta）以浅层
“后写覆盖” 的方式合并进状态记录，直到某条边指向 END 终止标记。

# 核心接口与类型

  - State：有序、不可变的状态记录；区分“未设置”与显式 nil
  - Field[T]：状态字段的类型化访问器
  - Merge：浅层合并函数，不修改任一输入
  - Node / NodeFunc：节点接口 Apply(ctx, rt, state) (delta, error)
  - Router：条件边的标签选择器
  - StateGraph：Fluent API 构建图（编译期校验）
  - CompiledGraph：编译后的不可变图，可被多个独立运行共享
  - InputProvider：缺失字段的外部输入能力，经 Runtime 注入节点

# 错误分类

  - 可降级错误：节点返回非 Fatal 错误时，记录日志并照常合并其 delta，
    运行继续，节点在历史中标记为 degraded
  - 致命错误：Fatal 包装的节点错误、上下文取消、路由返回未声明标签、
    图结构非法、超过步数上限。可用 IsConfigError 区分配置类错误

# 可观测性

每次运行生成 uuid 运行 ID，记录 ExecutionHistory，为运行与节点创建
OpenTelemetry span，并通过 Observer 与 WorkflowStreamEmitter 对外通知。
*/
package workflow
