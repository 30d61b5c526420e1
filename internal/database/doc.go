// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 database 提供运行记录存储使用的 GORM 连接管理。

# 核心类型

  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB()、Ping()、
    Stats()、Healthy()、Close() 与事务方法。
  - PoolConfig：连接池配置，Validate 拒绝非正数、负的检查间隔
    与空闲数超过上限的组合。
  - PoolStats：连接池快照，health 命令输出使用。

# 主要能力

  - Open / Dialector：按驱动名选择 sqlite（glebarez 纯 Go 实现）、
    postgres 或 mysql 方言。
  - 事务管理：WithTransaction 单次执行，WithTransactionRetry 对死锁、
    序列化失败与连接错误做指数退避重试（基于 internal/retry）。
  - 后台健康检查：history.health_check_interval > 0 时定期 Ping，
    只在不可达与恢复时各记一条日志，随 Close 一起停止。
*/
package database
