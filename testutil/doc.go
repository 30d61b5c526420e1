// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package testutil 提供各包测试共享的辅助函数。

# 核心能力

  - 上下文辅助：TestContext / TestContextWithTimeout / CancelledContext，
    通过 Cleanup 自动取消
  - 状态断言：AssertStateValue / AssertStateNil 断言 workflow.State
    字段值与显式 nil
  - 异步断言：AssertEventuallyTrue
  - 数据工具：MustJSON / MustParseJSON

# 子包

  - testutil/mocks：MockProvider（llm.Provider），支持按序响应、
    自定义函数、延迟与错误注入
  - testutil/fixtures：天气、景点、汇率与聊天接口的样例负载，
    以及在同一 httptest.Server 上模拟全部外部服务的 APIServer

# 使用示例

	ctx := testutil.TestContext(t)
	provider := mocks.NewMockProvider().WithResponses(fixtures.TripInfoReply, fixtures.SummaryReply)
	res, err := graph.Run(ctx, workflow.StateFrom("user_query", "Paris in July"))
*/
package testutil
