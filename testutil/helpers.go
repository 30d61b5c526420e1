// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供上下文、状态断言与数据辅助
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	testutil.AssertStateValue(t, res.State, "hotel_cost", 500.0)
// =============================================================================
package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/BaSui01/stategraph/workflow"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带 30s 超时的测试上下文，测试结束时自动取消
func TestContext(t testing.TB) context.Context {
	return TestContextWithTimeout(t, 30*time.Second)
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t testing.TB, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 🧱 状态辅助
// =============================================================================

// AssertStateValue 断言字段存在且值相等
func AssertStateValue(t testing.TB, s workflow.State, field string, want any) bool {
	t.Helper()
	got, ok := s.Get(field)
	if !assert.Truef(t, ok, "field %q not set", field) {
		return false
	}
	return assert.Equalf(t, want, got, "field %q", field)
}

// AssertStateNil 断言字段存在且为显式 nil
func AssertStateNil(t testing.TB, s workflow.State, field string) bool {
	t.Helper()
	if !assert.Truef(t, s.Has(field), "field %q not present", field) {
		return false
	}
	return assert.Truef(t, s.IsNil(field), "field %q should be nil", field)
}

// =============================================================================
// ⏱️ 异步辅助
// =============================================================================

// AssertEventuallyTrue 在超时前轮询直到条件满足
func AssertEventuallyTrue(t testing.TB, condition func() bool, timeout time.Duration) bool {
	t.Helper()
	return assert.Eventually(t, condition, timeout, 10*time.Millisecond)
}

// =============================================================================
// 🔧 数据辅助
// =============================================================================

// MustJSON 将值转换为 JSON 字符串，失败时 panic
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// MustParseJSON 解析 JSON 字符串，失败时 panic
func MustParseJSON[T any](s string) T {
	var v T
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		panic(err)
	}
	return v
}
