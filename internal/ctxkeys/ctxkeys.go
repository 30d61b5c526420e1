// Package ctxkeys 定义跨包传递的 context 键，避免字符串键冲突。
package ctxkeys

import (
	"context"

	"go.uber.org/zap"
)

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	runIDKey contextKey = "run_id"
	nodeKey  contextKey = "node_id"
)

// WithRunID 设置 RunID
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunID 获取 RunID
func RunID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(runIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithNode 设置当前执行的节点名
func WithNode(ctx context.Context, node string) context.Context {
	return context.WithValue(ctx, nodeKey, node)
}

// Node 获取当前执行的节点名
func Node(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(nodeKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// LogFields 返回 context 中已设置的 run_id / node_id 日志字段
func LogFields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if id, ok := RunID(ctx); ok {
		fields = append(fields, zap.String("run_id", id))
	}
	if node, ok := Node(ctx); ok {
		fields = append(fields, zap.String("node_id", node))
	}
	return fields
}
