// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为命令行工具提供 TracerProvider 与 MeterProvider，工作流执行器通过
// TracerProvider 输出 workflow.run / workflow.node span。
// 当遥测功能禁用时，使用 noop 实现，不连接任何外部服务。
package telemetry
