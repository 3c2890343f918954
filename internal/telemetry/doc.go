// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 crewflow 的网关与流水线提供 TracerProvider 和 MeterProvider。
// 根 span 按 sample_rate 采样，子 span 跟随父 span 的决定。
// 当遥测功能禁用时，使用 noop 实现，不连接任何外部服务；
// 测试可通过 WithSpanExporter / WithMetricReader 换成内存实现。
package telemetry
