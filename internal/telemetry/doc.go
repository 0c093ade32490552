// Package telemetry 封装 OpenTelemetry SDK 初始化，为 StockRAG 提供
// 集中式的 TracerProvider 与 MeterProvider、解析与同步路径共用的
// span 辅助函数，以及与 Prometheus 并行上报的 Meters（stockrag.resolve.*、
// stockrag.sync.*）。遥测关闭时使用 noop 实现，不连接任何外部服务。
package telemetry
