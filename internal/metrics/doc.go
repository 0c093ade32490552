// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力。

# 概述

Collector 使用 promauto 注册到默认 Registry，所有指标按 namespace
隔离。Collector 同时满足 provider.CallObserver、resolver.Observer
与 rag.SyncObserver，由 cmd/stockrag 注入各组件。

# 主要指标

  - HTTP：请求总数、耗时、响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 解析：按 data_type/tier 统计解析次数与耗时。
  - 数据源：调用次数（success/empty/error）、耗时、熔断器状态。
  - RAG：同步结果、分块数、写入向量数、保留期清理数量。
  - 关注列表：批处理成功与失败的数据对数量。
  - 数据库：活跃/空闲连接数。
*/
package metrics
