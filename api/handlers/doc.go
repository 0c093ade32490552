// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 stockrag HTTP API 的请求处理器实现。

# 核心类型

  - MarketHandler    — 分级数据解析与缓存失效
  - RAGHandler       — 同步、批量同步、版本查询/激活、语义检索、保留期清理
  - WatchlistHandler — 自选列表 CRUD 与立即处理
  - HealthHandler    — 存活/就绪探针与版本信息
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）

# 约定

处理器只依赖小接口（MarketService、SyncService 等），路由参数通过
chi.URLParam 读取。请求体经 DecodeJSONBody 解码（1 MB 上限、拒绝未知字段）
后用 validator 校验；*types.Error 按自带的 HTTP 状态码输出，其他错误
统一为 500 INTERNAL_ERROR。
*/
package handlers
