// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 stockrag 服务端程序入口。

# 概述

cmd/stockrag 基于 cobra 组织子命令：serve 启动 API、metrics 与后台
调度；migrate 管理数据库迁移；resolve、sync、sweep 为一次性运维命令；
version 输出构建信息。所有命令共用 --config 指定的 YAML 配置，
环境变量前缀为 STOCKRAG_。

# 核心类型

  - App        — 装配完成的组件集合（数据库、缓存、数据源链、解析器、
    版本管理、同步、检索、自选列表与调度器）
  - Server     — API（chi 路由）、metrics 双端口与调度器的生命周期
  - Middleware — HTTP 中间件函数签名 func(http.Handler) http.Handler

# 中间件

Recovery、RequestID、OTelTracing、SecurityHeaders、RequestLogger、
MetricsMiddleware（按 chi 路由模板打标签）、CORS；/api/v1 下另有
基于 IP 的 RateLimiter。

# 优雅关闭

SIGINT/SIGTERM 取消根上下文，HTTP 服务在 shutdown_timeout 内排空请求，
调度器在当前子批次结束后退出，随后关闭 Kafka、Redis 与数据库连接。
*/
package main
