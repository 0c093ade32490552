// Package api 定义 stockrag HTTP API 的请求与响应类型。
//
// # 路由
//
// 所有业务接口位于 /api/v1 下：
//
//	GET    /api/v1/market/{dataType}/{code}
//	DELETE /api/v1/market/{dataType}/{code}/cache
//	POST   /api/v1/rag/sync
//	POST   /api/v1/rag/sync/batch
//	GET    /api/v1/rag/versions/{code}/{dataType}
//	GET    /api/v1/rag/versions/{code}/{dataType}/active
//	POST   /api/v1/rag/versions/{id}/activate
//	POST   /api/v1/rag/search
//	POST   /api/v1/rag/cleanup
//	GET    /api/v1/watchlists
//	POST   /api/v1/watchlists
//	POST   /api/v1/watchlists/process
//	GET    /api/v1/watchlists/{id}
//	PUT    /api/v1/watchlists/{id}
//	DELETE /api/v1/watchlists/{id}
//
// 探针 /health、/healthz、/ready 与 /version 不经过限流；Prometheus 指标在
// 独立端口的 /metrics 上暴露。
package api
