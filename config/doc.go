// Package config 提供 stockrag 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → .env → 环境变量 的顺序叠加，
// 覆盖服务端口、Redis、数据库、外部数据源限流、缓存 TTL、
// 向量化与向量索引、RAG 分块参数、批量调度与 Kafka 事件等配置项。
package config
