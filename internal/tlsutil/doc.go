// Package tlsutil 提供集中式 TLS 配置，
// 为行情数据源、Embedding 接口、Qdrant 的 HTTP 客户端以及 Redis 连接提供安全加固的 TLS 设置（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
