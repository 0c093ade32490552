// Config → RAG 桥接层。
//
// 把全局 config.Config 转换为 rag 包的运行时实例。
package rag

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/stockrag/config"
)

// 向量索引后端
const (
	VectorBackendMemory = "memory"
	VectorBackendQdrant = "qdrant"
)

// NewVectorIndexFromConfig 按 backend 创建向量索引，空值使用内存索引
func NewVectorIndexFromConfig(cfg config.VectorConfig, logger *zap.Logger) (VectorIndex, error) {
	switch cfg.Backend {
	case VectorBackendMemory, "":
		return NewMemoryIndex(logger), nil
	case VectorBackendQdrant:
		return NewQdrantIndex(QdrantConfig{
			Host:    cfg.QdrantHost,
			Port:    cfg.QdrantPort,
			APIKey:  cfg.QdrantAPIKey,
			Timeout: cfg.Timeout,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unsupported vector backend: %s", cfg.Backend)
	}
}

// VectorizerConfigFrom 从 RAG 配置映射分块参数
func VectorizerConfigFrom(cfg config.RAGConfig) VectorizerConfig {
	return VectorizerConfig{
		Chunking: ChunkingConfig{
			MaxChunkChars: cfg.MaxChunkChars,
			MinChunkChars: cfg.MinChunkChars,
		},
		PlaceholderPolicy: cfg.PlaceholderPolicy,
	}
}

// SyncConfigFrom 组合向量化与 RAG 配置
func SyncConfigFrom(emb config.EmbeddingConfig, ragCfg config.RAGConfig) SyncConfig {
	return SyncConfig{
		EmbedTimeout:   emb.Timeout,
		EmbedBatchSize: emb.BatchSize,
		InterItemDelay: ragCfg.InterItemDelay,
	}
}
