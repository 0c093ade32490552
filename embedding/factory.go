package embedding

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/stockrag/config"
)

// NewFromConfig 按配置创建向量化 Provider
func NewFromConfig(cfg config.EmbeddingConfig, logger *zap.Logger) (Provider, error) {
	switch cfg.Provider {
	case "", "hash":
		return NewHashProvider(cfg.Dimensions), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embedding api_key is required for provider openai")
		}
		return NewOpenAIProvider(OpenAIConfig{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			MaxBatch:   cfg.BatchSize,
			Timeout:    cfg.Timeout,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (supported: openai, hash)", cfg.Provider)
	}
}
