// =============================================================================
// 📦 stockrag 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/stockrag/market"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Provider:  DefaultProviderConfig(),
		Cache:     DefaultCacheConfig(),
		Embedding: DefaultEmbeddingConfig(),
		Vector:    DefaultVectorConfig(),
		RAG:       DefaultRAGConfig(),
		Scheduler: DefaultSchedulerConfig(),
		Kafka:     DefaultKafkaConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "stockrag",
		Password:        "",
		Name:            "stockrag",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultProviderConfig 返回默认数据源配置
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Name:                "tushare",
		BaseURL:             "http://api.tushare.pro",
		CallsPerMinute:      200,
		Burst:               1,
		Timeout:             15 * time.Second,
		MaxRetries:          2,
		BreakerThreshold:    5,
		BreakerResetTimeout: time.Minute,
	}
}

// DefaultCacheConfig 返回默认缓存 TTL 配置
func DefaultCacheConfig() CacheConfig {
	ttls := make(map[string]time.Duration)
	for dt, ttl := range market.DefaultTTLs() {
		ttls[string(dt)] = ttl
	}
	return CacheConfig{
		DefaultTTL: 5 * time.Minute,
		TTLs:       ttls,
	}
}

// DefaultEmbeddingConfig 返回默认向量化配置
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Provider:   "hash",
		BaseURL:    "https://api.openai.com/v1",
		Model:      "text-embedding-3-small",
		Dimensions: 512,
		Timeout:    30 * time.Second,
		BatchSize:  16,
	}
}

// DefaultVectorConfig 返回默认向量索引配置
func DefaultVectorConfig() VectorConfig {
	return VectorConfig{
		Backend:    "memory",
		QdrantHost: "localhost",
		QdrantPort: 6333,
		Timeout:    30 * time.Second,
	}
}

// DefaultRAGConfig 返回默认 RAG 配置
func DefaultRAGConfig() RAGConfig {
	return RAGConfig{
		MaxChunkChars:     512,
		MinChunkChars:     50,
		PlaceholderPolicy: "placeholder",
		InterItemDelay:    200 * time.Millisecond,
		SearchTopK:        5,
	}
}

// DefaultSchedulerConfig 返回默认调度配置
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled:       true,
		BatchSize:     20,
		BatchPause:    2 * time.Second,
		Concurrency:   4,
		TickInterval:  time.Minute,
		SweepInterval: 6 * time.Hour,
		RetentionDays: 7,
	}
}

// DefaultKafkaConfig 返回默认 Kafka 配置
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Enabled: false,
		Brokers: []string{"localhost:9092"},
		Topic:   "stockrag.version-events",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "stockrag",
		SampleRate:   0.1,
	}
}

// TTLFor 返回数据类型的缓存 TTL
func (c CacheConfig) TTLFor(dataType market.DataType) time.Duration {
	if ttl, ok := c.TTLs[string(dataType)]; ok && ttl > 0 {
		return ttl
	}
	if c.DefaultTTL > 0 {
		return c.DefaultTTL
	}
	if spec, ok := dataType.Spec(); ok {
		return spec.DefaultTTL
	}
	return 5 * time.Minute
}
