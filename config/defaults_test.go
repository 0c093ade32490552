package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/stockrag/market"
)

// --- DefaultConfig aggregate ---

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEqual(t, ServerConfig{}, cfg.Server)
	assert.NotEqual(t, RedisConfig{}, cfg.Redis)
	assert.NotEqual(t, DatabaseConfig{}, cfg.Database)
	assert.NotEqual(t, ProviderConfig{}, cfg.Provider)
	assert.NotEqual(t, EmbeddingConfig{}, cfg.Embedding)
	assert.NotEqual(t, VectorConfig{}, cfg.Vector)
	assert.NotEqual(t, RAGConfig{}, cfg.RAG)
	assert.NotEqual(t, SchedulerConfig{}, cfg.Scheduler)
	assert.NotEqual(t, LogConfig{}, cfg.Log)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
}

// --- Individual Default*Config functions ---

func TestDefaultCacheConfig_CoversAllDataTypes(t *testing.T) {
	cfg := DefaultCacheConfig()
	for _, dt := range market.AllDataTypes() {
		_, ok := cfg.TTLs[string(dt)]
		assert.True(t, ok, "missing ttl for %s", dt)
	}
}

func TestDefaultSchedulerConfig(t *testing.T) {
	cfg := DefaultSchedulerConfig()
	assert.Equal(t, 20, cfg.BatchSize)
	assert.Equal(t, 7, cfg.RetentionDays)
	assert.Equal(t, 6*time.Hour, cfg.SweepInterval)
}

func TestDefaultProviderConfig(t *testing.T) {
	cfg := DefaultProviderConfig()
	assert.Equal(t, 15*time.Second, cfg.Timeout)
	assert.Equal(t, 5, cfg.BreakerThreshold)
}

func TestDefaultKafkaConfig(t *testing.T) {
	cfg := DefaultKafkaConfig()
	assert.False(t, cfg.Enabled)
	assert.NotEmpty(t, cfg.Topic)
}
