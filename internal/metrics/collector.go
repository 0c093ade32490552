// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/stockrag/market"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 三级缓存解析指标
	resolveTotal    *prometheus.CounterVec
	resolveDuration *prometheus.HistogramVec

	// 数据源指标
	providerCallsTotal   *prometheus.CounterVec
	providerCallDuration *prometheus.HistogramVec
	breakerState         *prometheus.GaugeVec

	// RAG 同步指标
	syncTotal        *prometheus.CounterVec
	syncDuration     *prometheus.HistogramVec
	chunksTotal      *prometheus.CounterVec
	vectorsTotal     *prometheus.CounterVec
	versionsPurged   prometheus.Counter
	watchlistPairs   *prometheus.CounterVec
	embeddingBatches *prometheus.CounterVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器（注册到默认 registry）
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 解析指标
	c.resolveTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolve_total",
			Help:      "Total number of market data resolutions by serving tier",
		},
		[]string{"data_type", "tier"},
	)

	c.resolveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolve_duration_seconds",
			Help:      "Market data resolution latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15},
		},
		[]string{"data_type", "tier"},
	)

	// 数据源指标
	c.providerCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Total number of external provider calls",
		},
		[]string{"provider", "data_type", "outcome"},
	)

	c.providerCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_duration_seconds",
			Help:      "External provider call duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider", "data_type"},
	)

	c.breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half_open)",
		},
		[]string{"provider"},
	)

	// RAG 同步指标
	c.syncTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rag_sync_total",
			Help:      "Total number of RAG sync operations by outcome",
		},
		[]string{"data_type", "outcome"},
	)

	c.syncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rag_sync_duration_seconds",
			Help:      "RAG sync duration in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"data_type"},
	)

	c.chunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rag_chunks_total",
			Help:      "Total number of text chunks produced",
		},
		[]string{"data_type"},
	)

	c.vectorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rag_vectors_total",
			Help:      "Total number of vectors written to the index",
		},
		[]string{"data_type"},
	)

	c.versionsPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rag_versions_purged_total",
			Help:      "Total number of deprecated versions removed by the retention sweep",
		},
	)

	c.watchlistPairs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watchlist_pairs_total",
			Help:      "Total number of watchlist pairs processed",
		},
		[]string{"status"},
	)

	c.embeddingBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"provider", "status"},
	)

	// 数据库指标
	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 📈 解析与数据源
// =============================================================================

// ObserveResolve 记录一次解析及其命中层级
func (c *Collector) ObserveResolve(dataType market.DataType, tier string, duration time.Duration) {
	c.resolveTotal.WithLabelValues(string(dataType), tier).Inc()
	c.resolveDuration.WithLabelValues(string(dataType), tier).Observe(duration.Seconds())
}

// ObserveProviderCall 记录一次实际发往数据源的调用
func (c *Collector) ObserveProviderCall(provider string, dataType market.DataType, outcome string, duration time.Duration) {
	c.providerCallsTotal.WithLabelValues(provider, string(dataType), outcome).Inc()
	c.providerCallDuration.WithLabelValues(provider, string(dataType)).Observe(duration.Seconds())
}

// SetBreakerState 记录熔断器状态
func (c *Collector) SetBreakerState(provider string, state int) {
	c.breakerState.WithLabelValues(provider).Set(float64(state))
}

// =============================================================================
// 🧠 RAG 指标记录
// =============================================================================

// ObserveSync 记录一次同步
func (c *Collector) ObserveSync(dataType market.DataType, outcome string, duration time.Duration, chunks, vectors int) {
	dt := string(dataType)
	c.syncTotal.WithLabelValues(dt, outcome).Inc()
	c.syncDuration.WithLabelValues(dt).Observe(duration.Seconds())
	if chunks > 0 {
		c.chunksTotal.WithLabelValues(dt).Add(float64(chunks))
	}
	if vectors > 0 {
		c.vectorsTotal.WithLabelValues(dt).Add(float64(vectors))
	}
}

// ObserveCleanup 记录保留期清理删除的版本数
func (c *Collector) ObserveCleanup(purged int) {
	if purged > 0 {
		c.versionsPurged.Add(float64(purged))
	}
}

// ObserveWatchlistPairs 记录批处理中成功与失败的数据对数量
func (c *Collector) ObserveWatchlistPairs(succeeded, failed int) {
	c.watchlistPairs.WithLabelValues("success").Add(float64(succeeded))
	c.watchlistPairs.WithLabelValues("failed").Add(float64(failed))
}

// ObserveEmbedding 记录一次向量化请求
func (c *Collector) ObserveEmbedding(provider string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.embeddingBatches.WithLabelValues(provider, status).Inc()
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
