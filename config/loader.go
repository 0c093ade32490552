// =============================================================================
// 📦 stockrag 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + .env 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithDotEnv(".env").
//	    WithEnvPrefix("STOCKRAG").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量（.env 中的值不覆盖已有环境变量）
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 stockrag 的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Redis 缓存配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 数据库配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Provider 外部行情数据源配置
	Provider ProviderConfig `yaml:"provider" env:"PROVIDER"`

	// Cache 分数据类型的缓存 TTL
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// Embedding 向量化模型配置
	Embedding EmbeddingConfig `yaml:"embedding" env:"EMBEDDING"`

	// Vector 向量索引配置
	Vector VectorConfig `yaml:"vector" env:"VECTOR"`

	// RAG 同步流水线配置
	RAG RAGConfig `yaml:"rag" env:"RAG"`

	// Scheduler 批量调度配置
	Scheduler SchedulerConfig `yaml:"scheduler" env:"SCHEDULER"`

	// Kafka 版本事件发布配置
	Kafka KafkaConfig `yaml:"kafka" env:"KAFKA"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT" validate:"min=1,max=65535"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT" validate:"min=0,max=65535"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每秒请求数限制
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS" validate:"gte=0"`
	// 突发请求数
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST" validate:"gte=0"`
	// 允许的跨域来源
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR" validate:"required"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB" validate:"gte=0"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 是否启用 TLS
	TLSEnabled bool `yaml:"tls_enabled" env:"TLS_ENABLED"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER" validate:"oneof=postgres mysql sqlite"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 为文件路径）
	Name string `yaml:"name" env:"NAME" validate:"required"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	// 启动时自动执行迁移
	AutoMigrate bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

// ProviderConfig 外部数据源配置
type ProviderConfig struct {
	// 数据源名称
	Name string `yaml:"name" env:"NAME"`
	// API 地址
	BaseURL string `yaml:"base_url" env:"BASE_URL" validate:"required,url"`
	// 访问令牌
	Token string `yaml:"token" env:"TOKEN"`
	// 全局每分钟调用上限
	CallsPerMinute int `yaml:"calls_per_minute" env:"CALLS_PER_MINUTE" validate:"min=1"`
	// 令牌桶突发容量
	Burst int `yaml:"burst" env:"BURST" validate:"min=1"`
	// 单次调用超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT" validate:"gt=0"`
	// 可重试错误的最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES" validate:"gte=0"`
	// 熔断阈值（连续失败次数）
	BreakerThreshold int `yaml:"breaker_threshold" env:"BREAKER_THRESHOLD" validate:"gte=0"`
	// 熔断恢复时间
	BreakerResetTimeout time.Duration `yaml:"breaker_reset_timeout" env:"BREAKER_RESET_TIMEOUT"`
}

// CacheConfig 缓存 TTL 配置
type CacheConfig struct {
	// 未在 TTLs 中声明的数据类型使用该值
	DefaultTTL time.Duration `yaml:"default_ttl" env:"DEFAULT_TTL" validate:"gt=0"`
	// 数据类型 -> TTL，环境变量格式: realtime_quote=30s,financial=6h
	TTLs map[string]time.Duration `yaml:"ttls" env:"TTLS"`
}

// EmbeddingConfig 向量化模型配置
type EmbeddingConfig struct {
	// Provider: openai（OpenAI 兼容接口）, hash（本地确定性哈希）
	Provider string `yaml:"provider" env:"PROVIDER" validate:"oneof=openai hash"`
	// 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 模型名称
	Model string `yaml:"model" env:"MODEL"`
	// 向量维度
	Dimensions int `yaml:"dimensions" env:"DIMENSIONS" validate:"min=1"`
	// 单次调用超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT" validate:"gt=0"`
	// 单次请求的最大文本条数
	BatchSize int `yaml:"batch_size" env:"BATCH_SIZE" validate:"min=1"`
}

// VectorConfig 向量索引配置
type VectorConfig struct {
	// Backend: memory, qdrant
	Backend string `yaml:"backend" env:"BACKEND" validate:"oneof=memory qdrant"`
	// Qdrant 主机
	QdrantHost string `yaml:"qdrant_host" env:"QDRANT_HOST"`
	// Qdrant REST 端口
	QdrantPort int `yaml:"qdrant_port" env:"QDRANT_PORT"`
	// Qdrant API Key（可选）
	QdrantAPIKey string `yaml:"qdrant_api_key" env:"QDRANT_API_KEY"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// RAGConfig RAG 同步流水线配置
type RAGConfig struct {
	// 单个分块最大字符数
	MaxChunkChars int `yaml:"max_chunk_chars" env:"MAX_CHUNK_CHARS" validate:"min=1"`
	// 单个分块最小字符数
	MinChunkChars int `yaml:"min_chunk_chars" env:"MIN_CHUNK_CHARS" validate:"gte=0"`
	// 无可识别字段时的策略: placeholder, skip
	PlaceholderPolicy string `yaml:"placeholder_policy" env:"PLACEHOLDER_POLICY" validate:"oneof=placeholder skip"`
	// 批量同步条目间隔
	InterItemDelay time.Duration `yaml:"inter_item_delay" env:"INTER_ITEM_DELAY" validate:"gte=0"`
	// 检索默认返回条数
	SearchTopK int `yaml:"search_top_k" env:"SEARCH_TOP_K" validate:"min=1"`
}

// SchedulerConfig 批量调度配置
type SchedulerConfig struct {
	// 是否启用后台调度
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 子批次大小
	BatchSize int `yaml:"batch_size" env:"BATCH_SIZE" validate:"min=1"`
	// 子批次之间的暂停
	BatchPause time.Duration `yaml:"batch_pause" env:"BATCH_PAUSE" validate:"gte=0"`
	// 子批次内解析并发度
	Concurrency int `yaml:"concurrency" env:"CONCURRENCY" validate:"min=1"`
	// 调度检查间隔
	TickInterval time.Duration `yaml:"tick_interval" env:"TICK_INTERVAL" validate:"gt=0"`
	// 保留期清理间隔
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL" validate:"gt=0"`
	// 废弃版本保留天数
	RetentionDays int `yaml:"retention_days" env:"RETENTION_DAYS" validate:"gte=0"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Broker 地址
	Brokers []string `yaml:"brokers" env:"BROKERS"`
	// 版本事件 Topic
	Topic string `yaml:"topic" env:"TOPIC"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL" validate:"oneof=debug info warn error"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT" validate:"oneof=json console"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE" validate:"gte=0,lte=1"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	dotEnvPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "STOCKRAG",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithDotEnv 设置 .env 文件路径，文件不存在时忽略
func (l *Loader) WithDotEnv(path string) *Loader {
	l.dotEnvPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. .env 文件注入进程环境
	if l.dotEnvPath != "" {
		if err := godotenv.Load(l.dotEnvPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load dotenv file: %w", err)
		}
	}

	// 4. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 5. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == durationType {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}

	case reflect.Map:
		// 支持 key=value,key=value 形式；值为 Duration 时按时长解析
		if field.Type().Key().Kind() != reflect.String {
			return nil
		}
		m := reflect.MakeMap(field.Type())
		for _, pair := range strings.Split(value, ",") {
			k, raw, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if !ok {
				return fmt.Errorf("invalid map entry %q", pair)
			}
			elem := reflect.New(field.Type().Elem()).Elem()
			if err := setFieldValue(elem, strings.TrimSpace(raw)); err != nil {
				return fmt.Errorf("map entry %q: %w", k, err)
			}
			m.SetMapIndex(reflect.ValueOf(strings.TrimSpace(k)), elem)
		}
		field.Set(m)
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	if c.RAG.MinChunkChars > c.RAG.MaxChunkChars {
		errs = append(errs, "rag.min_chunk_chars must not exceed rag.max_chunk_chars")
	}
	if c.Vector.Backend == "qdrant" && c.Vector.QdrantHost == "" {
		errs = append(errs, "vector.qdrant_host is required for qdrant backend")
	}
	if c.Embedding.Provider == "openai" && c.Embedding.BaseURL == "" {
		errs = append(errs, "embedding.base_url is required for openai provider")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		errs = append(errs, "kafka.brokers and kafka.topic are required when kafka is enabled")
	}
	for name, ttl := range c.Cache.TTLs {
		if ttl <= 0 {
			errs = append(errs, fmt.Sprintf("cache.ttls.%s must be positive", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
