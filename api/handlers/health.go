package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

// HealthHandler 健康检查处理器
type HealthHandler struct {
	logger  *zap.Logger
	version BuildInfo
	checks  []HealthCheck
	stats   []StatsSource
	mu      sync.RWMutex
}

// BuildInfo 构建信息
type BuildInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

// HealthCheck 健康检查接口
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// StatsSource 运行统计来源（缓存、连接池）
type StatsSource interface {
	Name() string
	Stats(ctx context.Context) (any, error)
}

// StatsResponse /stats 响应，单个来源失败时只记录该来源的错误
type StatsResponse struct {
	Timestamp time.Time         `json:"timestamp"`
	Stats     map[string]any    `json:"stats"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// HealthStatus 健康状态响应
type HealthStatus struct {
	Status    string                 `json:"status"` // "healthy", "unhealthy"
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单个检查结果
type CheckResult struct {
	Status  string `json:"status"` // "pass", "fail"
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(info BuildInfo, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		logger:  logger.With(zap.String("handler", "health")),
		version: info,
	}
}

// RegisterCheck 注册健康检查
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// RegisterStats 注册统计来源
func (h *HealthHandler) RegisterStats(src StatsSource) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stats = append(h.stats, src)
}

// HandleHealth 处理 /health 与 /healthz（存活探针，只检查进程）
// @Summary 健康检查
// @Tags 健康
// @Produce json
// @Success 200 {object} HealthStatus "服务正常"
// @Router /health [get]
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   h.version.Version,
	})
}

// HandleReady 处理 /ready（就绪探针，依次执行所有依赖检查）
// @Summary 准备情况检查
// @Tags 健康
// @Produce json
// @Success 200 {object} HealthStatus "服务已准备就绪"
// @Failure 503 {object} HealthStatus "依赖不可用"
// @Router /ready [get]
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	h.mu.RLock()
	checks := make([]HealthCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   h.version.Version,
		Checks:    make(map[string]CheckResult, len(checks)),
	}

	allHealthy := true
	for _, check := range checks {
		start := time.Now()
		err := check.Check(ctx)
		latency := time.Since(start)

		result := CheckResult{Status: "pass", Latency: latency.String()}
		if err != nil {
			result.Status = "fail"
			result.Message = err.Error()
			allHealthy = false
			h.logger.Warn("health check failed",
				zap.String("check", check.Name()),
				zap.Error(err),
				zap.Duration("latency", latency),
			)
		}
		status.Checks[check.Name()] = result
	}

	if !allHealthy {
		status.Status = "unhealthy"
		WriteJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	WriteJSON(w, http.StatusOK, status)
}

// HandleStats 处理 /stats
// @Summary 运行统计
// @Tags 健康
// @Produce json
// @Success 200 {object} StatsResponse "缓存命中与连接池状态"
// @Router /stats [get]
func (h *HealthHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	h.mu.RLock()
	sources := make([]StatsSource, len(h.stats))
	copy(sources, h.stats)
	h.mu.RUnlock()

	resp := StatsResponse{Timestamp: time.Now(), Stats: make(map[string]any, len(sources))}
	for _, src := range sources {
		v, err := src.Stats(ctx)
		if err != nil {
			if resp.Errors == nil {
				resp.Errors = make(map[string]string)
			}
			resp.Errors[src.Name()] = err.Error()
			h.logger.Warn("stats collection failed", zap.String("source", src.Name()), zap.Error(err))
			continue
		}
		resp.Stats[src.Name()] = v
	}
	WriteSuccess(w, r, resp)
}

// HandleVersion 处理 /version
// @Summary 版本信息
// @Tags 健康
// @Produce json
// @Router /version [get]
func (h *HealthHandler) HandleVersion(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, h.version)
}

// =============================================================================
// 🔧 内置健康检查实现
// =============================================================================

// PingCheck 以 ping 函数实现的依赖检查（数据库、Redis 等）
type PingCheck struct {
	name string
	ping func(ctx context.Context) error
}

// NewPingCheck 创建依赖检查
func NewPingCheck(name string, ping func(ctx context.Context) error) *PingCheck {
	return &PingCheck{name: name, ping: ping}
}

func (c *PingCheck) Name() string { return c.name }

func (c *PingCheck) Check(ctx context.Context) error { return c.ping(ctx) }

// StatsFunc 以函数实现的统计来源
type StatsFunc struct {
	name string
	fn   func(ctx context.Context) (any, error)
}

// NewStatsFunc 创建统计来源
func NewStatsFunc(name string, fn func(ctx context.Context) (any, error)) *StatsFunc {
	return &StatsFunc{name: name, fn: fn}
}

func (s *StatsFunc) Name() string { return s.name }

func (s *StatsFunc) Stats(ctx context.Context) (any, error) { return s.fn(ctx) }
