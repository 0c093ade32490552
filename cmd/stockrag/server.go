package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/stockrag/api/handlers"
	"github.com/BaSui01/stockrag/internal/metrics"
	"github.com/BaSui01/stockrag/internal/server"
	"github.com/BaSui01/stockrag/internal/telemetry"
)

// dbStatsInterval 连接池指标采集间隔
const dbStatsInterval = 15 * time.Second

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server, metrics endpoint and background scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			logger := initLogger(cfg.Log)
			defer func() { _ = logger.Sync() }()

			logger.Info("starting stockrag",
				zap.String("version", Version),
				zap.String("build_time", BuildTime),
				zap.String("git_commit", GitCommit),
			)

			otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
			if err != nil {
				logger.Warn("failed to initialize telemetry", zap.Error(err))
			}

			app, err := newApp(cfg, metrics.NewCollector("stockrag", logger), logger)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			runErr := NewServer(app).Run(ctx)

			if otelProviders != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := otelProviders.Shutdown(shutdownCtx); err != nil {
					logger.Warn("telemetry shutdown failed", zap.Error(err))
				}
			}
			logger.Info("stockrag stopped")
			return runErr
		},
	}
}

// =============================================================================
// 🌐 Server
// =============================================================================

// Server API、metrics 与后台调度的生命周期
type Server struct {
	app    *App
	logger *zap.Logger

	httpManager    *server.Manager
	metricsManager *server.Manager
}

// NewServer 创建服务器
func NewServer(app *App) *Server {
	return &Server{app: app, logger: app.logger.With(zap.String("component", "server"))}
}

// Run 阻塞运行直到 ctx 结束；任一子任务异常退出会取消其余任务
func (s *Server) Run(ctx context.Context) error {
	cfg := s.app.cfg
	g, ctx := errgroup.WithContext(ctx)

	s.httpManager = server.NewManager("api", s.Handler(ctx), server.ConfigFrom(cfg.Server, cfg.Server.HTTPPort), s.logger)
	g.Go(func() error { return s.httpManager.Run(ctx) })

	if cfg.Server.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		s.metricsManager = server.NewManager("metrics", mux, server.ConfigFrom(cfg.Server, cfg.Server.MetricsPort), s.logger)
		g.Go(func() error { return s.metricsManager.Run(ctx) })
	}

	if cfg.Scheduler.Enabled {
		g.Go(func() error { return ignoreCanceled(s.app.scheduler.Run(ctx)) })
	}

	g.Go(func() error {
		s.collectDBStats(ctx)
		return nil
	})

	s.logger.Info("all servers started",
		zap.Int("http_port", cfg.Server.HTTPPort),
		zap.Int("metrics_port", cfg.Server.MetricsPort),
		zap.Bool("scheduler_enabled", cfg.Scheduler.Enabled),
	)
	return g.Wait()
}

// Handler 构建 API 路由。ctx 控制限流器后台清理的生命周期。
func (s *Server) Handler(ctx context.Context) http.Handler {
	app, cfg := s.app, s.app.cfg

	health := handlers.NewHealthHandler(handlers.BuildInfo{Version: Version, BuildTime: BuildTime, GitCommit: GitCommit}, s.logger)
	health.RegisterCheck(handlers.NewPingCheck("database", app.pool.Ping))
	health.RegisterCheck(handlers.NewPingCheck("redis", app.cache.Ping))
	health.RegisterStats(handlers.NewStatsFunc("cache", func(ctx context.Context) (any, error) {
		return app.cache.GetStats(ctx)
	}))
	health.RegisterStats(handlers.NewStatsFunc("database", func(context.Context) (any, error) {
		return app.pool.Stats(), nil
	}))

	marketHandler := handlers.NewMarketHandler(app.resolver, s.logger)
	ragHandler := handlers.NewRAGHandler(app.syncer, app.versions, app.searcher, cfg.Scheduler.RetentionDays, s.logger)
	watchlistHandler := handlers.NewWatchlistHandler(app.watchlists, app.processor, s.logger)

	r := chi.NewRouter()
	r.Use(
		Recovery(s.logger),
		RequestID(),
		OTelTracing(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(app.collector),
		CORS(cfg.Server.CORSAllowedOrigins),
	)

	r.Get("/health", health.HandleHealth)
	r.Get("/healthz", health.HandleHealth)
	r.Get("/ready", health.HandleReady)
	r.Get("/version", health.HandleVersion)
	r.Get("/stats", health.HandleStats)

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Server.RateLimitRPS > 0 {
			r.Use(RateLimiter(ctx, cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, s.logger))
		}

		r.Get("/market/{dataType}/{code}", marketHandler.HandleResolve)
		r.Delete("/market/{dataType}/{code}/cache", marketHandler.HandleInvalidate)

		r.Route("/rag", func(r chi.Router) {
			r.Post("/sync", ragHandler.HandleSync)
			r.Post("/sync/batch", ragHandler.HandleSyncBatch)
			r.Get("/versions/{code}/{dataType}", ragHandler.HandleListVersions)
			r.Get("/versions/{code}/{dataType}/active", ragHandler.HandleActiveVersion)
			r.Post("/versions/{id}/activate", ragHandler.HandleActivate)
			r.Post("/search", ragHandler.HandleSearch)
			r.Post("/cleanup", ragHandler.HandleCleanup)
		})

		r.Route("/watchlists", func(r chi.Router) {
			r.Get("/", watchlistHandler.HandleList)
			r.Post("/", watchlistHandler.HandleCreate)
			r.Post("/process", watchlistHandler.HandleProcess)
			r.Get("/{id}", watchlistHandler.HandleGet)
			r.Put("/{id}", watchlistHandler.HandleUpdate)
			r.Delete("/{id}", watchlistHandler.HandleDelete)
		})
	})

	return r
}

// collectDBStats 周期性把连接池状态写入 metrics
func (s *Server) collectDBStats(ctx context.Context) {
	ticker := time.NewTicker(dbStatsInterval)
	defer ticker.Stop()
	for {
		stats := s.app.pool.Stats()
		s.app.collector.RecordDBConnections(stats.Driver, stats.Open, stats.Idle)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
