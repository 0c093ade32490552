package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/stockrag/config"
	"github.com/BaSui01/stockrag/embedding"
	"github.com/BaSui01/stockrag/internal/cache"
	"github.com/BaSui01/stockrag/internal/circuitbreaker"
	"github.com/BaSui01/stockrag/internal/database"
	"github.com/BaSui01/stockrag/internal/events"
	"github.com/BaSui01/stockrag/internal/metrics"
	"github.com/BaSui01/stockrag/internal/telemetry"
	"github.com/BaSui01/stockrag/market"
	"github.com/BaSui01/stockrag/provider"
	"github.com/BaSui01/stockrag/rag"
	"github.com/BaSui01/stockrag/resolver"
	"github.com/BaSui01/stockrag/scheduler"
	"github.com/BaSui01/stockrag/store"
)

// =============================================================================
// 🧩 组件装配
// =============================================================================

// App 持有装配完成的全部组件，serve 与一次性命令共用
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	db        *gorm.DB
	pool      *database.PoolManager
	cache     *cache.Manager
	provider  *provider.Chain
	publisher events.Publisher
	collector *metrics.Collector

	resolver   *resolver.TieredResolver
	versions   *rag.VersionManager
	syncer     *rag.SyncProcessor
	searcher   *rag.Searcher
	watchlists *scheduler.WatchlistRepository
	processor  *scheduler.Processor
	scheduler  *scheduler.Scheduler
}

// newApp 按依赖顺序装配：存储 → 缓存 → 数据源 → 解析器 → 向量化 → 同步 → 调度。
// 任一步失败会释放已打开的资源。
func newApp(cfg *config.Config, collector *metrics.Collector, logger *zap.Logger) (app *App, err error) {
	app = &App{cfg: cfg, logger: logger, collector: collector}
	defer func() {
		if err != nil {
			app.Close()
			app = nil
		}
	}()

	// 1. 数据库与连接池
	if app.db, err = database.Open(cfg.Database, logger); err != nil {
		return app, err
	}
	if app.pool, err = database.NewPoolManager(app.db, database.PoolConfigFromDatabase(cfg.Database), logger); err != nil {
		return app, err
	}
	if cfg.Database.AutoMigrate {
		if err = autoMigrate(app.db); err != nil {
			return app, err
		}
	}

	// 2. Redis 缓存
	if app.cache, err = cache.NewManager(cache.Config{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DefaultTTL:   cfg.Cache.DefaultTTL,
		MaxRetries:   3,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		TLSEnabled:   cfg.Redis.TLSEnabled,
	}, logger); err != nil {
		return app, err
	}

	// 3. 外部数据源调用链
	if app.provider, err = provider.NewFromConfig(cfg.Provider, logger, provider.ChainOptions{
		Observer: collector,
		OnBreakerState: func(name string, _, to circuitbreaker.State) {
			collector.SetBreakerState(name, int(to))
		},
	}); err != nil {
		return app, fmt.Errorf("provider chain: %w", err)
	}

	// 4. 分级解析器
	meters, err := telemetry.NewMeters(nil)
	if err != nil {
		return app, fmt.Errorf("otel meters: %w", err)
	}
	observer := &observers{collector: collector, meters: meters}
	app.resolver = resolver.New(app.cache, store.NewGormStore(app.db, logger), app.provider, cfg.Cache, logger,
		resolver.WithObserver(observer))

	// 5. 向量化与版本
	embedder, err := embedding.NewFromConfig(cfg.Embedding, logger)
	if err != nil {
		return app, fmt.Errorf("embedding provider: %w", err)
	}
	embedder = embedding.NewObserved(embedder, collector)

	index, err := rag.NewVectorIndexFromConfig(cfg.Vector, logger)
	if err != nil {
		return app, fmt.Errorf("vector index: %w", err)
	}
	app.versions = rag.NewVersionManager(app.db, index, logger)
	vectorizer := rag.NewVectorizer(rag.VectorizerConfigFrom(cfg.RAG), rag.NewTiktokenCounter("", logger), logger)

	if app.publisher, err = events.NewFromConfig(cfg.Kafka, logger); err != nil {
		return app, fmt.Errorf("event publisher: %w", err)
	}

	// 6. 同步与检索
	app.syncer = rag.NewSyncProcessor(app.resolver, app.versions, vectorizer, embedder, index,
		rag.SyncConfigFrom(cfg.Embedding, cfg.RAG), logger,
		rag.WithSyncObserver(observer),
		rag.WithPublisher(app.publisher),
	)
	app.searcher = rag.NewSearcher(app.versions, embedder, index, cfg.RAG.SearchTopK, cfg.Embedding.Timeout, logger)

	// 7. 自选列表与调度
	app.watchlists = scheduler.NewWatchlistRepository(app.db, logger)
	app.processor = scheduler.NewProcessor(app.watchlists, app.resolver, app.syncer,
		scheduler.ConfigFrom(cfg.Scheduler), logger, scheduler.WithObserver(collector))
	app.scheduler = scheduler.NewScheduler(app.watchlists, app.processor, app.versions, cfg.Scheduler, collector, logger)

	return app, nil
}

// observers 解析与同步同时写 Prometheus 与 OTLP 指标
type observers struct {
	collector *metrics.Collector
	meters    *telemetry.Meters
}

func (o *observers) ObserveResolve(dataType market.DataType, tier string, duration time.Duration) {
	o.collector.ObserveResolve(dataType, tier, duration)
	o.meters.ObserveResolve(dataType, tier, duration)
}

func (o *observers) ObserveSync(dataType market.DataType, outcome string, duration time.Duration, chunks, vectors int) {
	o.collector.ObserveSync(dataType, outcome, duration, chunks, vectors)
	o.meters.ObserveSync(dataType, outcome, duration, chunks, vectors)
}

// autoMigrate 开发环境下直接由模型建表；生产使用 stockrag migrate
func autoMigrate(db *gorm.DB) error {
	for _, migrate := range []func(*gorm.DB) error{store.AutoMigrate, rag.AutoMigrate, scheduler.AutoMigrate} {
		if err := migrate(db); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
	}
	return nil
}

// Ping 检查数据库与 Redis
func (a *App) Ping(ctx context.Context) error {
	return errors.Join(a.pool.Ping(ctx), a.cache.Ping(ctx))
}

// Close 释放资源，可重复调用
func (a *App) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("event publisher close failed", zap.Error(err))
		}
		a.publisher = nil
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("cache close failed", zap.Error(err))
		}
		a.cache = nil
	}
	if a.pool != nil {
		if err := a.pool.Close(); err != nil {
			a.logger.Warn("database close failed", zap.Error(err))
		}
		a.pool = nil
	} else if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	a.db = nil
}
