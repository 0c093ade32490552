package resolver

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/stockrag/config"
	"github.com/BaSui01/stockrag/internal/cache"
	"github.com/BaSui01/stockrag/internal/telemetry"
	"github.com/BaSui01/stockrag/market"
	"github.com/BaSui01/stockrag/provider"
	"github.com/BaSui01/stockrag/store"
	"github.com/BaSui01/stockrag/types"
)

// =============================================================================
// 🧭 三级缓存解析器
// =============================================================================

// Tier 命中层级
type Tier string

const (
	TierCache       Tier = "cache"
	TierPersistent  Tier = "persistent"
	TierExternal    Tier = "external"
	TierUnavailable Tier = "unavailable"
)

// Result 解析结果。Tier 为 unavailable 时 Value 为 nil。
type Result struct {
	Value market.Record `json:"value"`
	Tier  Tier          `json:"source_tier"`
}

// Found 是否拿到数据
func (r Result) Found() bool { return r.Tier != TierUnavailable && r.Value != nil }

// CacheStore 第一级缓存。未命中返回 cache.ErrCacheMiss。
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// Observer 解析指标埋点
type Observer interface {
	ObserveResolve(dataType market.DataType, tier string, duration time.Duration)
}

// Option 解析器选项
type Option func(*TieredResolver)

// WithObserver 设置指标埋点
func WithObserver(o Observer) Option {
	return func(r *TieredResolver) { r.observer = o }
}

// TieredResolver Redis → 关系库 → 外部数据源，逐级回写
type TieredResolver struct {
	cache    CacheStore
	store    store.RecordStore
	provider provider.Provider
	ttls     config.CacheConfig
	observer Observer
	logger   *zap.Logger

	group singleflight.Group
}

// New 创建解析器
func New(c CacheStore, s store.RecordStore, p provider.Provider, ttls config.CacheConfig, logger *zap.Logger, opts ...Option) *TieredResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &TieredResolver{
		cache:    c,
		store:    s,
		provider: p,
		ttls:     ttls,
		logger:   logger.With(zap.String("component", "resolver")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve 解析 (dataType, code, params)。
// 只有输入校验错误与外部数据无法落库会返回 error；
// 数据源失败或无数据时返回 tier=unavailable。
func (r *TieredResolver) Resolve(ctx context.Context, dataType market.DataType, code string, params map[string]string) (res Result, err error) {
	if !dataType.Valid() {
		return Result{}, types.NewValidationError("unsupported data type %q", dataType)
	}
	if err := market.ValidateCode(code); err != nil {
		return Result{}, err
	}

	ctx, span := telemetry.StartSpan(ctx, "resolver.Resolve",
		attribute.String("data_type", string(dataType)),
		attribute.String("code", code),
	)
	start := time.Now()
	defer func() {
		span.SetAttributes(attribute.String("tier", string(res.Tier)))
		telemetry.EndSpan(span, err)
		if err == nil && r.observer != nil {
			r.observer.ObserveResolve(dataType, string(res.Tier), time.Since(start))
		}
	}()

	key := market.CacheKey(dataType, code, params)
	v, err, shared := r.group.Do(key, func() (any, error) {
		return r.resolve(ctx, key, dataType, code, params)
	})
	if err != nil {
		return Result{}, err
	}
	res = v.(Result)
	if shared && res.Value != nil {
		res.Value = res.Value.Clone()
	}
	return res, nil
}

func (r *TieredResolver) resolve(ctx context.Context, key string, dataType market.DataType, code string, params map[string]string) (Result, error) {
	log := r.logger.With(zap.String("data_type", string(dataType)), zap.String("code", code))

	// 1. 缓存
	if rec, ok := r.readCache(ctx, key, log); ok {
		return Result{Value: rec, Tier: TierCache}, nil
	}

	// 2. 持久层
	if r.store != nil {
		rec, found, err := r.store.GetLatest(ctx, dataType, code, params)
		switch {
		case err != nil:
			log.Warn("persistent read failed, treating as miss", zap.Error(err))
		case found && !rec.IsEmpty():
			r.writeCache(ctx, key, dataType, rec, log)
			return Result{Value: rec, Tier: TierPersistent}, nil
		}
	}

	// 3. 外部数据源
	if r.provider == nil {
		return Result{Tier: TierUnavailable}, nil
	}
	raw, err := r.provider.Fetch(ctx, dataType, code, params)
	if err != nil {
		if types.IsErrorCode(err, types.ErrValidation) {
			return Result{}, err
		}
		log.Warn("provider fetch failed, degrading to unavailable",
			zap.String("error_code", string(types.GetErrorCode(err))),
			zap.Error(err),
		)
		return Result{Tier: TierUnavailable}, nil
	}
	rec := market.Canonicalize(dataType, raw)
	if rec.IsEmpty() {
		log.Debug("provider returned no data")
		return Result{Tier: TierUnavailable}, nil
	}

	if r.store != nil {
		if err := r.store.Upsert(ctx, dataType, code, params, rec); err != nil {
			return Result{}, err
		}
	}
	r.writeCache(ctx, key, dataType, rec, log)
	return Result{Value: rec, Tier: TierExternal}, nil
}

func (r *TieredResolver) readCache(ctx context.Context, key string, log *zap.Logger) (market.Record, bool) {
	if r.cache == nil {
		return nil, false
	}
	data, err := r.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Warn("cache read failed, treating as miss", zap.Error(err))
		}
		return nil, false
	}
	rec, err := market.DecodeRecord(data)
	if err != nil || rec.IsEmpty() {
		log.Warn("discarding undecodable cache entry", zap.Error(err))
		return nil, false
	}
	return rec, true
}

func (r *TieredResolver) writeCache(ctx context.Context, key string, dataType market.DataType, rec market.Record, log *zap.Logger) {
	if r.cache == nil {
		return
	}
	data, err := market.CanonicalJSON(rec)
	if err != nil {
		log.Warn("encode cache entry failed", zap.Error(err))
		return
	}
	if err := r.cache.Set(ctx, key, data, r.ttls.TTLFor(dataType)); err != nil {
		log.Warn("cache write-back failed", zap.Error(err))
	}
}

// Invalidate 删除缓存条目，持久层数据保留。
// params 为空时删除该实体的全部参数变体。
func (r *TieredResolver) Invalidate(ctx context.Context, dataType market.DataType, code string, params map[string]string) error {
	if !dataType.Valid() {
		return types.NewValidationError("unsupported data type %q", dataType)
	}
	if err := market.ValidateCode(code); err != nil {
		return err
	}
	if r.cache == nil {
		return nil
	}
	key := market.CacheKey(dataType, code, params)
	if err := r.cache.Delete(ctx, key); err != nil {
		return types.NewError(types.ErrStorage, "cache invalidate failed").WithCause(err)
	}
	if len(params) > 0 {
		return nil
	}
	n, err := r.cache.DeletePrefix(ctx, key+":")
	if err != nil {
		return types.NewError(types.ErrStorage, "cache invalidate failed").WithCause(err)
	}
	r.logger.Debug("cache entity invalidated",
		zap.String("data_type", string(dataType)),
		zap.String("code", code),
		zap.Int("variants", n),
	)
	return nil
}

// Purge 删除实体在某数据类型下的全部持久化记录，再清掉全部缓存变体。
// 先删持久层，避免并发解析把旧记录重新回填进缓存。
func (r *TieredResolver) Purge(ctx context.Context, dataType market.DataType, code string) (int64, error) {
	if !dataType.Valid() {
		return 0, types.NewValidationError("unsupported data type %q", dataType)
	}
	if err := market.ValidateCode(code); err != nil {
		return 0, err
	}

	var deleted int64
	if r.store != nil {
		n, err := r.store.Delete(ctx, dataType, code)
		if err != nil {
			return 0, err
		}
		deleted = n
	}
	if err := r.Invalidate(ctx, dataType, code, nil); err != nil {
		return deleted, err
	}

	r.logger.Info("entity purged",
		zap.String("data_type", string(dataType)),
		zap.String("code", code),
		zap.Int64("records", deleted),
	)
	return deleted, nil
}
