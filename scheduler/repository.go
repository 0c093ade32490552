package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/stockrag/internal/database"
	"github.com/BaSui01/stockrag/market"
	"github.com/BaSui01/stockrag/types"
)

// =============================================================================
// 🗄️ 自选列表存储
// =============================================================================

// NewValidator 注册自定义校验规则 entitycode / datatype / schedule
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("entitycode", func(fl validator.FieldLevel) bool {
		return market.ValidateCode(fl.Field().String()) == nil
	})
	_ = v.RegisterValidation("datatype", func(fl validator.FieldLevel) bool {
		return market.DataType(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("schedule", func(fl validator.FieldLevel) bool {
		_, err := ParseSchedule(fl.Field().String())
		return err == nil
	})
	return v
}

// ValidationError 把 validator 错误转成 VALIDATION_ERROR
func ValidationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return types.NewValidationError("%s failed %q validation", fe.Namespace(), fe.Tag())
	}
	return types.NewValidationError("%v", err)
}

// WatchlistRepository 自选列表与使用统计
type WatchlistRepository struct {
	db       *gorm.DB
	validate *validator.Validate
	logger   *zap.Logger
	txOpts   database.TxOptions
	now      func() time.Time
}

// NewWatchlistRepository 创建存储
func NewWatchlistRepository(db *gorm.DB, logger *zap.Logger) *WatchlistRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WatchlistRepository{
		db:       db,
		validate: NewValidator(),
		logger:   logger.With(zap.String("component", "watchlist_repository")),
		txOpts:   database.DefaultTxOptions(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// AutoMigrate 开发/测试环境建表
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Watchlist{}, &WatchlistUsage{}); err != nil {
		return fmt.Errorf("migrate watchlists: %w", err)
	}
	return nil
}

// Create 创建自选列表
func (r *WatchlistRepository) Create(ctx context.Context, w *Watchlist) error {
	if err := r.validate.Struct(w); err != nil {
		return ValidationError(err)
	}
	if existing, err := r.GetByName(ctx, w.Name); err == nil && existing != nil {
		return types.NewValidationError("watchlist %q already exists", w.Name)
	}
	if err := r.db.WithContext(ctx).Create(w).Error; err != nil {
		return types.NewStorageError("create watchlist", err)
	}
	r.logger.Info("watchlist created", zap.Uint("id", w.ID), zap.String("name", w.Name), zap.Int("priority", w.Priority))
	return nil
}

// Get 按 ID 读取
func (r *WatchlistRepository) Get(ctx context.Context, id uint) (*Watchlist, error) {
	return r.first(ctx, "id = ?", id)
}

// GetByName 按名称读取
func (r *WatchlistRepository) GetByName(ctx context.Context, name string) (*Watchlist, error) {
	return r.first(ctx, "name = ?", name)
}

func (r *WatchlistRepository) first(ctx context.Context, query string, arg any) (*Watchlist, error) {
	var w Watchlist
	if err := r.db.WithContext(ctx).Where(query, arg).Limit(1).Find(&w).Error; err != nil {
		return nil, types.NewStorageError("get watchlist", err)
	}
	if w.ID == 0 {
		return nil, types.NewNotFoundError("watchlist %v not found", arg)
	}
	return &w, nil
}

// List 按优先级、ID 排序；enabledOnly 只返回启用的列表
func (r *WatchlistRepository) List(ctx context.Context, enabledOnly bool) ([]Watchlist, error) {
	q := r.db.WithContext(ctx).Order("priority ASC, id ASC")
	if enabledOnly {
		q = q.Where("enabled = ?", true)
	}
	var out []Watchlist
	if err := q.Find(&out).Error; err != nil {
		return nil, types.NewStorageError("list watchlists", err)
	}
	return out, nil
}

// ListByPriority 启用的、指定优先级的列表
func (r *WatchlistRepository) ListByPriority(ctx context.Context, priority int) ([]Watchlist, error) {
	if priority < PriorityHighest || priority > PriorityLowest {
		return nil, types.NewValidationError("priority must be between %d and %d, got %d", PriorityHighest, PriorityLowest, priority)
	}
	var out []Watchlist
	err := r.db.WithContext(ctx).
		Where("priority = ? AND enabled = ?", priority, true).
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, types.NewStorageError("list watchlists by priority", err)
	}
	return out, nil
}

// ListContainingCodes 启用的、包含任一给定代码的列表，按优先级排序。
// entity_codes 是 JSON 列，各方言的 JSON 查询语法不同，这里读出后在内存中过滤。
func (r *WatchlistRepository) ListContainingCodes(ctx context.Context, codes []string) ([]Watchlist, error) {
	lists, err := r.List(ctx, true)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(codes))
	for _, c := range codes {
		wanted[c] = true
	}
	out := lists[:0]
	for _, w := range lists {
		if slices.ContainsFunc(w.EntityCodes, func(c string) bool { return wanted[c] }) {
			out = append(out, w)
		}
	}
	return out, nil
}

// Update 保存全部字段
func (r *WatchlistRepository) Update(ctx context.Context, w *Watchlist) error {
	if w.ID == 0 {
		return types.NewValidationError("watchlist id is required")
	}
	if err := r.validate.Struct(w); err != nil {
		return ValidationError(err)
	}
	if _, err := r.Get(ctx, w.ID); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Save(w).Error; err != nil {
		return types.NewStorageError("update watchlist", err)
	}
	return nil
}

// Delete 删除列表及其使用统计
func (r *WatchlistRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("watchlist_id = ?", id).Delete(&WatchlistUsage{}).Error; err != nil {
			return types.NewStorageError("delete watchlist usage", err)
		}
		res := tx.Delete(&Watchlist{}, id)
		if res.Error != nil {
			return types.NewStorageError("delete watchlist", res.Error)
		}
		if res.RowsAffected == 0 {
			return types.NewNotFoundError("watchlist %d not found", id)
		}
		return nil
	})
}

// MarkRun 记录最近一次同步时间
func (r *WatchlistRepository) MarkRun(ctx context.Context, id uint, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&Watchlist{}).
		Where("id = ?", id).
		Updates(map[string]any{"last_run_at": at.UTC(), "updated_at": r.now()}).Error
	if err != nil {
		return types.NewStorageError("mark watchlist run", err)
	}
	return nil
}

// =============================================================================
// 📊 使用统计
// =============================================================================

// UsageDate 统计日期格式
func UsageDate(t time.Time) string { return t.UTC().Format("2006-01-02") }

// RecordUsage 增量更新某天的访问统计：
// 平均延迟按访问次数加权，命中率 = 命中次数 / 访问次数。
func (r *WatchlistRepository) RecordUsage(ctx context.Context, watchlistID uint, day time.Time, accesses, cacheHits int64, avgLatency time.Duration) error {
	if accesses <= 0 {
		return nil
	}
	if cacheHits < 0 || cacheHits > accesses {
		return types.NewValidationError("cache hits %d out of range [0, %d]", cacheHits, accesses)
	}
	date := UsageDate(day)

	return database.RunInTx(ctx, r.db, r.txOpts, r.logger, func(tx *gorm.DB) error {
		now := r.now()
		seed := WatchlistUsage{WatchlistID: watchlistID, UsageDate: date, CreatedAt: now, UpdatedAt: now}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "watchlist_id"}, {Name: "usage_date"}},
			DoNothing: true,
		}).Create(&seed).Error; err != nil {
			return types.NewStorageError("seed watchlist usage", err)
		}

		q := tx
		if database.SupportsRowLocking(tx) {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var u WatchlistUsage
		if err := q.Where("watchlist_id = ? AND usage_date = ?", watchlistID, date).Limit(1).Find(&u).Error; err != nil {
			return types.NewStorageError("load watchlist usage", err)
		}

		total := u.AccessCount + accesses
		batchAvg := float64(avgLatency) / float64(time.Millisecond)
		newAvg := (u.AvgLatencyMs*float64(u.AccessCount) + batchAvg*float64(accesses)) / float64(total)
		hits := u.CacheHits + cacheHits

		err := tx.Model(&WatchlistUsage{}).
			Where("id = ?", u.ID).
			Updates(map[string]any{
				"access_count":   total,
				"cache_hits":     hits,
				"avg_latency_ms": newAvg,
				"cache_hit_rate": float64(hits) / float64(total),
				"updated_at":     now,
			}).Error
		if err != nil {
			return types.NewStorageError("update watchlist usage", err)
		}
		return nil
	})
}

// GetUsage 读取某天的统计，没有记录时返回 nil
func (r *WatchlistRepository) GetUsage(ctx context.Context, watchlistID uint, day time.Time) (*WatchlistUsage, error) {
	var u WatchlistUsage
	err := r.db.WithContext(ctx).
		Where("watchlist_id = ? AND usage_date = ?", watchlistID, UsageDate(day)).
		Limit(1).Find(&u).Error
	if err != nil {
		return nil, types.NewStorageError("get watchlist usage", err)
	}
	if u.ID == 0 {
		return nil, nil
	}
	return &u, nil
}
