package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/stockrag/market"
	"github.com/BaSui01/stockrag/types"
)

// =============================================================================
// 🗄️ 持久层
// =============================================================================

// RecordStore 持久层接口。未找到返回 (nil, false, nil)。
type RecordStore interface {
	GetLatest(ctx context.Context, dataType market.DataType, code string, params map[string]string) (market.Record, bool, error)
	Upsert(ctx context.Context, dataType market.DataType, code string, params map[string]string, record market.Record) error
	Delete(ctx context.Context, dataType market.DataType, code string) (int64, error)
}

// GormStore 基于 GORM 的 RecordStore
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewGormStore 创建持久层
func NewGormStore(db *gorm.DB, logger *zap.Logger) *GormStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormStore{
		db:     db,
		logger: logger.With(zap.String("component", "record_store")),
		now:    time.Now,
	}
}

// GetLatest 读取 (code, params) 对应的记录
func (s *GormStore) GetLatest(ctx context.Context, dataType market.DataType, code string, params map[string]string) (market.Record, bool, error) {
	if !dataType.Valid() {
		return nil, false, types.NewValidationError("unknown data type %q", dataType)
	}

	var row MarketRecord
	err := s.db.WithContext(ctx).
		Table(dataType.Table()).
		Where("entity_code = ? AND params_key = ?", code, market.ParamsKey(params)).
		Order("fetched_at DESC").
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, false, types.NewStorageError("read "+dataType.Table(), err)
	}
	if row.ID == 0 {
		return nil, false, nil
	}

	rec, err := market.DecodeRecord(row.Payload)
	if err != nil {
		return nil, false, types.NewStorageError("decode "+dataType.Table(), err)
	}
	return rec, true, nil
}

// Upsert 按 (entity_code, params_key) 覆盖写入
func (s *GormStore) Upsert(ctx context.Context, dataType market.DataType, code string, params map[string]string, record market.Record) error {
	if !dataType.Valid() {
		return types.NewValidationError("unknown data type %q", dataType)
	}
	if err := market.ValidateCode(code); err != nil {
		return err
	}

	payload, err := market.CanonicalJSON(record)
	if err != nil {
		return types.NewStorageError("encode record", err)
	}
	hash, err := market.ContentHash(record)
	if err != nil {
		return types.NewStorageError("hash record", err)
	}

	now := s.now().UTC()
	row := &MarketRecord{
		EntityCode:  code,
		ParamsKey:   market.ParamsKey(params),
		Payload:     datatypes.JSON(payload),
		ContentHash: hash,
		FetchedAt:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.db.WithContext(ctx).
		Table(dataType.Table()).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "entity_code"}, {Name: "params_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "content_hash", "fetched_at", "updated_at"}),
		}).
		Create(row).Error
	if err != nil {
		return types.NewStorageError("upsert "+dataType.Table(), err)
	}

	s.logger.Debug("record persisted",
		zap.String("data_type", string(dataType)),
		zap.String("code", code),
		zap.String("hash", hash[:12]),
	)
	return nil
}

// Delete 删除某证券在某数据类型下的全部参数变体
func (s *GormStore) Delete(ctx context.Context, dataType market.DataType, code string) (int64, error) {
	if !dataType.Valid() {
		return 0, types.NewValidationError("unknown data type %q", dataType)
	}
	if err := market.ValidateCode(code); err != nil {
		return 0, err
	}
	res := s.db.WithContext(ctx).
		Table(dataType.Table()).
		Where("entity_code = ?", code).
		Delete(&MarketRecord{})
	if res.Error != nil {
		return 0, types.NewStorageError("delete "+dataType.Table(), res.Error)
	}
	return res.RowsAffected, nil
}

// =============================================================================
// 🔧 表结构
// =============================================================================

// AutoMigrate 为所有数据类型建表（开发环境与测试用，生产使用 internal/migration）
func AutoMigrate(db *gorm.DB) error {
	for _, dt := range market.AllDataTypes() {
		table := dt.Table()
		if err := db.Table(table).AutoMigrate(&MarketRecord{}); err != nil {
			return fmt.Errorf("auto migrate %s: %w", table, err)
		}

		idx := "uk_" + table + "_entity_params"
		m := db.Table(table).Migrator()
		if m.HasIndex(&MarketRecord{}, idx) {
			continue
		}
		stmt := fmt.Sprintf("CREATE UNIQUE INDEX %s ON %s (entity_code, params_key)", idx, table)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index %s: %w", idx, err)
		}
	}
	return nil
}
