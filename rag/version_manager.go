package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/stockrag/internal/database"
	"github.com/BaSui01/stockrag/market"
	"github.com/BaSui01/stockrag/types"
)

// =============================================================================
// 🗂️ 版本管理
// =============================================================================

// 激活前允许的状态迁移
var allowedTransitions = map[Status][]Status{
	StatusPending:    {StatusVectorized, StatusFailed},
	StatusVectorized: {StatusFailed},
}

func canTransition(from, to Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// VersionManager DataVersion 生命周期的唯一写入者
type VersionManager struct {
	db     *gorm.DB
	index  VectorIndex
	logger *zap.Logger
	locks  *keyedMutex
	txOpts database.TxOptions

	now   func() time.Time
	newID func() string
}

// NewVersionManager 创建版本管理器。index 为 nil 时清理不删除向量。
func NewVersionManager(db *gorm.DB, index VectorIndex, logger *zap.Logger) *VersionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VersionManager{
		db:     db,
		index:  index,
		logger: logger.With(zap.String("component", "version_manager")),
		locks:  newKeyedMutex(),
		txOpts: database.DefaultTxOptions(),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.NewString() },
	}
}

// CreateVersion 内容未变化时返回已有版本，否则新建 pending 版本
func (m *VersionManager) CreateVersion(ctx context.Context, code string, dataType market.DataType, source market.Record) (VersionRef, error) {
	if err := validatePartition(code, dataType); err != nil {
		return VersionRef{}, err
	}
	if source.IsEmpty() {
		return VersionRef{}, types.NewValidationError("source data for %s/%s is empty", code, dataType)
	}

	payload, err := market.CanonicalJSON(source)
	if err != nil {
		return VersionRef{}, types.NewValidationError("source data is not serializable: %v", err)
	}
	hash, err := market.ContentHash(source)
	if err != nil {
		return VersionRef{}, types.NewValidationError("hash source data: %v", err)
	}

	unlock := m.locks.Lock(partitionKey(code, string(dataType)))
	defer unlock()

	var existing DataVersion
	err = m.db.WithContext(ctx).
		Where("entity_code = ? AND data_type = ? AND content_hash = ?", code, string(dataType), hash).
		Where("deprecated_at IS NULL AND vectorization_status NOT IN ?", []Status{StatusFailed, StatusDeprecated}).
		Order("created_at DESC").
		Limit(1).
		Find(&existing).Error
	if err != nil {
		return VersionRef{}, types.NewStorageError("lookup version", err)
	}
	if existing.VersionID != "" {
		return VersionRef{ID: existing.VersionID, Created: false, Status: existing.Status}, nil
	}

	v := DataVersion{
		VersionID:   m.newID(),
		EntityCode:  code,
		DataType:    string(dataType),
		ContentHash: hash,
		Status:      StatusPending,
		SourceData:  datatypes.JSON(payload),
	}
	if err := m.db.WithContext(ctx).Create(&v).Error; err != nil {
		return VersionRef{}, types.NewStorageError("create version", err)
	}

	m.logger.Info("version created",
		zap.String("version_id", v.VersionID),
		zap.String("code", code),
		zap.String("data_type", string(dataType)),
		zap.String("content_hash", hash[:12]),
	)
	return VersionRef{ID: v.VersionID, Created: true, Status: StatusPending}, nil
}

// UpdateVectorStatus 推进激活前的状态：pending→vectorized、pending→failed、vectorized→failed。
// metadata 合并进已有元数据；metadata["error"] 为字符串时写入 error_message。
func (m *VersionManager) UpdateVectorStatus(ctx context.Context, versionID string, status Status, chunkCount *int, metadata map[string]any) error {
	if !status.Valid() {
		return types.NewValidationError("unknown status %q", status)
	}

	return database.RunInTx(ctx, m.db, m.txOpts, m.logger, func(tx *gorm.DB) error {
		v, err := m.loadForUpdate(tx, versionID)
		if err != nil {
			return err
		}
		if !canTransition(v.Status, status) {
			return types.NewError(types.ErrInvalidStateTransition,
				fmt.Sprintf("version %s: %s -> %s is not allowed", versionID, v.Status, status))
		}

		updates := map[string]any{
			"vectorization_status": status,
			"updated_at":           m.now(),
		}
		if chunkCount != nil {
			updates["chunk_count"] = *chunkCount
		}
		if len(metadata) > 0 {
			merged, err := mergeMetadata(v.Metadata, metadata)
			if err != nil {
				return types.NewValidationError("metadata is not serializable: %v", err)
			}
			updates["metadata"] = merged
			if msg, ok := metadata["error"].(string); ok {
				updates["error_message"] = msg
			}
		}

		res := tx.Model(&DataVersion{}).
			Where("version_id = ? AND vectorization_status = ?", versionID, v.Status).
			Updates(updates)
		if res.Error != nil {
			return types.NewStorageError("update version status", res.Error)
		}
		if res.RowsAffected == 0 {
			return types.NewError(types.ErrInvalidStateTransition,
				fmt.Sprintf("version %s changed concurrently", versionID))
		}
		return nil
	})
}

// ActivateVersion 在同一事务内废弃同分区其他版本并激活目标版本。
// 已是 active 的版本直接返回 true。
func (m *VersionManager) ActivateVersion(ctx context.Context, versionID string) (bool, error) {
	target, err := m.GetVersion(ctx, versionID)
	if err != nil {
		if types.IsErrorCode(err, types.ErrNotFound) {
			return false, types.NewError(types.ErrActivationConflict,
				fmt.Sprintf("version %s not found", versionID)).WithCause(err)
		}
		return false, err
	}

	unlock := m.locks.Lock(partitionKey(target.EntityCode, target.DataType))
	defer unlock()

	noop := false
	err = database.RunInTx(ctx, m.db, m.txOpts, m.logger, func(tx *gorm.DB) error {
		noop = false
		// 锁住分区内所有未废弃的行
		var partition []DataVersion
		q := tx.Select("version_id")
		if database.SupportsRowLocking(tx) {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := q.Where("entity_code = ? AND data_type = ? AND deprecated_at IS NULL", target.EntityCode, target.DataType).
			Find(&partition).Error; err != nil {
			return types.NewStorageError("lock version partition", err)
		}

		var current DataVersion
		if err := tx.Where("version_id = ?", versionID).Limit(1).Find(&current).Error; err != nil {
			return types.NewStorageError("reload version", err)
		}
		switch {
		case current.VersionID == "":
			return types.NewError(types.ErrActivationConflict, fmt.Sprintf("version %s disappeared", versionID))
		case current.IsActive():
			noop = true
			return nil
		case current.DeprecatedAt != nil || current.Status == StatusFailed || current.Status == StatusDeprecated:
			return types.NewError(types.ErrActivationConflict,
				fmt.Sprintf("version %s cannot be activated from %s", versionID, current.Status))
		}

		now := m.now()
		if err := tx.Model(&DataVersion{}).
			Where("entity_code = ? AND data_type = ? AND version_id <> ? AND deprecated_at IS NULL",
				target.EntityCode, target.DataType, versionID).
			Updates(map[string]any{
				"vectorization_status": StatusDeprecated,
				"deprecated_at":        now,
				"updated_at":           now,
			}).Error; err != nil {
			return types.NewStorageError("deprecate previous versions", err)
		}

		res := tx.Model(&DataVersion{}).
			Where("version_id = ? AND deprecated_at IS NULL AND vectorization_status IN ?",
				versionID, []Status{StatusPending, StatusVectorized}).
			Updates(map[string]any{
				"vectorization_status": StatusActive,
				"activated_at":         now,
				"updated_at":           now,
			})
		if res.Error != nil {
			return types.NewError(types.ErrActivationConflict, "activate version").WithCause(res.Error)
		}
		if res.RowsAffected == 0 {
			return types.NewError(types.ErrActivationConflict,
				fmt.Sprintf("version %s was not updated", versionID))
		}
		return nil
	})
	if err != nil {
		m.logger.Warn("activation failed", zap.String("version_id", versionID), zap.Error(err))
		return false, err
	}

	if !noop {
		m.logger.Info("version activated",
			zap.String("version_id", versionID),
			zap.String("code", target.EntityCode),
			zap.String("data_type", target.DataType),
		)
	}
	return true, nil
}

// GetActiveVersion 没有有效版本时返回 nil
func (m *VersionManager) GetActiveVersion(ctx context.Context, code string, dataType market.DataType) (*DataVersion, error) {
	if err := validatePartition(code, dataType); err != nil {
		return nil, err
	}
	var v DataVersion
	err := m.db.WithContext(ctx).
		Where("entity_code = ? AND data_type = ? AND vectorization_status = ? AND deprecated_at IS NULL",
			code, string(dataType), StatusActive).
		Limit(1).
		Find(&v).Error
	if err != nil {
		return nil, types.NewStorageError("get active version", err)
	}
	if v.VersionID == "" {
		return nil, nil
	}
	return &v, nil
}

// GetVersion 按 ID 读取，不存在返回 NOT_FOUND
func (m *VersionManager) GetVersion(ctx context.Context, versionID string) (*DataVersion, error) {
	var v DataVersion
	if err := m.db.WithContext(ctx).Where("version_id = ?", versionID).Limit(1).Find(&v).Error; err != nil {
		return nil, types.NewStorageError("get version", err)
	}
	if v.VersionID == "" {
		return nil, types.NewNotFoundError("version %s not found", versionID)
	}
	return &v, nil
}

// ListVersions 按创建时间倒序列出分区内所有版本
func (m *VersionManager) ListVersions(ctx context.Context, code string, dataType market.DataType) ([]DataVersion, error) {
	if err := validatePartition(code, dataType); err != nil {
		return nil, err
	}
	var out []DataVersion
	err := m.db.WithContext(ctx).
		Where("entity_code = ? AND data_type = ?", code, string(dataType)).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, types.NewStorageError("list versions", err)
	}
	return out, nil
}

// CleanupDeprecatedVersions 删除废弃超过 daysOld 天的版本及其向量。
// 向量删除失败的版本保留到下一轮。
func (m *VersionManager) CleanupDeprecatedVersions(ctx context.Context, daysOld int) (int, error) {
	if daysOld < 0 {
		return 0, types.NewValidationError("days_old must be >= 0, got %d", daysOld)
	}
	cutoff := m.now().Add(-time.Duration(daysOld) * 24 * time.Hour)

	var stale []DataVersion
	err := m.db.WithContext(ctx).
		Select("version_id", "entity_code", "data_type").
		Where("deprecated_at IS NOT NULL AND deprecated_at < ?", cutoff).
		Find(&stale).Error
	if err != nil {
		return 0, types.NewStorageError("find deprecated versions", err)
	}

	removed := 0
	for _, v := range stale {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if m.index != nil {
			collection := CollectionName(v.EntityCode, market.DataType(v.DataType))
			if err := m.index.DeleteVersion(ctx, collection, v.VersionID); err != nil {
				m.logger.Warn("vector deletion failed, keeping version for next sweep",
					zap.String("version_id", v.VersionID), zap.Error(err))
				continue
			}
		}
		res := m.db.WithContext(ctx).
			Where("version_id = ? AND deprecated_at IS NOT NULL", v.VersionID).
			Delete(&DataVersion{})
		if res.Error != nil {
			return removed, types.NewStorageError("delete version", res.Error)
		}
		removed += int(res.RowsAffected)
	}

	if removed > 0 {
		m.logger.Info("deprecated versions purged", zap.Int("count", removed), zap.Int("days_old", daysOld))
	}
	return removed, nil
}

func (m *VersionManager) loadForUpdate(tx *gorm.DB, versionID string) (*DataVersion, error) {
	q := tx
	if database.SupportsRowLocking(tx) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var v DataVersion
	if err := q.Where("version_id = ?", versionID).Limit(1).Find(&v).Error; err != nil {
		return nil, types.NewStorageError("load version", err)
	}
	if v.VersionID == "" {
		return nil, types.NewNotFoundError("version %s not found", versionID)
	}
	return &v, nil
}

func validatePartition(code string, dataType market.DataType) error {
	if !dataType.Valid() {
		return types.NewValidationError("unsupported data type %q", dataType)
	}
	return market.ValidateCode(code)
}

func mergeMetadata(existing datatypes.JSON, extra map[string]any) (datatypes.JSON, error) {
	merged := map[string]any{}
	if len(existing) > 0 {
		// 旧元数据损坏时直接覆盖
		if err := json.Unmarshal(existing, &merged); err != nil {
			merged = map[string]any{}
		}
	}
	for k, v := range extra {
		merged[k] = v
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}
