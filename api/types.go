package api

import (
	"encoding/json"
	"time"

	"github.com/BaSui01/stockrag/market"
	"github.com/BaSui01/stockrag/rag"
	"github.com/BaSui01/stockrag/resolver"
)

// =============================================================================
// 📈 行情数据
// =============================================================================

// ResolveResponse 数据解析结果
// @Description 数据解析结果及命中层级
type ResolveResponse struct {
	// 证券代码
	Code string `json:"code" example:"600519"`
	// 数据类型
	DataType market.DataType `json:"data_type" example:"financial"`
	// 命中层级: cache, persistent, external, unavailable
	SourceTier resolver.Tier `json:"source_tier" example:"cache"`
	// 数据，unavailable 时为空
	Value market.Record `json:"value,omitempty"`
}

// =============================================================================
// 🔄 RAG 同步
// =============================================================================

// SyncRequest 单个同步请求
// @Description 同步一个 (证券代码, 数据类型)
type SyncRequest struct {
	Code     string `json:"code" validate:"required,entitycode" example:"600519"`
	DataType string `json:"data_type" validate:"required,datatype" example:"financial"`
}

// BatchSyncRequest 批量同步请求
type BatchSyncRequest struct {
	Items []SyncRequest `json:"items" validate:"required,min=1,max=500,dive"`
}

// BatchItems 转换为同步条目
func (r BatchSyncRequest) BatchItems() []rag.BatchItem {
	out := make([]rag.BatchItem, 0, len(r.Items))
	for _, it := range r.Items {
		out = append(out, rag.BatchItem{Code: it.Code, DataType: market.DataType(it.DataType)})
	}
	return out
}

// SearchRequest 语义检索请求
type SearchRequest struct {
	Code     string `json:"code" validate:"required,entitycode" example:"600519"`
	DataType string `json:"data_type" validate:"required,datatype" example:"company_profile"`
	Query    string `json:"query" validate:"required,max=2000" example:"主营业务是什么"`
	TopK     int    `json:"top_k,omitempty" validate:"omitempty,min=1,max=50" example:"5"`
}

// CleanupRequest 保留期清理请求，Days 为空时使用配置值
type CleanupRequest struct {
	Days int `json:"days,omitempty" validate:"omitempty,min=1,max=3650" example:"7"`
}

// CleanupResponse 清理结果
type CleanupResponse struct {
	Days   int `json:"days"`
	Purged int `json:"purged"`
}

// ActivateResponse 激活结果
type ActivateResponse struct {
	VersionID string `json:"version_id"`
	Activated bool   `json:"activated"`
}

// VersionView 数据版本（不含原始数据）
type VersionView struct {
	VersionID    string         `json:"version_id"`
	Code         string         `json:"code"`
	DataType     string         `json:"data_type"`
	ContentHash  string         `json:"content_hash"`
	Status       string         `json:"status"`
	ChunkCount   int            `json:"chunk_count"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Error        string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	ActivatedAt  *time.Time     `json:"activated_at,omitempty"`
	DeprecatedAt *time.Time     `json:"deprecated_at,omitempty"`
}

// =============================================================================
// 📋 自选列表
// =============================================================================

// WatchlistRequest 创建/更新自选列表
type WatchlistRequest struct {
	Name        string   `json:"name" validate:"required,max=128" example:"白酒龙头"`
	Description string   `json:"description,omitempty"`
	Priority    int      `json:"priority" validate:"min=1,max=5" example:"2"`
	EntityCodes []string `json:"entity_codes" validate:"required,min=1,dive,entitycode"`
	DataTypes   []string `json:"data_types" validate:"required,min=1,dive,datatype"`
	Schedule    string   `json:"schedule,omitempty" validate:"omitempty,schedule" example:"@every 15m"`
	Enabled     *bool    `json:"enabled,omitempty"`
}

// ProcessRequest 立即处理：按优先级，或按代码（可选数据类型过滤）
type ProcessRequest struct {
	Priority  int      `json:"priority,omitempty" validate:"omitempty,min=1,max=5"`
	Codes     []string `json:"codes,omitempty" validate:"omitempty,dive,entitycode"`
	DataTypes []string `json:"data_types,omitempty" validate:"omitempty,dive,datatype"`
}

// NewVersionView 转换数据版本
func NewVersionView(v rag.DataVersion) VersionView {
	view := VersionView{
		VersionID:    v.VersionID,
		Code:         v.EntityCode,
		DataType:     v.DataType,
		ContentHash:  v.ContentHash,
		Status:       string(v.Status),
		ChunkCount:   v.ChunkCount,
		Error:        v.ErrorMessage,
		CreatedAt:    v.CreatedAt,
		ActivatedAt:  v.ActivatedAt,
		DeprecatedAt: v.DeprecatedAt,
	}
	if len(v.Metadata) > 0 {
		var meta map[string]any
		if err := json.Unmarshal(v.Metadata, &meta); err == nil {
			view.Metadata = meta
		}
	}
	return view
}
