package rag

import (
	"time"

	"gorm.io/datatypes"
)

// Status 向量化状态
type Status string

const (
	StatusPending    Status = "pending"
	StatusVectorized Status = "vectorized"
	StatusActive     Status = "active"
	StatusFailed     Status = "failed"
	StatusDeprecated Status = "deprecated"
)

// Valid 是否为已知状态
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusVectorized, StatusActive, StatusFailed, StatusDeprecated:
		return true
	}
	return false
}

// DataVersion 某个 (entity, data_type) 的内容寻址快照
type DataVersion struct {
	VersionID    string         `gorm:"column:version_id;primaryKey;size:36" json:"version_id"`
	EntityCode   string         `gorm:"size:16;not null;index:idx_data_versions_entity_type_hash,priority:1" json:"entity_code"`
	DataType     string         `gorm:"size:32;not null;index:idx_data_versions_entity_type_hash,priority:2" json:"data_type"`
	ContentHash  string         `gorm:"size:64;not null;index:idx_data_versions_entity_type_hash,priority:3" json:"content_hash"`
	Status       Status         `gorm:"column:vectorization_status;size:16;not null;default:pending;index:idx_data_versions_status,priority:1" json:"vectorization_status"`
	ChunkCount   int            `gorm:"not null;default:0" json:"chunk_count"`
	Metadata     datatypes.JSON `json:"metadata,omitempty"`
	SourceData   datatypes.JSON `gorm:"not null" json:"source_data"`
	ErrorMessage string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	ActivatedAt  *time.Time     `json:"activated_at,omitempty"`
	DeprecatedAt *time.Time     `gorm:"index:idx_data_versions_status,priority:2" json:"deprecated_at,omitempty"`
}

// TableName 表名
func (DataVersion) TableName() string { return "data_versions" }

// IsActive 当前有效版本
func (v *DataVersion) IsActive() bool {
	return v != nil && v.Status == StatusActive && v.DeprecatedAt == nil
}

// VersionRef CreateVersion 的返回值
type VersionRef struct {
	ID      string `json:"version_id"`
	Created bool   `json:"created"`
	Status  Status `json:"status"`
}
