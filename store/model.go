package store

import (
	"time"

	"gorm.io/datatypes"
)

// MarketRecord 行情数据持久化行，每种数据类型一张表（md_<data_type>）
type MarketRecord struct {
	ID          uint           `gorm:"primaryKey"`
	EntityCode  string         `gorm:"size:16;not null"`
	ParamsKey   string         `gorm:"size:255;not null;default:''"`
	Payload     datatypes.JSON `gorm:"not null"`
	ContentHash string         `gorm:"size:64;not null"`
	FetchedAt   time.Time      `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
