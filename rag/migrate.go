package rag

import (
	"fmt"

	"gorm.io/gorm"
)

const activeIndexSQL = `CREATE UNIQUE INDEX IF NOT EXISTS uk_data_versions_active
	ON data_versions (entity_code, data_type)
	WHERE vectorization_status = 'active' AND deprecated_at IS NULL`

// AutoMigrate 开发/测试环境建表。生产环境使用 stockrag migrate。
// postgres 与 sqlite 额外建立部分唯一索引；mysql 不支持部分索引，依赖行锁保证。
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&DataVersion{}); err != nil {
		return fmt.Errorf("migrate data_versions: %w", err)
	}
	switch db.Dialector.Name() {
	case "postgres", "sqlite":
		if err := db.Exec(activeIndexSQL).Error; err != nil {
			return fmt.Errorf("create active version index: %w", err)
		}
	}
	return nil
}
