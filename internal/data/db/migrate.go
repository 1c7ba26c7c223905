package db

import (
	"gorm.io/gorm"

	"github.com/shelfsense/gpcsearch/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.GPCNode{},
		&domain.GPCNodeVector{},
	)
}
