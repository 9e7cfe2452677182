package models

import (
	"fmt"

	"gorm.io/gorm"
)

// Migrate creates or updates every table, including one drug table per category.
func Migrate(db *gorm.DB) error {
	for _, cat := range Categories {
		if err := db.Table(cat.Table()).AutoMigrate(&Drug{}); err != nil {
			return fmt.Errorf("migrate %s: %w", cat.Table(), err)
		}
	}
	if err := db.AutoMigrate(
		&Permission{},
		&Group{},
		&User{},
		&Profile{},
		&RefreshToken{},
		&Form{},
		&FormItem{},
		&CartItem{},
	); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
