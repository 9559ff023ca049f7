package db

import (
	"encoding/json"
	"fmt"

	"github.com/zulandar/rfqdesk/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Request{},
		&models.Message{},
		&models.Supplier{},
		&models.Client{},
		&models.ClientOrder{},
		&models.Quote{},
		&models.QuoteItem{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// marshalJSON marshals a value to a JSON string. Nil slices become "[]" so
// json columns never hold an empty string.
func marshalJSON(v []string) (string, error) {
	if v == nil {
		return "[]", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
