package database

import (
	"github.com/ksred/tradeguard-api/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase initializes and returns a new GORM DB connection
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// Auto-migrate schemas
	err = db.AutoMigrate(
		&types.RiskProfile{},
		&types.Trade{},
		&types.Strategy{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}
