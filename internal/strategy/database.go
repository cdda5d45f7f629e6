package strategy

import (
	"errors"

	"github.com/ksred/tradeguard-api/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateStrategy(strategy *types.Strategy) error {
	return d.db.Create(strategy).Error
}

func (d *Database) GetStrategy(strategyID, userID string) (*types.Strategy, error) {
	var strategy types.Strategy
	if err := d.db.Where("strategy_id = ? AND user_id = ?", strategyID, userID).First(&strategy).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &strategy, nil
}

func (d *Database) ListStrategies(userID string) ([]types.Strategy, error) {
	var strategies []types.Strategy
	if err := d.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&strategies).Error; err != nil {
		return nil, err
	}
	return strategies, nil
}
