package journal

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

// Begin starts a new transaction on the underlying connection
func (d *Database) Begin() *gorm.DB {
	return d.db.Begin()
}

func (d *Database) CreateTradeTx(tx *gorm.DB, trade *types.Trade) error {
	return tx.Create(trade).Error
}

// GetTradeTx fetches a user's trade inside the given transaction, returning
// nil without error when it does not exist
func (d *Database) GetTradeTx(tx *gorm.DB, tradeID, userID string) (*types.Trade, error) {
	var trade types.Trade
	if err := tx.Where("trade_id = ? AND user_id = ?", tradeID, userID).First(&trade).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trade, nil
}

func (d *Database) SaveTradeTx(tx *gorm.DB, trade *types.Trade) error {
	return tx.Save(trade).Error
}

func (d *Database) GetTrade(tradeID, userID string) (*types.Trade, error) {
	return d.GetTradeTx(d.db, tradeID, userID)
}

// ListTrades returns a user's trades, newest first, optionally filtered by
// strategy
func (d *Database) ListTrades(userID, strategyID string) ([]types.Trade, error) {
	query := d.db.Where("user_id = ?", userID)
	if strategyID != "" {
		query = query.Where("strategy_id = ?", strategyID)
	}

	var trades []types.Trade
	if err := query.Order("created_at DESC").Find(&trades).Error; err != nil {
		return nil, err
	}
	return trades, nil
}
