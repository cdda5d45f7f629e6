package risk

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

// GetProfileTx fetches a profile inside the given transaction, returning
// nil without error when no profile exists yet
func (d *Database) GetProfileTx(tx *gorm.DB, userID string) (*types.RiskProfile, error) {
	var profile types.RiskProfile
	if err := tx.Where("user_id = ?", userID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

// CreateProfileTx inserts a new profile inside the given transaction
func (d *Database) CreateProfileTx(tx *gorm.DB, profile *types.RiskProfile) error {
	return tx.Create(profile).Error
}

// SaveProfileTx persists profile mutations inside the given transaction
func (d *Database) SaveProfileTx(tx *gorm.DB, profile *types.RiskProfile) error {
	return tx.Save(profile).Error
}

// ListUserIDs returns the owners of all known profiles, used by the
// periodic unlock/reset sweep
func (d *Database) ListUserIDs() ([]string, error) {
	var userIDs []string
	if err := d.db.Model(&types.RiskProfile{}).Pluck("user_id", &userIDs).Error; err != nil {
		return nil, err
	}
	return userIDs, nil
}
