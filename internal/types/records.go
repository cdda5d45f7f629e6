package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Trade status values
const (
	TradeStatusOpen   = "OPEN"
	TradeStatusClosed = "CLOSED"
)

// Trade result values
const (
	ResultWin       = "WIN"
	ResultLoss      = "LOSS"
	ResultBreakeven = "BREAKEVEN"
)

// RiskProfile is the per-user discipline aggregate: configured limits plus
// today's consumption, and the lock state derived from them. One row per user.
type RiskProfile struct {
	gorm.Model       `json:"-"`
	UserID           string          `gorm:"uniqueIndex" json:"user_id"`
	MaxDailyLoss     decimal.Decimal `gorm:"type:decimal(10,2)" json:"max_daily_loss"`
	MaxTradesPerDay  int             `json:"max_trades_per_day"`
	CurrentDailyLoss decimal.Decimal `gorm:"type:decimal(10,2)" json:"current_daily_loss"`
	TradesToday      int             `json:"trades_today"`
	IsLocked         bool            `json:"is_locked"`
	LockReason       string          `json:"lock_reason,omitempty"`
	LockedAt         *time.Time      `json:"locked_at,omitempty"`
	LastResetDate    time.Time       `json:"last_reset_date"`
}

// Trade is a single journal entry. Result and Pnl are set only once the
// trade transitions to CLOSED; FollowedPlan records that entry went through
// the checklist gate.
type Trade struct {
	gorm.Model   `json:"-"`
	TradeID      string              `gorm:"uniqueIndex" json:"trade_id"`
	UserID       string              `gorm:"index" json:"user_id"`
	StrategyID   string              `gorm:"index" json:"strategy_id"`
	Symbol       string              `json:"symbol"`
	Side         string              `json:"side"` // BUY or SELL
	Status       string              `json:"status"` // OPEN, CLOSED
	Result       string              `json:"result,omitempty"` // WIN, LOSS, BREAKEVEN
	Pnl          decimal.NullDecimal `gorm:"type:decimal(10,2)" json:"pnl"`
	Notes        string              `json:"notes,omitempty"`
	FollowedPlan bool                `json:"followed_plan"`
	CreatedAt    time.Time           `json:"created_at"`
	ClosedAt     *time.Time          `json:"closed_at,omitempty"`
}

// Strategy is a named trading plan with the ordered list of rules a trader
// must acknowledge before entering a position with it.
type Strategy struct {
	gorm.Model     `json:"-"`
	StrategyID     string    `gorm:"uniqueIndex" json:"strategy_id"`
	UserID         string    `gorm:"index" json:"user_id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	ChecklistItems []string  `gorm:"serializer:json" json:"checklist_items"`
	CreatedAt      time.Time `json:"created_at"`
}
