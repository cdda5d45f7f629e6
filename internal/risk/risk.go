// Package risk owns the per-user RiskProfile aggregate: configured limits,
// today's loss and trade-count consumption, and the lock state enforced over
// them. All mutations funnel through one atomic read-modify-write path so
// two near-simultaneous trade events can never lose an update.
package risk

import (
	"errors"
	"sync"
	"time"

	"github.com/ksred/tradeguard-api/internal/clock"
	"github.com/ksred/tradeguard-api/internal/types"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	// ErrLocked rejects limit changes while the account is suspended
	ErrLocked = errors.New("risk limits cannot be changed while the account is locked")
	// ErrInvalidLimit rejects non-positive limit values
	ErrInvalidLimit = errors.New("risk limits must be positive")
)

// Defaults applied when a profile is lazily created for a new user
var (
	DefaultMaxDailyLoss    = decimal.NewFromInt(200)
	DefaultMaxTradesPerDay = 5
)

// DefaultCooldown is how long a lock lasts before auto-unlock is permitted
const DefaultCooldown = 12 * time.Hour

// LimitUpdate carries a partial update to the configurable limits
type LimitUpdate struct {
	MaxDailyLoss    *decimal.Decimal `json:"max_daily_loss"`
	MaxTradesPerDay *int             `json:"max_trades_per_day"`
}

// Service is the risk profile store. It serializes all mutations per user
// with an in-process mutex on top of a database transaction.
type Service struct {
	db       *Database
	clock    clock.Clock
	cooldown time.Duration
	locks    sync.Map // map[userID]*sync.Mutex
}

// NewService creates a new risk service with the given database connection,
// time source and lock cooldown
func NewService(gormDB *gorm.DB, clk clock.Clock, cooldown time.Duration) *Service {
	return &Service{
		db:       NewDatabase(gormDB),
		clock:    clk,
		cooldown: cooldown,
	}
}

// WithUserLock runs fn while holding the user's serialization lock. The
// trade ledger uses it to wrap a trade mutation and its risk consequence in
// a single critical section.
func (s *Service) WithUserLock(userID string, fn func() error) error {
	v, _ := s.locks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()
	return fn()
}

// GetProfile returns the user's profile, creating one with defaults on
// first access. Expired locks and stale daily counters are settled here, so
// a plain read is enough to keep a profile current without any client timer.
func (s *Service) GetProfile(userID string) (*types.RiskProfile, error) {
	return s.mutate(userID, func(p *types.RiskProfile) error {
		s.applyAutoUnlock(p)
		s.applyDailyReset(p)
		return nil
	})
}

// UpdateLimits applies a partial limit update. Limits are immutable while
// the account is locked, and both values must be strictly positive.
func (s *Service) UpdateLimits(userID string, update LimitUpdate) (*types.RiskProfile, error) {
	return s.mutate(userID, func(p *types.RiskProfile) error {
		if p.IsLocked {
			return ErrLocked
		}
		if update.MaxDailyLoss != nil && !update.MaxDailyLoss.IsPositive() {
			return ErrInvalidLimit
		}
		if update.MaxTradesPerDay != nil && *update.MaxTradesPerDay <= 0 {
			return ErrInvalidLimit
		}
		if update.MaxDailyLoss != nil {
			p.MaxDailyLoss = *update.MaxDailyLoss
		}
		if update.MaxTradesPerDay != nil {
			p.MaxTradesPerDay = *update.MaxTradesPerDay
		}
		return nil
	})
}

// RecordTradeOpened increments today's trade count and re-evaluates the
// lock state
func (s *Service) RecordTradeOpened(userID string) (*types.RiskProfile, error) {
	return s.mutate(userID, func(p *types.RiskProfile) error {
		s.applyTradeOpened(p)
		return nil
	})
}

// RecordTradeClosed applies a realized pnl to the consumed loss budget and
// re-evaluates the lock state. A profit reduces the consumed budget, floored
// at zero; a loss (negative pnl) increases it.
func (s *Service) RecordTradeClosed(userID string, pnl decimal.Decimal) (*types.RiskProfile, error) {
	return s.mutate(userID, func(p *types.RiskProfile) error {
		s.applyTradeClosed(p, pnl)
		return nil
	})
}

// TryAutoUnlock clears an expired lock and zeroes the daily counters.
// It is an idempotent no-op when the profile is not locked or the cooldown
// has not elapsed.
func (s *Service) TryAutoUnlock(userID string) (*types.RiskProfile, error) {
	return s.mutate(userID, func(p *types.RiskProfile) error {
		s.applyAutoUnlock(p)
		return nil
	})
}

// DailyReset zeroes the counters of an unlocked profile once per calendar
// day. Locked profiles are skipped: their counters must keep evidencing the
// breach until the cooldown releases them.
func (s *Service) DailyReset(userID string) (*types.RiskProfile, error) {
	return s.mutate(userID, func(p *types.RiskProfile) error {
		s.applyDailyReset(p)
		return nil
	})
}

// IsLocked reports whether the user's profile is currently suspended
func (s *Service) IsLocked(userID string) (bool, error) {
	profile, err := s.GetProfile(userID)
	if err != nil {
		return false, err
	}
	return profile.IsLocked, nil
}

// ListUserIDs exposes the profile owners for the periodic sweep
func (s *Service) ListUserIDs() ([]string, error) {
	return s.db.ListUserIDs()
}

// ApplyTradeOpened is RecordTradeOpened for callers already inside a
// transaction; the trade ledger uses it so an open and its counter increment
// commit together. The caller must hold the user's lock via WithUserLock.
func (s *Service) ApplyTradeOpened(tx *gorm.DB, userID string) (*types.RiskProfile, error) {
	profile, err := s.getOrCreateTx(tx, userID)
	if err != nil {
		return nil, err
	}
	s.applyTradeOpened(profile)
	if err := s.db.SaveProfileTx(tx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// ApplyTradeClosed is RecordTradeClosed for callers already inside a
// transaction, so a close can never persist without its risk consequence.
// The caller must hold the user's lock via WithUserLock.
func (s *Service) ApplyTradeClosed(tx *gorm.DB, userID string, pnl decimal.Decimal) (*types.RiskProfile, error) {
	profile, err := s.getOrCreateTx(tx, userID)
	if err != nil {
		return nil, err
	}
	s.applyTradeClosed(profile, pnl)
	if err := s.db.SaveProfileTx(tx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// mutate runs one atomic read-modify-write on the user's profile: user
// lock, transaction, fetch-or-create, apply, save, commit. A failed apply
// rolls back and surfaces the error; nothing is retried.
func (s *Service) mutate(userID string, apply func(p *types.RiskProfile) error) (*types.RiskProfile, error) {
	var out *types.RiskProfile
	err := s.WithUserLock(userID, func() error {
		tx := s.db.Begin()
		if err := tx.Error; err != nil {
			return err
		}
		defer func() {
			if r := recover(); r != nil {
				tx.Rollback()
				panic(r)
			}
		}()

		profile, err := s.getOrCreateTx(tx, userID)
		if err != nil {
			tx.Rollback()
			return err
		}

		if err := apply(profile); err != nil {
			tx.Rollback()
			return err
		}

		if err := s.db.SaveProfileTx(tx, profile); err != nil {
			tx.Rollback()
			return err
		}

		if err := tx.Commit().Error; err != nil {
			return err
		}

		out = profile
		return nil
	})
	return out, err
}

func (s *Service) getOrCreateTx(tx *gorm.DB, userID string) (*types.RiskProfile, error) {
	profile, err := s.db.GetProfileTx(tx, userID)
	if err != nil {
		return nil, err
	}
	if profile != nil {
		return profile, nil
	}

	profile = &types.RiskProfile{
		UserID:           userID,
		MaxDailyLoss:     DefaultMaxDailyLoss,
		MaxTradesPerDay:  DefaultMaxTradesPerDay,
		CurrentDailyLoss: decimal.Zero,
		LastResetDate:    s.clock.Now(),
	}
	if err := s.db.CreateProfileTx(tx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

func (s *Service) applyTradeOpened(p *types.RiskProfile) {
	p.TradesToday++
	*p = Evaluate(*p, s.clock.Now())
}

func (s *Service) applyTradeClosed(p *types.RiskProfile, pnl decimal.Decimal) {
	consumed := p.CurrentDailyLoss.Sub(pnl)
	if consumed.IsNegative() {
		consumed = decimal.Zero
	}
	p.CurrentDailyLoss = consumed
	*p = Evaluate(*p, s.clock.Now())
}

func (s *Service) applyAutoUnlock(p *types.RiskProfile) {
	if !p.IsLocked || p.LockedAt == nil {
		return
	}
	now := s.clock.Now()
	if now.Sub(*p.LockedAt) < s.cooldown {
		return
	}
	p.IsLocked = false
	p.LockReason = ""
	p.LockedAt = nil
	p.CurrentDailyLoss = decimal.Zero
	p.TradesToday = 0
	p.LastResetDate = now
}

func (s *Service) applyDailyReset(p *types.RiskProfile) {
	if p.IsLocked {
		return
	}
	now := s.clock.Now()
	if sameDay(p.LastResetDate, now) {
		return
	}
	p.CurrentDailyLoss = decimal.Zero
	p.TradesToday = 0
	p.LastResetDate = now
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
