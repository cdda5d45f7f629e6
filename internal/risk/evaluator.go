package risk

import (
	"time"

	"github.com/ksred/tradeguard-api/internal/types"
)

// Lock reasons recorded on the transition into the locked state.
const (
	ReasonDailyLoss = "Daily Loss Limit Hit"
	ReasonMaxTrades = "Max Trade Volume Hit"
)

// Evaluate computes the lock state from the profile's counters and limits.
// The loss breach is checked before the volume breach, so when a single
// event trips both limits the recorded reason is the loss limit. An already
// locked profile passes through untouched: a later favourable event must
// never clear a lock, and a second breach must not overwrite the original
// reason. Unlocking is the exclusive business of TryAutoUnlock.
func Evaluate(p types.RiskProfile, now time.Time) types.RiskProfile {
	if p.IsLocked {
		return p
	}

	switch {
	case p.CurrentDailyLoss.GreaterThanOrEqual(p.MaxDailyLoss):
		p.IsLocked = true
		p.LockReason = ReasonDailyLoss
		lockedAt := now
		p.LockedAt = &lockedAt
	case p.TradesToday >= p.MaxTradesPerDay:
		p.IsLocked = true
		p.LockReason = ReasonMaxTrades
		lockedAt := now
		p.LockedAt = &lockedAt
	}

	return p
}
