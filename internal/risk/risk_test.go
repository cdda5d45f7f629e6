package risk

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ksred/tradeguard-api/internal/database"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestService(t *testing.T) (*Service, *fakeClock) {
	t.Helper()

	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	clk := &fakeClock{now: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)}
	return NewService(db, clk, DefaultCooldown), clk
}

func intPtr(v int) *int { return &v }

func decPtr(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func TestGetProfileLazyCreate(t *testing.T) {
	t.Parallel()

	s, _ := newTestService(t)

	p, err := s.GetProfile("trader-1")
	require.NoError(t, err)

	assert.Equal(t, "trader-1", p.UserID)
	assert.Equal(t, "200", p.MaxDailyLoss.String())
	assert.Equal(t, 5, p.MaxTradesPerDay)
	assert.Equal(t, "0", p.CurrentDailyLoss.String())
	assert.Zero(t, p.TradesToday)
	assert.False(t, p.IsLocked)
}

func TestUpdateLimits(t *testing.T) {
	t.Parallel()

	s, _ := newTestService(t)

	p, err := s.UpdateLimits("trader-1", LimitUpdate{
		MaxDailyLoss:    decPtr(500),
		MaxTradesPerDay: intPtr(10),
	})
	require.NoError(t, err)

	assert.Equal(t, "500", p.MaxDailyLoss.String())
	assert.Equal(t, 10, p.MaxTradesPerDay)
}

func TestUpdateLimitsRejectsNonPositive(t *testing.T) {
	t.Parallel()

	s, _ := newTestService(t)

	_, err := s.UpdateLimits("trader-1", LimitUpdate{MaxDailyLoss: decPtr(0)})
	assert.ErrorIs(t, err, ErrInvalidLimit)

	_, err = s.UpdateLimits("trader-1", LimitUpdate{MaxTradesPerDay: intPtr(-1)})
	assert.ErrorIs(t, err, ErrInvalidLimit)
}

func TestUpdateLimitsRejectedWhileLocked(t *testing.T) {
	t.Parallel()

	s, _ := newTestService(t)

	// Breach the loss limit to lock the account
	_, err := s.RecordTradeClosed("trader-1", decimal.NewFromInt(-200))
	require.NoError(t, err)

	_, err = s.UpdateLimits("trader-1", LimitUpdate{MaxDailyLoss: decPtr(1000)})
	assert.ErrorIs(t, err, ErrLocked)

	// Profile unchanged by the rejected update
	p, err := s.GetProfile("trader-1")
	require.NoError(t, err)
	assert.Equal(t, "200", p.MaxDailyLoss.String())
	assert.True(t, p.IsLocked)
}

func TestDailyLossLock(t *testing.T) {
	t.Parallel()

	s, _ := newTestService(t)

	_, err := s.UpdateLimits("trader-1", LimitUpdate{
		MaxDailyLoss:    decPtr(500),
		MaxTradesPerDay: intPtr(5),
	})
	require.NoError(t, err)

	// Four losing trades of 125 consume the whole budget on the last close
	for i := 0; i < 4; i++ {
		_, err := s.RecordTradeOpened("trader-1")
		require.NoError(t, err)
		p, err := s.RecordTradeClosed("trader-1", decimal.NewFromInt(-125))
		require.NoError(t, err)

		if i < 3 {
			assert.False(t, p.IsLocked, "close %d should not lock", i+1)
		} else {
			assert.True(t, p.IsLocked)
			assert.Equal(t, ReasonDailyLoss, p.LockReason)
			assert.Equal(t, "500", p.CurrentDailyLoss.String())
			assert.NotNil(t, p.LockedAt)
		}
	}
}

func TestMaxTradeVolumeLock(t *testing.T) {
	t.Parallel()

	s, _ := newTestService(t)

	// Five opens with no closes trip the volume limit on the fifth
	for i := 0; i < 5; i++ {
		p, err := s.RecordTradeOpened("trader-1")
		require.NoError(t, err)

		if i < 4 {
			assert.False(t, p.IsLocked, "open %d should not lock", i+1)
		} else {
			assert.True(t, p.IsLocked)
			assert.Equal(t, ReasonMaxTrades, p.LockReason)
			assert.Equal(t, 5, p.TradesToday)
		}
	}
}

func TestNoSilentSelfUnlock(t *testing.T) {
	t.Parallel()

	s, _ := newTestService(t)

	p, err := s.RecordTradeClosed("trader-1", decimal.NewFromInt(-250))
	require.NoError(t, err)
	require.True(t, p.IsLocked)

	// A large win bringing the consumed budget back to zero must not unlock
	p, err = s.RecordTradeClosed("trader-1", decimal.NewFromInt(1000))
	require.NoError(t, err)

	assert.Equal(t, "0", p.CurrentDailyLoss.String())
	assert.True(t, p.IsLocked)
	assert.Equal(t, ReasonDailyLoss, p.LockReason)
}

func TestCooldownUnlock(t *testing.T) {
	t.Parallel()

	s, clk := newTestService(t)

	p, err := s.RecordTradeClosed("trader-1", decimal.NewFromInt(-300))
	require.NoError(t, err)
	require.True(t, p.IsLocked)

	// One second short of the cooldown: no-op
	clk.Advance(DefaultCooldown - time.Second)
	p, err = s.TryAutoUnlock("trader-1")
	require.NoError(t, err)
	assert.True(t, p.IsLocked)

	// At the cooldown boundary: unlock and zero the counters
	clk.Advance(time.Second)
	p, err = s.TryAutoUnlock("trader-1")
	require.NoError(t, err)
	assert.False(t, p.IsLocked)
	assert.Empty(t, p.LockReason)
	assert.Nil(t, p.LockedAt)
	assert.Equal(t, "0", p.CurrentDailyLoss.String())
	assert.Zero(t, p.TradesToday)

	// Idempotent on an unlocked profile
	p, err = s.TryAutoUnlock("trader-1")
	require.NoError(t, err)
	assert.False(t, p.IsLocked)
}

func TestLazyUnlockOnGetProfile(t *testing.T) {
	t.Parallel()

	s, clk := newTestService(t)

	p, err := s.RecordTradeClosed("trader-1", decimal.NewFromInt(-300))
	require.NoError(t, err)
	require.True(t, p.IsLocked)

	clk.Advance(DefaultCooldown)

	// A plain read settles the expired lock
	p, err = s.GetProfile("trader-1")
	require.NoError(t, err)
	assert.False(t, p.IsLocked)
	assert.Zero(t, p.TradesToday)
}

func TestDailyReset(t *testing.T) {
	t.Parallel()

	s, clk := newTestService(t)

	_, err := s.RecordTradeOpened("trader-1")
	require.NoError(t, err)
	p, err := s.RecordTradeClosed("trader-1", decimal.NewFromInt(-50))
	require.NoError(t, err)
	require.False(t, p.IsLocked)

	// Same day: nothing to do
	p, err = s.DailyReset("trader-1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.TradesToday)
	assert.Equal(t, "50", p.CurrentDailyLoss.String())

	// Next day: counters return to zero
	clk.Advance(24 * time.Hour)
	p, err = s.DailyReset("trader-1")
	require.NoError(t, err)
	assert.Zero(t, p.TradesToday)
	assert.Equal(t, "0", p.CurrentDailyLoss.String())
}

func TestDailyResetSkipsLockedProfiles(t *testing.T) {
	t.Parallel()

	s, clk := newTestService(t)

	p, err := s.RecordTradeClosed("trader-1", decimal.NewFromInt(-300))
	require.NoError(t, err)
	require.True(t, p.IsLocked)

	// Day boundary crossed while still locked: the lock and its evidencing
	// counters must survive a reset sweep
	clk.Advance(16 * time.Hour)
	p, err = s.DailyReset("trader-1")
	require.NoError(t, err)
	assert.True(t, p.IsLocked)
	assert.Equal(t, "300", p.CurrentDailyLoss.String())
}

func TestConcurrentClosesLoseNoUpdate(t *testing.T) {
	t.Parallel()

	s, _ := newTestService(t)

	_, err := s.UpdateLimits("trader-1", LimitUpdate{MaxDailyLoss: decPtr(10000)})
	require.NoError(t, err)

	const closes = 20
	var wg sync.WaitGroup
	wg.Add(closes)
	for i := 0; i < closes; i++ {
		go func() {
			defer wg.Done()
			_, err := s.RecordTradeClosed("trader-1", decimal.NewFromInt(-10))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	p, err := s.GetProfile("trader-1")
	require.NoError(t, err)
	assert.Equal(t, "200", p.CurrentDailyLoss.String())
}
