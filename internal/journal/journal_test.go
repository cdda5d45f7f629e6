package journal

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ksred/tradeguard-api/internal/checklist"
	"github.com/ksred/tradeguard-api/internal/database"
	"github.com/ksred/tradeguard-api/internal/risk"
	"github.com/ksred/tradeguard-api/internal/types"
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

type stubCatalog map[string][]string

func (c stubCatalog) GetChecklist(userID, strategyID string) ([]string, error) {
	items, ok := c[strategyID]
	if !ok {
		return nil, checklist.ErrStrategyNotFound
	}
	return items, nil
}

func newTestJournal(t *testing.T) (*Service, *risk.Service, *checklist.Manager) {
	t.Helper()

	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	clk := &fakeClock{now: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)}
	riskService := risk.NewService(db, clk, risk.DefaultCooldown)

	catalog := stubCatalog{
		"breakout": {"Trend confirmed", "Stop placed", "Risk sized"},
	}
	gate := checklist.NewManager(catalog, riskService)

	return NewService(db, riskService, gate, clk), riskService, gate
}

// authorize walks the gate for one trade entry and returns the token
func authorize(t *testing.T, gate *checklist.Manager, userID string) string {
	t.Helper()

	session, err := gate.SelectStrategy(userID, "breakout")
	require.NoError(t, err)
	for i := range session.Items {
		_, err = gate.ToggleItem(userID, session.SessionID, i)
		require.NoError(t, err)
	}

	grant, err := gate.AuthorizeOpen(userID, session.SessionID)
	require.NoError(t, err)
	return grant.Token
}

func openTrade(t *testing.T, s *Service, gate *checklist.Manager, userID string) *types.Trade {
	t.Helper()

	trade, err := s.OpenTrade(userID, OpenTradeRequest{
		StrategyID: "breakout",
		Token:      authorize(t, gate, userID),
		Symbol:     "EURUSD",
		Side:       "BUY",
	})
	require.NoError(t, err)
	return trade
}

func TestOpenTradeRejectsInvalidToken(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestJournal(t)

	_, err := s.OpenTrade("trader-1", OpenTradeRequest{
		StrategyID: "breakout",
		Token:      "never-issued",
	})
	assert.ErrorIs(t, err, checklist.ErrInvalidToken)
}

func TestOpenTrade(t *testing.T) {
	t.Parallel()

	s, riskService, gate := newTestJournal(t)

	trade := openTrade(t, s, gate, "trader-1")

	assert.NotEmpty(t, trade.TradeID)
	assert.Equal(t, types.TradeStatusOpen, trade.Status)
	assert.True(t, trade.FollowedPlan)
	assert.Empty(t, trade.Result)
	assert.False(t, trade.Pnl.Valid)
	assert.Nil(t, trade.ClosedAt)

	// Opening increments the day's trade count, not the loss budget
	p, err := riskService.GetProfile("trader-1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.TradesToday)
	assert.Equal(t, "0", p.CurrentDailyLoss.String())
}

func TestOpenTradeTokenSingleUse(t *testing.T) {
	t.Parallel()

	s, _, gate := newTestJournal(t)

	token := authorize(t, gate, "trader-1")

	_, err := s.OpenTrade("trader-1", OpenTradeRequest{StrategyID: "breakout", Token: token})
	require.NoError(t, err)

	_, err = s.OpenTrade("trader-1", OpenTradeRequest{StrategyID: "breakout", Token: token})
	assert.ErrorIs(t, err, checklist.ErrInvalidToken)
}

func TestCloseTradeNormalizesPnl(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		result  string
		raw     int64
		wantPnl string
	}{
		{"loss reported positive", "LOSS", 50, "-50"},
		{"win reported negative", "WIN", -50, "50"},
		{"breakeven forced to zero", "BREAKEVEN", 37, "0"},
		{"lowercase result accepted", "win", 25, "25"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, _, gate := newTestJournal(t)

			trade := openTrade(t, s, gate, "trader-1")
			closed, err := s.CloseTrade("trader-1", trade.TradeID, CloseTradeRequest{
				Result: tt.result,
				Pnl:    decimal.NewFromInt(tt.raw),
			})
			require.NoError(t, err)

			require.True(t, closed.Pnl.Valid)
			assert.Equal(t, tt.wantPnl, closed.Pnl.Decimal.String())
			assert.Equal(t, types.TradeStatusClosed, closed.Status)
			assert.NotNil(t, closed.ClosedAt)
		})
	}
}

func TestCloseTradeAppliesRiskConsequence(t *testing.T) {
	t.Parallel()

	s, riskService, gate := newTestJournal(t)

	trade := openTrade(t, s, gate, "trader-1")

	_, err := s.CloseTrade("trader-1", trade.TradeID, CloseTradeRequest{
		Result: types.ResultLoss,
		Pnl:    decimal.NewFromInt(120),
		Notes:  "late entry",
	})
	require.NoError(t, err)

	p, err := riskService.GetProfile("trader-1")
	require.NoError(t, err)
	assert.Equal(t, "120", p.CurrentDailyLoss.String())
}

func TestCloseTradeFailureModes(t *testing.T) {
	t.Parallel()

	s, _, gate := newTestJournal(t)

	_, err := s.CloseTrade("trader-1", "missing", CloseTradeRequest{Result: types.ResultWin})
	assert.ErrorIs(t, err, ErrNotFound)

	trade := openTrade(t, s, gate, "trader-1")

	_, err = s.CloseTrade("trader-1", trade.TradeID, CloseTradeRequest{Result: "DRAW"})
	assert.ErrorIs(t, err, ErrInvalidResult)

	_, err = s.CloseTrade("trader-1", trade.TradeID, CloseTradeRequest{
		Result: types.ResultWin,
		Pnl:    decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	// A retried close must surface the conflict, never double-count
	_, err = s.CloseTrade("trader-1", trade.TradeID, CloseTradeRequest{
		Result: types.ResultWin,
		Pnl:    decimal.NewFromInt(10),
	})
	assert.ErrorIs(t, err, ErrAlreadyClosed)
}

func TestCloseTradeScopedToOwner(t *testing.T) {
	t.Parallel()

	s, _, gate := newTestJournal(t)

	trade := openTrade(t, s, gate, "trader-1")

	_, err := s.CloseTrade("trader-2", trade.TradeID, CloseTradeRequest{Result: types.ResultWin})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListTradesFilterByStrategy(t *testing.T) {
	t.Parallel()

	s, _, gate := newTestJournal(t)

	openTrade(t, s, gate, "trader-1")
	openTrade(t, s, gate, "trader-1")

	trades, err := s.ListTrades("trader-1", "breakout")
	require.NoError(t, err)
	assert.Len(t, trades, 2)

	trades, err = s.ListTrades("trader-1", "other")
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestStats(t *testing.T) {
	t.Parallel()

	s, _, gate := newTestJournal(t)

	outcomes := []struct {
		result string
		pnl    int64
	}{
		{types.ResultWin, 100},
		{types.ResultWin, 50},
		{types.ResultLoss, -30},
	}
	for _, o := range outcomes {
		trade := openTrade(t, s, gate, "trader-1")
		_, err := s.CloseTrade("trader-1", trade.TradeID, CloseTradeRequest{
			Result: o.result,
			Pnl:    decimal.NewFromInt(o.pnl),
		})
		require.NoError(t, err)
	}
	// One still open
	openTrade(t, s, gate, "trader-1")

	stats, err := s.Stats("trader-1")
	require.NoError(t, err)

	assert.Equal(t, int64(4), stats.TotalTrades)
	assert.Equal(t, int64(2), stats.Wins)
	assert.Equal(t, int64(1), stats.Losses)
	assert.Equal(t, 50.0, stats.WinRate)
	assert.Equal(t, "120", stats.TotalPnl.String())
	require.True(t, stats.AvgWin.Valid)
	assert.Equal(t, "75", stats.AvgWin.Decimal.String())
	require.True(t, stats.AvgLoss.Valid)
	assert.Equal(t, "-30", stats.AvgLoss.Decimal.String())
	assert.Equal(t, 100.0, stats.DisciplineRate)
}
