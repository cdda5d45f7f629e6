package types

import "github.com/shopspring/decimal"

// TradeStats summarises a user's closed-trade performance for the
// dashboard cards: outcome counts, P&L aggregates and the share of trades
// that went through the checklist gate.
type TradeStats struct {
	TotalTrades    int64               `json:"total_trades"`
	Wins           int64               `json:"wins"`
	Losses         int64               `json:"losses"`
	WinRate        float64             `json:"win_rate"`
	TotalPnl       decimal.Decimal     `json:"total_pnl"`
	AvgWin         decimal.NullDecimal `json:"avg_win"`
	AvgLoss        decimal.NullDecimal `json:"avg_loss"`
	DisciplineRate float64             `json:"discipline_rate"`
}
