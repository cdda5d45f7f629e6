// Package journal is the trade ledger: the durable log of OPEN -> CLOSED
// trade records and the sole origin of the events that feed the risk
// profile store. Opening is gated behind a checklist authorization token;
// closing applies the realized pnl to the risk counters inside the same
// transaction, so a close can never persist without its risk consequence.
package journal

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ksred/tradeguard-api/internal/checklist"
	"github.com/ksred/tradeguard-api/internal/clock"
	"github.com/ksred/tradeguard-api/internal/types"
	"github.com/ksred/tradeguard-api/pkg/response"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrNotFound      = errors.New("trade not found")
	ErrAlreadyClosed = errors.New("trade is already closed")
	ErrInvalidResult = errors.New("result must be WIN, LOSS or BREAKEVEN")
)

// RiskStore is the slice of the risk profile store the ledger drives.
// The Apply variants run inside the ledger's own transaction, under the
// user lock taken through WithUserLock.
type RiskStore interface {
	WithUserLock(userID string, fn func() error) error
	ApplyTradeOpened(tx *gorm.DB, userID string) (*types.RiskProfile, error)
	ApplyTradeClosed(tx *gorm.DB, userID string, pnl decimal.Decimal) (*types.RiskProfile, error)
}

// Authorizer validates and consumes checklist gate tokens
type Authorizer interface {
	Redeem(token, userID, strategyID string) error
}

// Service handles trade lifecycle operations
type Service struct {
	db    *Database
	risk  RiskStore
	gate  Authorizer
	clock clock.Clock
}

// NewService creates a new journal service with the given database
// connection, risk store and checklist gate
func NewService(gormDB *gorm.DB, risk RiskStore, gate Authorizer, clk clock.Clock) *Service {
	return &Service{
		db:    NewDatabase(gormDB),
		risk:  risk,
		gate:  gate,
		clock: clk,
	}
}

// OpenTradeRequest carries a gate-authorized trade entry
type OpenTradeRequest struct {
	StrategyID string `json:"strategy_id" binding:"required"`
	Token      string `json:"authorization_token" binding:"required"`
	Symbol     string `json:"symbol"`
	Side       string `json:"side"`
}

// CloseTradeRequest carries the realized outcome of an open trade
type CloseTradeRequest struct {
	Result string          `json:"result" binding:"required"`
	Pnl    decimal.Decimal `json:"pnl"`
	Notes  string          `json:"notes"`
}

// OpenTrade creates an OPEN trade after consuming the authorization token
// issued by the checklist gate for the same user and strategy. The record
// and the trade-count increment commit in one transaction.
func (s *Service) OpenTrade(userID string, req OpenTradeRequest) (*types.Trade, error) {
	if err := s.gate.Redeem(req.Token, userID, req.StrategyID); err != nil {
		return nil, err
	}

	trade := &types.Trade{
		TradeID:      uuid.New().String(),
		UserID:       userID,
		StrategyID:   req.StrategyID,
		Symbol:       req.Symbol,
		Side:         req.Side,
		Status:       types.TradeStatusOpen,
		FollowedPlan: true,
		CreatedAt:    s.clock.Now(),
	}

	err := s.risk.WithUserLock(userID, func() error {
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

		if err := s.db.CreateTradeTx(tx, trade); err != nil {
			tx.Rollback()
			return err
		}

		if _, err := s.risk.ApplyTradeOpened(tx, userID); err != nil {
			tx.Rollback()
			return err
		}

		return tx.Commit().Error
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("trade_id", trade.TradeID).
		Str("user_id", userID).
		Str("strategy_id", req.StrategyID).
		Msg("trade opened")

	return trade, nil
}

// CloseTrade records a trade's outcome. The raw pnl is normalized against
// the stated result before anything is written, and the status change and
// the loss-budget delta commit in one transaction.
func (s *Service) CloseTrade(userID, tradeID string, req CloseTradeRequest) (*types.Trade, error) {
	result := strings.ToUpper(strings.TrimSpace(req.Result))
	switch result {
	case types.ResultWin, types.ResultLoss, types.ResultBreakeven:
	default:
		return nil, ErrInvalidResult
	}

	pnl := NormalizePnl(result, req.Pnl)

	var trade *types.Trade
	err := s.risk.WithUserLock(userID, func() error {
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

		existing, err := s.db.GetTradeTx(tx, tradeID, userID)
		if err != nil {
			tx.Rollback()
			return err
		}
		if existing == nil {
			tx.Rollback()
			return ErrNotFound
		}
		if existing.Status == types.TradeStatusClosed {
			tx.Rollback()
			return ErrAlreadyClosed
		}

		closedAt := s.clock.Now()
		existing.Status = types.TradeStatusClosed
		existing.Result = result
		existing.Pnl = decimal.NewNullDecimal(pnl)
		existing.Notes = req.Notes
		existing.ClosedAt = &closedAt

		if err := s.db.SaveTradeTx(tx, existing); err != nil {
			tx.Rollback()
			return err
		}

		if _, err := s.risk.ApplyTradeClosed(tx, userID, pnl); err != nil {
			tx.Rollback()
			return err
		}

		if err := tx.Commit().Error; err != nil {
			return err
		}

		trade = existing
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("trade_id", trade.TradeID).
		Str("user_id", userID).
		Str("result", result).
		Str("pnl", pnl.String()).
		Msg("trade closed")

	return trade, nil
}

// GetTrade retrieves one of the user's trades by id
func (s *Service) GetTrade(userID, tradeID string) (*types.Trade, error) {
	trade, err := s.db.GetTrade(tradeID, userID)
	if err != nil {
		return nil, err
	}
	if trade == nil {
		return nil, ErrNotFound
	}
	return trade, nil
}

// ListTrades returns a user's trades, optionally filtered by strategy
func (s *Service) ListTrades(userID, strategyID string) ([]types.Trade, error) {
	return s.db.ListTrades(userID, strategyID)
}

// Stats computes the dashboard performance summary: outcome counts, win
// rate, pnl aggregates and the share of trades that followed the plan.
func (s *Service) Stats(userID string) (*types.TradeStats, error) {
	trades, err := s.db.ListTrades(userID, "")
	if err != nil {
		return nil, err
	}

	stats := &types.TradeStats{
		TotalTrades: int64(len(trades)),
		TotalPnl:    decimal.Zero,
	}

	var disciplined int64
	winSum, lossSum := decimal.Zero, decimal.Zero
	for _, trade := range trades {
		if trade.FollowedPlan {
			disciplined++
		}
		if trade.Status != types.TradeStatusClosed || !trade.Pnl.Valid {
			continue
		}

		stats.TotalPnl = stats.TotalPnl.Add(trade.Pnl.Decimal)
		switch trade.Result {
		case types.ResultWin:
			stats.Wins++
			winSum = winSum.Add(trade.Pnl.Decimal)
		case types.ResultLoss:
			stats.Losses++
			lossSum = lossSum.Add(trade.Pnl.Decimal)
		}
	}

	if stats.TotalTrades > 0 {
		stats.WinRate = roundRate(stats.Wins, stats.TotalTrades)
		stats.DisciplineRate = roundRate(disciplined, stats.TotalTrades)
	}
	if stats.Wins > 0 {
		stats.AvgWin = decimal.NewNullDecimal(winSum.Div(decimal.NewFromInt(stats.Wins)).Round(2))
	}
	if stats.Losses > 0 {
		stats.AvgLoss = decimal.NewNullDecimal(lossSum.Div(decimal.NewFromInt(stats.Losses)).Round(2))
	}

	return stats, nil
}

// NormalizePnl forces the sign of a raw pnl to agree with the stated
// result: wins are non-negative, losses non-positive, breakevens exactly
// zero. Mismatches are corrected, not rejected.
func NormalizePnl(result string, raw decimal.Decimal) decimal.Decimal {
	switch result {
	case types.ResultBreakeven:
		return decimal.Zero
	case types.ResultLoss:
		return raw.Abs().Neg()
	default:
		return raw.Abs()
	}
}

func roundRate(part, total int64) float64 {
	rate := float64(part) / float64(total) * 100
	return float64(int(rate*10+0.5)) / 10
}

// GinHandlers contains HTTP handlers for trade ledger endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for trade endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// OpenTradeHandler handles POST requests to open a trade with a checklist
// authorization token
func (h *GinHandlers) OpenTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")
		if userID == "" {
			response.Unauthorized(c, "Missing user identity")
			return
		}

		var req OpenTradeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		trade, err := h.service.OpenTrade(userID, req)
		if err != nil {
			if errors.Is(err, checklist.ErrInvalidToken) {
				response.PolicyRejected(c, response.ErrCodeInvalidToken, err.Error())
				return
			}
			log.Error().Err(err).Str("user_id", userID).Msg("failed to open trade")
			response.InternalError(c, "Failed to open trade")
			return
		}

		response.Success(c, trade)
	}
}

// CloseTradeHandler handles POST requests to close an open trade
// URL parameter: trade_id
func (h *GinHandlers) CloseTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")
		if userID == "" {
			response.Unauthorized(c, "Missing user identity")
			return
		}

		var req CloseTradeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		trade, err := h.service.CloseTrade(userID, c.Param("trade_id"), req)
		switch {
		case errors.Is(err, ErrNotFound):
			response.NotFound(c, err.Error())
			return
		case errors.Is(err, ErrAlreadyClosed):
			response.ConflictWithCode(c, response.ErrCodeAlreadyClosed, err.Error())
			return
		case errors.Is(err, ErrInvalidResult):
			response.ValidationFailed(c, err.Error())
			return
		case err != nil:
			log.Error().Err(err).Str("user_id", userID).Msg("failed to close trade")
			response.InternalError(c, "Failed to close trade")
			return
		}

		response.Success(c, trade)
	}
}

// GetTradeHandler handles GET requests for a single trade
// URL parameter: trade_id
func (h *GinHandlers) GetTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")
		if userID == "" {
			response.Unauthorized(c, "Missing user identity")
			return
		}

		trade, err := h.service.GetTrade(userID, c.Param("trade_id"))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				response.NotFound(c, err.Error())
				return
			}
			response.InternalError(c, "Failed to load trade")
			return
		}

		response.Success(c, trade)
	}
}

// ListTradesHandler handles GET requests for the user's trades
// Optional query parameter: strategy
func (h *GinHandlers) ListTradesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")
		if userID == "" {
			response.Unauthorized(c, "Missing user identity")
			return
		}

		trades, err := h.service.ListTrades(userID, c.Query("strategy"))
		if err != nil {
			response.InternalError(c, "Failed to list trades")
			return
		}

		response.Success(c, trades)
	}
}

// StatsHandler handles GET requests for the performance summary
func (h *GinHandlers) StatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")
		if userID == "" {
			response.Unauthorized(c, "Missing user identity")
			return
		}

		stats, err := h.service.Stats(userID)
		if err != nil {
			response.InternalError(c, "Failed to compute trade stats")
			return
		}

		response.Success(c, stats)
	}
}
