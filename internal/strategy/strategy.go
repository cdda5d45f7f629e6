// Package strategy is the catalog of named trading plans. Each strategy
// carries the ordered checklist of rules the gate requires a trader to
// acknowledge before opening a position with it.
package strategy

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ksred/tradeguard-api/internal/types"
	"github.com/ksred/tradeguard-api/pkg/response"
	"gorm.io/gorm"
)

var (
	ErrNotFound       = errors.New("strategy not found")
	ErrEmptyChecklist = errors.New("strategy requires at least one checklist item")
	ErrMissingName    = errors.New("strategy name is required")
)

// Service handles strategy catalog operations
type Service struct {
	db *Database
}

// NewService creates a new strategy service with the given database connection
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// CreateStrategy validates and stores a new strategy. Checklist items
// arrive already written; blank entries are dropped, and a strategy with no
// usable items is rejected since the gate could never unlock it.
func (s *Service) CreateStrategy(userID string, strategy *types.Strategy) error {
	if strings.TrimSpace(strategy.Name) == "" {
		return ErrMissingName
	}

	items := make([]string, 0, len(strategy.ChecklistItems))
	for _, item := range strategy.ChecklistItems {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return ErrEmptyChecklist
	}

	strategy.StrategyID = uuid.New().String()
	strategy.UserID = userID
	strategy.ChecklistItems = items
	strategy.CreatedAt = time.Now()

	return s.db.CreateStrategy(strategy)
}

// GetStrategy retrieves one of the user's strategies by id
func (s *Service) GetStrategy(userID, strategyID string) (*types.Strategy, error) {
	strategy, err := s.db.GetStrategy(strategyID, userID)
	if err != nil {
		return nil, err
	}
	if strategy == nil {
		return nil, ErrNotFound
	}
	return strategy, nil
}

// ListStrategies returns all of the user's strategies, newest first
func (s *Service) ListStrategies(userID string) ([]types.Strategy, error) {
	return s.db.ListStrategies(userID)
}

// GetChecklist returns the ordered rule list for a strategy. This is the
// read-only catalog interface the checklist gate consumes.
func (s *Service) GetChecklist(userID, strategyID string) ([]string, error) {
	strategy, err := s.GetStrategy(userID, strategyID)
	if err != nil {
		return nil, err
	}
	return strategy.ChecklistItems, nil
}

// GinHandlers contains HTTP handlers for strategy endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for strategy endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// CreateStrategyHandler handles POST requests to create a strategy
func (h *GinHandlers) CreateStrategyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")
		if userID == "" {
			response.Unauthorized(c, "Missing user identity")
			return
		}

		var strategy types.Strategy
		if err := c.ShouldBindJSON(&strategy); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if err := h.service.CreateStrategy(userID, &strategy); err != nil {
			switch {
			case errors.Is(err, ErrMissingName), errors.Is(err, ErrEmptyChecklist):
				response.ValidationFailed(c, err.Error())
			default:
				response.InternalError(c, "Failed to create strategy")
			}
			return
		}

		response.Success(c, strategy)
	}
}

// ListStrategiesHandler handles GET requests for the user's strategies
func (h *GinHandlers) ListStrategiesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")
		if userID == "" {
			response.Unauthorized(c, "Missing user identity")
			return
		}

		strategies, err := h.service.ListStrategies(userID)
		if err != nil {
			response.InternalError(c, "Failed to list strategies")
			return
		}

		response.Success(c, strategies)
	}
}

// GetStrategyHandler handles GET requests for a single strategy
func (h *GinHandlers) GetStrategyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")
		if userID == "" {
			response.Unauthorized(c, "Missing user identity")
			return
		}

		strategyID := c.Param("strategy_id")
		strategy, err := h.service.GetStrategy(userID, strategyID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				response.NotFound(c, "Strategy not found")
				return
			}
			response.InternalError(c, "Failed to load strategy")
			return
		}

		response.Success(c, strategy)
	}
}
