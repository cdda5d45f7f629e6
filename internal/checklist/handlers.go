package checklist

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ksred/tradeguard-api/pkg/response"
)

// GinHandlers contains HTTP handlers for checklist gate endpoints
type GinHandlers struct {
	manager *Manager
}

// NewGinHandlers creates a new set of HTTP handlers for checklist endpoints
func NewGinHandlers(manager *Manager) *GinHandlers {
	return &GinHandlers{
		manager: manager,
	}
}

type selectStrategyRequest struct {
	StrategyID string `json:"strategy_id" binding:"required"`
}

// SelectStrategyHandler handles POST requests to start a checklist session
func (h *GinHandlers) SelectStrategyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")
		if userID == "" {
			response.Unauthorized(c, "Missing user identity")
			return
		}

		var req selectStrategyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		session, err := h.manager.SelectStrategy(userID, req.StrategyID)
		if err != nil {
			if errors.Is(err, ErrStrategyNotFound) {
				response.NotFound(c, err.Error())
				return
			}
			response.InternalError(c, "Failed to start checklist session")
			return
		}

		response.Success(c, session)
	}
}

// ToggleItemHandler handles POST requests to flip a checklist item
// URL parameters: session_id, index
func (h *GinHandlers) ToggleItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")
		if userID == "" {
			response.Unauthorized(c, "Missing user identity")
			return
		}

		sessionID := c.Param("session_id")
		index, err := strconv.Atoi(c.Param("index"))
		if err != nil {
			response.BadRequest(c, "Item index must be an integer")
			return
		}

		session, err := h.manager.ToggleItem(userID, sessionID, index)
		switch {
		case errors.Is(err, ErrSessionNotFound):
			response.NotFound(c, err.Error())
			return
		case errors.Is(err, ErrIndexOutOfRange):
			response.ErrorResponse(c, http.StatusBadRequest, response.ErrCodeIndexOutOfRange, err.Error())
			return
		case err != nil:
			response.InternalError(c, "Failed to toggle checklist item")
			return
		}

		response.Success(c, session)
	}
}

// AuthorizeOpenHandler handles POST requests to exchange a completed
// checklist for a single-use trade-entry token
func (h *GinHandlers) AuthorizeOpenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")
		if userID == "" {
			response.Unauthorized(c, "Missing user identity")
			return
		}

		grant, err := h.manager.AuthorizeOpen(userID, c.Param("session_id"))
		switch {
		case errors.Is(err, ErrSessionNotFound):
			response.NotFound(c, err.Error())
			return
		case errors.Is(err, ErrRiskLocked):
			response.PolicyRejected(c, response.ErrCodeRiskLocked, err.Error())
			return
		case errors.Is(err, ErrChecklistIncomplete):
			response.PolicyRejected(c, response.ErrCodeChecklistIncomplete, err.Error())
			return
		case err != nil:
			response.InternalError(c, "Failed to authorize trade entry")
			return
		}

		response.Success(c, grant)
	}
}
