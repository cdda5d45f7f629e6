package risk

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ksred/tradeguard-api/pkg/response"
	"github.com/rs/zerolog/log"
)

// GinHandlers contains HTTP handlers for risk profile endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for risk profile endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// GetProfileHandler handles GET requests for the caller's risk profile.
// The profile is created with defaults on first access, and expired locks
// are settled as part of the read.
func (h *GinHandlers) GetProfileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")
		if userID == "" {
			response.Unauthorized(c, "Missing user identity")
			return
		}

		profile, err := h.service.GetProfile(userID)
		if err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("failed to load risk profile")
			response.InternalError(c, "Failed to load risk profile")
			return
		}

		response.Success(c, profile)
	}
}

// UpdateLimitsHandler handles PATCH requests to change the configured
// limits. Rejected while the account is locked.
func (h *GinHandlers) UpdateLimitsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")
		if userID == "" {
			response.Unauthorized(c, "Missing user identity")
			return
		}

		var update LimitUpdate
		if err := c.ShouldBindJSON(&update); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		profile, err := h.service.UpdateLimits(userID, update)
		switch {
		case errors.Is(err, ErrLocked):
			response.PolicyRejected(c, response.ErrCodeLocked, err.Error())
			return
		case errors.Is(err, ErrInvalidLimit):
			response.ErrorResponse(c, http.StatusBadRequest, response.ErrCodeInvalidLimit, err.Error())
			return
		case err != nil:
			log.Error().Err(err).Str("user_id", userID).Msg("failed to update risk limits")
			response.InternalError(c, "Failed to update risk limits")
			return
		}

		response.Success(c, profile)
	}
}
