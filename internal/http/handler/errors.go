package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	domainoauth "github.com/smallbiznis/calendar-bridge/internal/domain/oauth"
)

func respondServiceError(c *gin.Context, err error) {
	logger := zap.L()
	switch {
	case errors.Is(err, domainoauth.ErrInvalidState):
		logger.Warn("oauth invalid state", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_state", "error_description": "Unknown or expired state."})
	case errors.Is(err, domainoauth.ErrInvalidRequest):
		logger.Warn("invalid request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": err.Error()})
	case errors.Is(err, domainoauth.ErrIdentityUnresolvable):
		logger.Warn("identity unresolvable", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_id_token", "error_description": "Could not determine the user from the identity token."})
	case errors.Is(err, domainoauth.ErrGatewayFailure):
		logger.Warn("calendar provider rejected request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "calendar_request_failed", "error_description": "The calendar provider rejected the request."})
	case errors.Is(err, domainoauth.ErrRefreshFailed):
		logger.Warn("token refresh failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh_failed", "error_description": "Token refresh failed. Please log in again."})
	case errors.Is(err, domainoauth.ErrReauthenticationRequired):
		logger.Warn("reauthentication required", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "reauthentication_required", "error_description": "Token expired. Please log in again."})
	case errors.Is(err, domainoauth.ErrAuthenticationFailed):
		logger.Warn("authentication failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication_failed", "error_description": "Authentication failed."})
	case errors.Is(err, domainoauth.ErrNotAuthenticated):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_authenticated", "error_description": "User not authenticated."})
	case errors.Is(err, domainoauth.ErrTokenNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": "No token found for user."})
	default:
		logger.Error("service failure", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Internal server error."})
	}
}
