package push

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"liveclass-backend/internal/middleware"
	"liveclass-backend/pkg/logger"
	"liveclass-backend/pkg/push"
	"liveclass-backend/pkg/response"
)

// TokenService is the part of push.Service the handler uses
type TokenService interface {
	RegisterToken(ctx context.Context, token *push.Token) error
	UnregisterToken(ctx context.Context, userID, token string) (bool, error)
	UnregisterAllTokens(ctx context.Context, userID string) error
}

// Handler handles push notification HTTP requests
type Handler struct {
	pushService TokenService
}

// NewHandler creates a new push notification handler
func NewHandler(pushService TokenService) *Handler {
	return &Handler{
		pushService: pushService,
	}
}

// RegisterTokenRequest represents request to register a push token
type RegisterTokenRequest struct {
	Token    string         `json:"token" binding:"required"`
	Type     push.TokenType `json:"type" binding:"required,oneof=fcm apns web"`
	DeviceID string         `json:"device_id"`
	Platform string         `json:"platform" binding:"omitempty,oneof=ios android web"`
}

// RegisterToken registers a device for meeting notifications
// POST /v1/push/tokens
func (h *Handler) RegisterToken(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	if userID == "" {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req RegisterTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	token := &push.Token{
		UserID:   userID,
		Token:    req.Token,
		Type:     req.Type,
		DeviceID: req.DeviceID,
		Platform: req.Platform,
	}

	if err := h.pushService.RegisterToken(c.Request.Context(), token); err != nil {
		logger.Error("Failed to register push token",
			zap.String("user_id", userID),
			zap.Error(err))
		response.InternalError(c, "Failed to register token")
		return
	}

	logger.Info("Push token registered",
		zap.String("user_id", userID),
		zap.String("token_type", string(req.Type)),
		zap.String("platform", req.Platform))

	response.Success(c, http.StatusOK, gin.H{
		"message":  "Token registered successfully",
		"token_id": token.ID,
	})
}

// UnregisterTokenRequest represents request to unregister a push token
type UnregisterTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// UnregisterToken stops notifications to one device
// DELETE /v1/push/tokens
func (h *Handler) UnregisterToken(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	if userID == "" {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req UnregisterTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	found, err := h.pushService.UnregisterToken(c.Request.Context(), userID, req.Token)
	if err != nil {
		logger.Error("Failed to unregister push token",
			zap.String("user_id", userID),
			zap.Error(err))
		response.InternalError(c, "Failed to unregister token")
		return
	}
	if !found {
		response.NotFound(c, "Token not found")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Token unregistered successfully"})
}

// UnregisterAllTokens removes every device of the caller
// DELETE /v1/push/tokens/all
func (h *Handler) UnregisterAllTokens(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	if userID == "" {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	if err := h.pushService.UnregisterAllTokens(c.Request.Context(), userID); err != nil {
		logger.Error("Failed to unregister all push tokens",
			zap.String("user_id", userID),
			zap.Error(err))
		response.InternalError(c, "Failed to unregister tokens")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "All tokens unregistered successfully"})
}
