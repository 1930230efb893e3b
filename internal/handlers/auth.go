package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oof-labs/oof-backend/internal/middleware"
	"github.com/oof-labs/oof-backend/internal/services"
	"github.com/oof-labs/oof-backend/pkg/models"
)

type AuthHandler struct {
	logger *logrus.Logger
	svc    *services.Services
}

func NewAuthHandler(logger *logrus.Logger, svc *services.Services) *AuthHandler {
	return &AuthHandler{logger: logger, svc: svc}
}

type tokenRequest struct {
	Subject string   `json:"subject" binding:"required"`
	Roles   []string `json:"roles"`
}

// MintToken issues an internal service token. Admin only.
func (h *AuthHandler) MintToken(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok || !claims.HasRole("admin") {
		c.JSON(http.StatusForbidden, gin.H{
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "Admin role required",
			},
		})
		return
	}

	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": err.Error(),
			},
		})
		return
	}

	token, expiresAt, err := h.svc.Auth.GenerateToken(req.Subject, req.Roles)
	if err != nil {
		h.logger.WithError(err).Error("Failed to mint internal token")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "TOKEN_GENERATION_FAILED",
				"message": "Failed to generate token",
			},
		})
		return
	}

	c.JSON(http.StatusOK, models.TokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}
