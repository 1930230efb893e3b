package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oof-labs/oof-backend/internal/middleware"
	"github.com/oof-labs/oof-backend/internal/services"
)

type PolicyHandler struct {
	logger *logrus.Logger
	svc    *services.Services
}

func NewPolicyHandler(logger *logrus.Logger, svc *services.Services) *PolicyHandler {
	return &PolicyHandler{logger: logger, svc: svc}
}

// ListPlans returns the public plan reference table.
func (h *PolicyHandler) ListPlans(c *gin.Context) {
	plans, err := h.svc.Policy.ListPlans(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list plans")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": gin.H{
				"code":    "UPSTREAM_UNAVAILABLE",
				"message": "Plan data is temporarily unavailable",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"plans": plans})
}

// GetUsage reports the caller's plan and remaining quota for today.
func (h *PolicyHandler) GetUsage(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Authentication required",
			},
		})
		return
	}

	usage, err := h.svc.Policy.GetUsage(c.Request.Context(), claims.Subject)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", claims.Subject).Error("Failed to read usage")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": gin.H{
				"code":    "UPSTREAM_UNAVAILABLE",
				"message": "Usage data is temporarily unavailable",
			},
		})
		return
	}

	c.JSON(http.StatusOK, usage)
}
