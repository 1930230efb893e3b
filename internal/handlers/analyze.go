package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oof-labs/oof-backend/internal/messaging"
	"github.com/oof-labs/oof-backend/internal/middleware"
	"github.com/oof-labs/oof-backend/internal/services"
	"github.com/oof-labs/oof-backend/pkg/models"
)

// AnalyzeHandler is the quota-consuming entry point: every wallet in a
// request costs one unit of the caller's daily budget.
type AnalyzeHandler struct {
	logger *logrus.Logger
	svc    *services.Services
}

func NewAnalyzeHandler(logger *logrus.Logger, svc *services.Services) *AnalyzeHandler {
	return &AnalyzeHandler{logger: logger, svc: svc}
}

func (h *AnalyzeHandler) Analyze(c *gin.Context) {
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

	var req models.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": err.Error(),
			},
		})
		return
	}

	decision, err := h.svc.Policy.CheckAndConsumeQuota(c.Request.Context(), claims.Subject, len(req.Wallets))
	if err != nil {
		h.logger.WithError(err).WithField("user_id", claims.Subject).Error("Quota check failed")

		// The quota store being down means no analysis runs. Quota fails
		// closed, unlike the rate limiter.
		status := http.StatusInternalServerError
		code := "QUOTA_CHECK_FAILED"
		if errors.Is(err, services.ErrUpstreamUnavailable) {
			status = http.StatusServiceUnavailable
			code = "UPSTREAM_UNAVAILABLE"
		}
		c.JSON(status, gin.H{
			"error": gin.H{
				"code":    code,
				"message": "Unable to verify quota, request denied",
			},
		})
		return
	}

	if !decision.Allowed {
		h.svc.Metrics.QuotaDecisions.WithLabelValues("denied", decision.Plan.Code).Inc()
		h.svc.AuditBus.Emit(c.Request.Context(), messaging.EventQuotaDenied, claims.Subject, c.ClientIP(), map[string]interface{}{
			"requested": len(req.Wallets),
			"used":      decision.Used,
			"quota":     decision.Plan.DailyWallets,
		})

		c.JSON(http.StatusPaymentRequired, gin.H{
			"error": gin.H{
				"code":    "QUOTA_EXCEEDED",
				"message": "Daily analysis quota exceeded for your plan",
			},
			"plan":      decision.Plan,
			"remaining": decision.Remaining,
		})
		return
	}

	h.svc.Metrics.QuotaDecisions.WithLabelValues("allowed", decision.Plan.Code).Inc()
	h.svc.AuditBus.Emit(c.Request.Context(), messaging.EventQuotaConsumed, claims.Subject, c.ClientIP(), map[string]interface{}{
		"wallets": len(req.Wallets),
		"used":    decision.Used,
	})

	c.JSON(http.StatusAccepted, models.AnalyzeResponse{
		JobID:     uuid.New(),
		Wallets:   req.Wallets,
		Plan:      decision.Plan,
		Remaining: decision.Remaining,
		QueuedAt:  time.Now().UTC(),
	})
}
