package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oof-labs/oof-backend/internal/config"
	"github.com/oof-labs/oof-backend/internal/messaging"
	"github.com/oof-labs/oof-backend/internal/services"
)

// WebhookHandler authenticates inbound signed webhooks. Signature
// verification runs over the exact bytes received, before any JSON parsing.
type WebhookHandler struct {
	config *config.Config
	logger *logrus.Logger
	svc    *services.Services
}

func NewWebhookHandler(cfg *config.Config, logger *logrus.Logger, svc *services.Services) *WebhookHandler {
	return &WebhookHandler{config: cfg, logger: logger, svc: svc}
}

func (h *WebhookHandler) Helius(c *gin.Context) {
	h.handle(c, "helius", h.config.Webhooks.HeliusSecret)
}

func (h *WebhookHandler) Dynamic(c *gin.Context) {
	h.handle(c, "dynamic", h.config.Webhooks.DynamicSecret)
}

func (h *WebhookHandler) handle(c *gin.Context, source, secret string) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "BODY_READ_ERROR",
				"message": "Failed to read request body",
			},
		})
		return
	}

	signature := services.WebhookSignatureFromHeaders(c.Request.Header)
	if !services.VerifyWebhookSignature(secret, body, signature) {
		h.logger.WithFields(logrus.Fields{
			"source":    source,
			"client_ip": c.ClientIP(),
		}).Warn("Webhook signature rejected")
		h.svc.Metrics.WebhookVerifications.WithLabelValues(source, "rejected").Inc()
		h.svc.AuditBus.Emit(c.Request.Context(), messaging.EventWebhookRejected, "", c.ClientIP(), map[string]interface{}{
			"source": source,
		})

		c.JSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{
				"code":    "INVALID_SIGNATURE",
				"message": "Webhook signature verification failed",
			},
		})
		return
	}

	h.svc.Metrics.WebhookVerifications.WithLabelValues(source, "verified").Inc()
	h.svc.AuditBus.Emit(c.Request.Context(), messaging.EventWebhookReceived, "", c.ClientIP(), map[string]interface{}{
		"source": source,
		"bytes":  len(body),
	})

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
