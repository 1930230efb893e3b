package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oof-labs/oof-backend/internal/messaging"
	"github.com/oof-labs/oof-backend/internal/services"
	"github.com/oof-labs/oof-backend/pkg/models"
)

const claimsContextKey = "claims"

// Auth authenticates the bearer token on every protected route. The response
// is a uniform 401 no matter why validation failed; the reason is logged and
// audited server-side only.
func Auth(authService *services.AuthService, metrics *services.AuthMetrics, auditBus *messaging.AuditBus, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			unauthorized(c, "MISSING_AUTHORIZATION", "Authorization header is required")
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			unauthorized(c, "INVALID_AUTHORIZATION_FORMAT", "Authorization header must be in format 'Bearer <token>'")
			return
		}

		claims, err := authService.ValidateToken(c.Request.Context(), tokenParts[1])
		if err != nil {
			logger.WithError(err).WithField("client_ip", c.ClientIP()).Warn("Bearer token rejected")
			metrics.AuthResults.WithLabelValues("unauthorized").Inc()
			auditBus.Emit(c.Request.Context(), messaging.EventAuthFailure, "", c.ClientIP(), map[string]interface{}{
				"path": c.Request.URL.Path,
			})
			unauthorized(c, "INVALID_TOKEN", "Invalid or expired token")
			return
		}

		metrics.AuthResults.WithLabelValues("success").Inc()
		c.Set(claimsContextKey, claims)
		c.Next()
	}
}

func unauthorized(c *gin.Context, code, message string) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
	c.Abort()
}

// ClaimsFromContext returns the verified claims set by the Auth middleware.
func ClaimsFromContext(c *gin.Context) (*models.Claims, bool) {
	value, exists := c.Get(claimsContextKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*models.Claims)
	return claims, ok
}
