package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oof-labs/oof-backend/internal/messaging"
	"github.com/oof-labs/oof-backend/internal/services"
)

// RateLimit throttles by network identity ahead of authentication. It keys
// on the client IP so abusive traffic is rejected before any paid work or
// token verification happens.
func RateLimit(rateLimitService *services.RateLimitService, metrics *services.AuthMetrics, auditBus *messaging.AuditBus, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := clientIP(c)

		allowed, info := rateLimitService.Allow(c.Request.Context(), identity)

		c.Header("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime, 10))

		if !allowed {
			logger.WithFields(logrus.Fields{
				"identity": identity,
				"limit":    info.Limit,
			}).Warn("Rate limit exceeded")
			metrics.RateLimitRejections.Inc()
			auditBus.Emit(c.Request.Context(), messaging.EventRateLimited, "", identity, map[string]interface{}{
				"path": c.Request.URL.Path,
			})

			// Retry-After wants delta-seconds; the absolute timestamp stays
			// in X-RateLimit-Reset.
			retryAfter := info.ResetTime - time.Now().UTC().Unix()
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":    "RATE_LIMIT_EXCEEDED",
					"message": "Rate limit exceeded. Please try again later.",
				},
				"rate_limit": info,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// clientIP prefers X-Forwarded-For, then X-Real-IP, then the socket peer.
func clientIP(c *gin.Context) string {
	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		if first, _, found := strings.Cut(forwarded, ","); found {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(forwarded)
	}
	if realIP := c.GetHeader("X-Real-IP"); realIP != "" {
		return realIP
	}
	return c.ClientIP()
}
