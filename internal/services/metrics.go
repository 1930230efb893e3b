package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// AuthMetrics aggregates the Prometheus counters for the security pipeline.
type AuthMetrics struct {
	AuthResults          *prometheus.CounterVec
	QuotaDecisions       *prometheus.CounterVec
	RateLimitRejections  prometheus.Counter
	JWKSFetches          *prometheus.CounterVec
	WebhookVerifications *prometheus.CounterVec
}

func NewAuthMetrics(logger *logrus.Logger) *AuthMetrics {
	m := &AuthMetrics{
		AuthResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_token_validations_total",
			Help: "Token validation outcomes",
		}, []string{"result"}),
		QuotaDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "policy_quota_decisions_total",
			Help: "Daily quota decisions by outcome and plan",
		}, []string{"decision", "plan"}),
		RateLimitRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rate_limit_rejections_total",
			Help: "Requests rejected by the per-minute rate limiter",
		}),
		JWKSFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jwks_fetches_total",
			Help: "JWKS endpoint fetches by outcome",
		}, []string{"outcome"}),
		WebhookVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_verifications_total",
			Help: "Webhook HMAC verification outcomes",
		}, []string{"source", "outcome"}),
	}

	collectors := []prometheus.Collector{
		m.AuthResults, m.QuotaDecisions, m.RateLimitRejections,
		m.JWKSFetches, m.WebhookVerifications,
	}
	for _, collector := range collectors {
		if err := prometheus.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				logger.WithError(err).Warn("Failed to register auth metric")
			}
		}
	}

	return m
}
