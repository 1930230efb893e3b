package services

import (
	"github.com/sirupsen/logrus"

	"github.com/oof-labs/oof-backend/internal/config"
	"github.com/oof-labs/oof-backend/internal/database"
	"github.com/oof-labs/oof-backend/internal/messaging"
)

type Services struct {
	Auth      *AuthService
	Policy    *PolicyService
	RateLimit *RateLimitService
	Health    *HealthService
	Metrics   *AuthMetrics
	AuditBus  *messaging.AuditBus
	KeyCache  *KeyCache
}

func New(cfg *config.Config, logger *logrus.Logger, db *database.Database) (*Services, error) {
	// One key cache per process, shared by every validator built from it.
	keyCache := NewKeyCache()
	metrics := NewAuthMetrics(logger)

	authService, err := NewAuthService(cfg, logger, keyCache, metrics)
	if err != nil {
		return nil, err
	}
	policyService := NewPolicyService(db.PG, logger)
	rateLimitService := NewRateLimitService(cfg, logger, db.Redis)
	healthService := NewHealthService(cfg, logger, db)
	auditBus := messaging.NewAuditBus(cfg, logger)

	return &Services{
		Auth:      authService,
		Policy:    policyService,
		RateLimit: rateLimitService,
		Health:    healthService,
		Metrics:   metrics,
		AuditBus:  auditBus,
		KeyCache:  keyCache,
	}, nil
}
