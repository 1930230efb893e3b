package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/oof-labs/oof-backend/internal/config"
	"github.com/oof-labs/oof-backend/internal/services"
)

type Handlers struct {
	Analyze *AnalyzeHandler
	Auth    *AuthHandler
	Policy  *PolicyHandler
	Webhook *WebhookHandler
	Health  *HealthHandler
}

func New(cfg *config.Config, logger *logrus.Logger, svc *services.Services) *Handlers {
	return &Handlers{
		Analyze: NewAnalyzeHandler(logger, svc),
		Auth:    NewAuthHandler(logger, svc),
		Policy:  NewPolicyHandler(logger, svc),
		Webhook: NewWebhookHandler(cfg, logger, svc),
		Health:  NewHealthHandler(logger, svc.Health),
	}
}
