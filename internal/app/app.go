package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/oof-labs/oof-backend/internal/config"
	"github.com/oof-labs/oof-backend/internal/database"
	"github.com/oof-labs/oof-backend/internal/handlers"
	"github.com/oof-labs/oof-backend/internal/middleware"
	"github.com/oof-labs/oof-backend/internal/services"
	"github.com/oof-labs/oof-backend/internal/validation"
)

type App struct {
	config       *config.Config
	logger       *logrus.Logger
	db           *database.Database
	services     *services.Services
	handlers     *handlers.Handlers
	validationMW *middleware.ValidationMiddleware
	router       *gin.Engine
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: setupLogger(cfg),
	}

	if err := validation.RegisterBindingValidators(); err != nil {
		return nil, fmt.Errorf("failed to register binding validators: %w", err)
	}

	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	services, err := services.New(cfg, app.logger, db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.services = services

	app.handlers = handlers.New(cfg, app.logger, services)

	schemaValidator, err := validation.NewSchemaValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to compile request schemas: %w", err)
	}
	app.validationMW = middleware.NewValidationMiddleware(schemaValidator)

	app.setupRouter()

	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	if err := a.services.AuditBus.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing audit bus")
	}
	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		return err
	}

	return nil
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(a.config))

	// Health check endpoint (no auth required)
	router.GET("/health", a.handlers.Health.Check)

	// Prometheus metrics endpoint (no auth required)
	if a.config.Monitoring.Enabled {
		router.GET(a.config.Monitoring.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	// Webhooks authenticate by HMAC signature, not bearer token, and run
	// outside the rate limiter.
	webhooks := router.Group("/webhooks")
	{
		webhooks.POST("/helius", a.handlers.Webhook.Helius)
		webhooks.POST("/dynamic", a.handlers.Webhook.Dynamic)
	}

	// Protected API: rate limit by network identity, then authenticate.
	api := router.Group("/api/v1")
	api.Use(middleware.RateLimit(a.services.RateLimit, a.services.Metrics, a.services.AuditBus, a.logger))
	{
		api.GET("/plans", a.handlers.Policy.ListPlans)

		authed := api.Group("")
		authed.Use(middleware.Auth(a.services.Auth, a.services.Metrics, a.services.AuditBus, a.logger))
		{
			authed.POST("/analyze", a.validationMW.ValidateAnalyzeRequest(), a.handlers.Analyze.Analyze)
			authed.GET("/me/usage", a.handlers.Policy.GetUsage)
			authed.POST("/auth/token", a.validationMW.ValidateTokenRequest(), a.handlers.Auth.MintToken)
		}
	}

	a.router = router
}
