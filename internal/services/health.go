package services

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/oof-labs/oof-backend/internal/config"
	"github.com/oof-labs/oof-backend/internal/database"
)

type HealthService struct {
	config *config.Config
	logger *logrus.Logger
	db     *database.Database

	healthCheckStatus *prometheus.GaugeVec
}

type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Critical  []string          `json:"critical_failures,omitempty"`
}

func NewHealthService(cfg *config.Config, logger *logrus.Logger, db *database.Database) *HealthService {
	hs := &HealthService{
		config: cfg,
		logger: logger,
		db:     db,
	}

	hs.healthCheckStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "health_check_status",
		Help: "Health check status (1 = healthy, 0 = unhealthy)",
	}, []string{"service"})

	if err := prometheus.Register(hs.healthCheckStatus); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			logger.WithError(err).Warn("Failed to register health_check_status metric")
		}
	}

	return hs
}

// Check pings the backing stores. Postgres is critical: the quota system
// fails closed without it. Redis is not: the rate limiter fails open, so a
// disabled or unreachable counter store only degrades the status.
func (hs *HealthService) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Services:  make(map[string]string),
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := hs.db.PG.Ping(pingCtx); err != nil {
		hs.logger.WithError(err).Error("PostgreSQL health check failed")
		status.Services["postgresql"] = "unhealthy"
		status.Critical = append(status.Critical, "postgresql")
		status.Status = "unhealthy"
		hs.healthCheckStatus.WithLabelValues("postgresql").Set(0)
	} else {
		status.Services["postgresql"] = "healthy"
		hs.healthCheckStatus.WithLabelValues("postgresql").Set(1)
	}

	switch {
	case !hs.db.Redis.Enabled():
		status.Services["redis"] = "disabled"
		hs.healthCheckStatus.WithLabelValues("redis").Set(0)
	case hs.db.Redis.Ping(pingCtx) != nil:
		status.Services["redis"] = "unhealthy"
		if status.Status == "healthy" {
			status.Status = "degraded"
		}
		hs.healthCheckStatus.WithLabelValues("redis").Set(0)
	default:
		status.Services["redis"] = "healthy"
		hs.healthCheckStatus.WithLabelValues("redis").Set(1)
	}

	// Kafka carries audit events only; like Redis it can only degrade the
	// status, never fail it.
	switch {
	case len(hs.config.Kafka.Brokers) == 0:
		status.Services["kafka"] = "disabled"
		hs.healthCheckStatus.WithLabelValues("kafka").Set(0)
	case hs.pingKafka(pingCtx) != nil:
		status.Services["kafka"] = "unhealthy"
		if status.Status == "healthy" {
			status.Status = "degraded"
		}
		hs.healthCheckStatus.WithLabelValues("kafka").Set(0)
	default:
		status.Services["kafka"] = "healthy"
		hs.healthCheckStatus.WithLabelValues("kafka").Set(1)
	}

	return status
}

func (hs *HealthService) pingKafka(ctx context.Context) error {
	conn, err := kafka.DialContext(ctx, "tcp", hs.config.Kafka.Brokers[0])
	if err != nil {
		hs.logger.WithError(err).Error("Kafka health check failed")
		return err
	}
	return conn.Close()
}
