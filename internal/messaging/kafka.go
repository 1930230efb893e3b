package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/oof-labs/oof-backend/internal/config"
	"github.com/oof-labs/oof-backend/pkg/models"
)

// Audit event types emitted by the security pipeline.
const (
	EventAuthFailure     = "auth.failure"
	EventQuotaDenied     = "quota.denied"
	EventQuotaConsumed   = "quota.consumed"
	EventRateLimited     = "rate_limit.rejected"
	EventWebhookReceived = "webhook.received"
	EventWebhookRejected = "webhook.rejected"
)

// AuditBus publishes security audit events to Kafka. Publishing is
// best-effort: a broker outage is logged and never fails the request that
// produced the event. With no brokers configured the bus runs disabled.
type AuditBus struct {
	writer *kafka.Writer
	logger *logrus.Logger
}

func NewAuditBus(cfg *config.Config, logger *logrus.Logger) *AuditBus {
	if len(cfg.Kafka.Brokers) == 0 {
		logger.Warn("Kafka brokers not configured, audit bus disabled")
		return &AuditBus{logger: logger}
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topics.Audit,
		Balancer:     &kafka.Hash{}, // Key by user for per-user ordering
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}

	return &AuditBus{writer: writer, logger: logger}
}

// Emit builds and publishes one audit event.
func (b *AuditBus) Emit(ctx context.Context, eventType, userID, clientIP string, detail map[string]interface{}) {
	event := models.AuditEvent{
		ID:        uuid.New(),
		Type:      eventType,
		UserID:    userID,
		ClientIP:  clientIP,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	}
	b.Publish(ctx, event)
}

func (b *AuditBus) Publish(ctx context.Context, event models.AuditEvent) {
	if b.writer == nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		b.logger.WithError(err).Error("Failed to marshal audit event")
		return
	}

	message := kafka.Message{
		Key:   []byte(event.UserID),
		Value: payload,
		Time:  event.Timestamp,
	}
	if err := b.writer.WriteMessages(ctx, message); err != nil {
		b.logger.WithError(err).WithField("event_type", event.Type).
			Warn("Failed to publish audit event")
	}
}

func (b *AuditBus) Close() error {
	if b.writer == nil {
		return nil
	}
	return b.writer.Close()
}
