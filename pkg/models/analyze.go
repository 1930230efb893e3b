package models

import (
	"time"

	"github.com/google/uuid"
)

// AnalyzeRequest asks for a wallet analysis run. Each wallet consumes one
// unit of the caller's daily quota.
type AnalyzeRequest struct {
	Wallets      []string `json:"wallets" binding:"required,min=1,max=10,dive,solana_address"`
	BackfillDays int      `json:"backfill_days,omitempty" binding:"omitempty,min=1,max=730"`
}

type AnalyzeResponse struct {
	JobID     uuid.UUID `json:"job_id"`
	Wallets   []string  `json:"wallets"`
	Plan      Plan      `json:"plan"`
	Remaining int       `json:"remaining_today"`
	QueuedAt  time.Time `json:"queued_at"`
}

// AuditEvent is published to the audit topic for every security-relevant
// decision: auth failures, quota denials, rate-limit rejections and webhook
// receipts.
type AuditEvent struct {
	ID        uuid.UUID              `json:"id"`
	Type      string                 `json:"type"`
	UserID    string                 `json:"user_id,omitempty"`
	ClientIP  string                 `json:"client_ip,omitempty"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}
