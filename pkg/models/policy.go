package models

import "time"

// Plan is read-mostly reference data describing what a subscription tier is
// allowed to do per UTC day.
type Plan struct {
	Code         string `json:"code"`
	PriceUSD     string `json:"price_usd"`
	DailyWallets int    `json:"daily_wallets"`
	BackfillDays int    `json:"backfill_days"`
	Cadence      string `json:"cadence"`
	Alerts       int    `json:"alerts"`
	APIRows      int64  `json:"api_rows"`
}

// PlanSource records which tier of the resolution chain produced a Plan, so
// a missing reference row shows up in logs instead of being silently papered
// over by the hardcoded default.
type PlanSource string

const (
	PlanSourceUserPlan PlanSource = "user_plan"
	PlanSourceFreeRow  PlanSource = "free_row"
	PlanSourceDefault  PlanSource = "default"
)

// DefaultFreePlan is the last-resort fallback when neither a user plan nor a
// FREE reference row exists. Quota enforcement never goes unbounded.
func DefaultFreePlan() Plan {
	return Plan{
		Code:         "FREE",
		PriceUSD:     "0.00",
		DailyWallets: 2,
		BackfillDays: 180,
		Cadence:      "manual",
	}
}

// QuotaDecision is the Policy Service verdict for one consuming request.
type QuotaDecision struct {
	Allowed    bool       `json:"allowed"`
	Plan       Plan       `json:"plan"`
	PlanSource PlanSource `json:"plan_source"`
	Used       int        `json:"used"`
	Remaining  int        `json:"remaining"`
}

// PolicyState mirrors one policy_state row: the per-user daily counter and
// the time it was last reset.
type PolicyState struct {
	UserID        string    `json:"user_id"`
	AnalysesToday int       `json:"analyses_today"`
	LastResetAt   time.Time `json:"last_reset_at"`
}

type UsageResponse struct {
	Plan       Plan       `json:"plan"`
	PlanSource PlanSource `json:"plan_source"`
	Used       int        `json:"used_today"`
	Remaining  int        `json:"remaining_today"`
	ResetsAt   time.Time  `json:"resets_at"`
}

type RateLimitInfo struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	ResetTime int64 `json:"reset_time"`
}
