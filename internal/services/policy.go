package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/oof-labs/oof-backend/pkg/models"
)

// PolicyStore is the slice of pgxpool.Pool the policy service needs.
type PolicyStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// PolicyService resolves subscription plans and enforces the per-user daily
// analysis quota. Quota consumption is a single transaction with a row lock
// on policy_state, so concurrent requests from one user serialize and can
// never over-consume. Any database failure denies the request: quota is a
// billing control and fails closed.
type PolicyService struct {
	db     PolicyStore
	logger *logrus.Logger
}

func NewPolicyService(db PolicyStore, logger *logrus.Logger) *PolicyService {
	return &PolicyService{db: db, logger: logger}
}

const (
	userPlanQuery = `SELECT p.code, p.price_usd_dec, p.daily_wallets, p.backfill_days, p.cadence, p.alerts, p.api_rows
		FROM user_plans up JOIN plans p ON p.code = up.plan_code
		WHERE up.user_id = $1 AND (up.expires_at IS NULL OR up.expires_at > NOW())
		ORDER BY up.started_at DESC LIMIT 1`

	freePlanQuery = `SELECT code, price_usd_dec, daily_wallets, backfill_days, cadence, alerts, api_rows
		FROM plans WHERE code = 'FREE'`

	policyStateEnsure = `INSERT INTO policy_state (user_id, analyses_today, last_reset_at)
		VALUES ($1, 0, NOW())
		ON CONFLICT (user_id) DO NOTHING`

	policyStateQuery = `SELECT analyses_today, last_reset_at FROM policy_state WHERE user_id = $1 FOR UPDATE`

	policyStateUpsert = `INSERT INTO policy_state (user_id, analyses_today, last_reset_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET analyses_today = $2, last_reset_at = NOW()`

	policyStateUpdateCount = `INSERT INTO policy_state (user_id, analyses_today, last_reset_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET analyses_today = $2`
)

// ResolvePlan walks the explicit fallback chain: active user plan, then the
// FREE reference row, then hardcoded FREE defaults. The returned PlanSource
// says which tier answered, so a missing reference row is observable.
func (s *PolicyService) ResolvePlan(ctx context.Context, userID string) (models.Plan, models.PlanSource, error) {
	var plan models.Plan

	err := s.db.QueryRow(ctx, userPlanQuery, userID).Scan(
		&plan.Code, &plan.PriceUSD, &plan.DailyWallets,
		&plan.BackfillDays, &plan.Cadence, &plan.Alerts, &plan.APIRows,
	)
	if err == nil {
		return plan, models.PlanSourceUserPlan, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Plan{}, "", fmt.Errorf("failed to look up user plan: %w", err)
	}

	err = s.db.QueryRow(ctx, freePlanQuery).Scan(
		&plan.Code, &plan.PriceUSD, &plan.DailyWallets,
		&plan.BackfillDays, &plan.Cadence, &plan.Alerts, &plan.APIRows,
	)
	if err == nil {
		return plan, models.PlanSourceFreeRow, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Plan{}, "", fmt.Errorf("failed to look up FREE plan: %w", err)
	}

	s.logger.WithField("user_id", userID).Warn("No FREE plan row, using hardcoded defaults")
	return models.DefaultFreePlan(), models.PlanSourceDefault, nil
}

// CheckAndConsumeQuota atomically consumes `wallets` units of the user's
// daily quota. The read-reset-compare-write sequence runs inside one
// transaction with the policy_state row locked, so two racing requests
// cannot both observe the same remaining budget. An over-quota request
// rolls back and the counter does not advance; counters are monotonic
// within a day and reset only on UTC date rollover.
func (s *PolicyService) CheckAndConsumeQuota(ctx context.Context, userID string, wallets int) (models.QuotaDecision, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return models.QuotaDecision{}, fmt.Errorf("%w: failed to begin quota transaction: %v", ErrUpstreamUnavailable, err)
	}
	defer tx.Rollback(ctx)

	// FOR UPDATE on an absent row locks nothing, so two concurrent first
	// requests would both read "no row" and race. Create the row first; the
	// insert serializes against a concurrent uncommitted insert.
	if _, err := tx.Exec(ctx, policyStateEnsure, userID); err != nil {
		return models.QuotaDecision{}, fmt.Errorf("failed to ensure policy state: %w", err)
	}

	var analysesToday int
	var lastResetAt time.Time
	err = tx.QueryRow(ctx, policyStateQuery, userID).Scan(&analysesToday, &lastResetAt)
	if err != nil {
		return models.QuotaDecision{}, fmt.Errorf("failed to read policy state: %w", err)
	}

	// First request of a new UTC day resets the counter before consuming.
	today := time.Now().UTC().Truncate(24 * time.Hour)
	if lastResetAt.UTC().Truncate(24*time.Hour) != today {
		analysesToday = 0
		if _, err := tx.Exec(ctx, policyStateUpsert, userID, analysesToday); err != nil {
			return models.QuotaDecision{}, fmt.Errorf("failed to reset policy state: %w", err)
		}
	}

	plan, source, err := s.ResolvePlan(ctx, userID)
	if err != nil {
		return models.QuotaDecision{}, err
	}

	if analysesToday+wallets > plan.DailyWallets {
		s.logger.WithFields(logrus.Fields{
			"user_id":   userID,
			"used":      analysesToday,
			"requested": wallets,
			"quota":     plan.DailyWallets,
			"plan":      plan.Code,
		}).Info("Daily quota exceeded")

		return models.QuotaDecision{
			Allowed:    false,
			Plan:       plan,
			PlanSource: source,
			Used:       analysesToday,
			Remaining:  remaining(plan.DailyWallets, analysesToday),
		}, nil
	}

	analysesToday += wallets
	if _, err := tx.Exec(ctx, policyStateUpdateCount, userID, analysesToday); err != nil {
		return models.QuotaDecision{}, fmt.Errorf("failed to update policy state: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return models.QuotaDecision{}, fmt.Errorf("%w: failed to commit quota transaction: %v", ErrUpstreamUnavailable, err)
	}

	return models.QuotaDecision{
		Allowed:    true,
		Plan:       plan,
		PlanSource: source,
		Used:       analysesToday,
		Remaining:  remaining(plan.DailyWallets, analysesToday),
	}, nil
}

// GetUsage reports the current day's consumption without consuming quota.
func (s *PolicyService) GetUsage(ctx context.Context, userID string) (models.UsageResponse, error) {
	plan, source, err := s.ResolvePlan(ctx, userID)
	if err != nil {
		return models.UsageResponse{}, err
	}

	var analysesToday int
	var lastResetAt time.Time
	err = s.db.QueryRow(ctx, `SELECT analyses_today, last_reset_at FROM policy_state WHERE user_id = $1`, userID).
		Scan(&analysesToday, &lastResetAt)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return models.UsageResponse{}, fmt.Errorf("failed to read policy state: %w", err)
	}

	now := time.Now().UTC()
	today := now.Truncate(24 * time.Hour)
	if lastResetAt.UTC().Truncate(24*time.Hour) != today {
		analysesToday = 0
	}

	return models.UsageResponse{
		Plan:       plan,
		PlanSource: source,
		Used:       analysesToday,
		Remaining:  remaining(plan.DailyWallets, analysesToday),
		ResetsAt:   today.Add(24 * time.Hour),
	}, nil
}

// ListPlans returns the plan reference table.
func (s *PolicyService) ListPlans(ctx context.Context) ([]models.Plan, error) {
	rows, err := s.db.Query(ctx, `SELECT code, price_usd_dec, daily_wallets, backfill_days, cadence, alerts, api_rows FROM plans ORDER BY daily_wallets`)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var plans []models.Plan
	for rows.Next() {
		var plan models.Plan
		if err := rows.Scan(&plan.Code, &plan.PriceUSD, &plan.DailyWallets,
			&plan.BackfillDays, &plan.Cadence, &plan.Alerts, &plan.APIRows); err != nil {
			return nil, fmt.Errorf("failed to scan plan row: %w", err)
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

func remaining(quota, used int) int {
	if used >= quota {
		return 0
	}
	return quota - used
}
