package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oof-labs/oof-backend/internal/config"
	"github.com/oof-labs/oof-backend/internal/database"
	"github.com/oof-labs/oof-backend/pkg/models"
)

// RateLimitService is the coarse per-identity request gate in front of the
// quota system. It counts requests in fixed UTC-minute windows with a single
// atomic increment-with-expiry against Redis. Unlike quota enforcement this
// layer fails open: if the counter store is down or disabled, requests pass.
type RateLimitService struct {
	config *config.Config
	logger *logrus.Logger
	redis  *database.Redis
}

func NewRateLimitService(cfg *config.Config, logger *logrus.Logger, redis *database.Redis) *RateLimitService {
	return &RateLimitService{
		config: cfg,
		logger: logger,
		redis:  redis,
	}
}

// Allow records one request for the identity (client IP or API key) and
// reports whether it is within the per-minute limit.
func (s *RateLimitService) Allow(ctx context.Context, identity string) (bool, *models.RateLimitInfo) {
	limit := s.config.Auth.RateLimit.PerMinute
	window := s.config.Auth.RateLimit.Window

	now := time.Now().UTC()
	windowID := now.Unix() / int64(window.Seconds())
	key := fmt.Sprintf("rate_limit:%s:%d", identity, windowID)

	count, err := s.redis.IncrWithExpiry(ctx, key, 1, window)
	if err != nil {
		s.logger.WithError(err).WithField("identity", identity).
			Warn("Rate limit store unavailable, failing open")
		return true, &models.RateLimitInfo{
			Limit:     limit,
			Remaining: limit - 1,
			ResetTime: (windowID + 1) * int64(window.Seconds()),
		}
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	info := &models.RateLimitInfo{
		Limit:     limit,
		Remaining: remaining,
		ResetTime: (windowID + 1) * int64(window.Seconds()),
	}
	return count <= int64(limit), info
}
