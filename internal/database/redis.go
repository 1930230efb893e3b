package database

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oof-labs/oof-backend/internal/config"
)

// incrWithExpiry sets the key with a TTL on first use and increments it on
// every later call within the window, as one server-side operation. The
// single round trip is what makes concurrent first-requests safe: no
// increment is ever lost between a GET and a SET.
var incrWithExpiry = redis.NewScript(`
local key = KEYS[1]
local delta = tonumber(ARGV[1])
local expiry = tonumber(ARGV[2])

local current = redis.call('GET', key)
if current == false then
    redis.call('SET', key, delta, 'EX', expiry)
    return delta
else
    return redis.call('INCRBY', key, delta)
end
`)

// Redis wraps the shared counter store. When no URL is configured, or the
// initial ping fails, the wrapper runs disabled: every operation becomes a
// no-op with a sensible zero result. Callers that need strict enforcement
// must not rely on this store.
type Redis struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedis(cfg *config.Config, logger *logrus.Logger) *Redis {
	if cfg.Redis.URL == "" {
		logger.Warn("Redis URL not configured, counter store disabled")
		return &Redis{logger: logger}
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		PoolSize:     cfg.Redis.PoolSize,
		ReadTimeout:  cfg.Redis.Timeout,
		WriteTimeout: cfg.Redis.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Warn("Redis unreachable, counter store disabled")
		_ = client.Close()
		return &Redis{logger: logger}
	}

	logger.Info("Redis connection established")
	return &Redis{client: client, logger: logger}
}

// NewRedisWithClient wires an existing client, used by tests.
func NewRedisWithClient(client *redis.Client, logger *logrus.Logger) *Redis {
	return &Redis{client: client, logger: logger}
}

func (r *Redis) Enabled() bool {
	return r.client != nil
}

// IncrWithExpiry atomically increments key by delta, starting a fresh
// window with the given TTL if the key is absent. Returns the counter value
// after the increment. Disabled mode reports delta, as if this were the
// first request of the window.
func (r *Redis) IncrWithExpiry(ctx context.Context, key string, delta int64, expiry time.Duration) (int64, error) {
	if r.client == nil {
		return delta, nil
	}
	return incrWithExpiry.Run(ctx, r.client, []string{key}, delta, int64(expiry.Seconds())).Int64()
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	if r.client == nil {
		return "", redis.Nil
	}
	return r.client.Get(ctx, key).Result()
}

func (r *Redis) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *Redis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}
	return r.client.Expire(ctx, key, ttl).Err()
}

func (r *Redis) Publish(ctx context.Context, channel, message string) error {
	if r.client == nil {
		return nil
	}
	return r.client.Publish(ctx, channel, message).Err()
}

func (r *Redis) Ping(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
