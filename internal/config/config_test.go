package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 60, cfg.Auth.RateLimit.PerMinute)
	assert.Equal(t, time.Minute, cfg.Auth.RateLimit.Window)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, time.Hour, cfg.Auth.JWKSCacheTTL)
	assert.Contains(t, cfg.Auth.JWKSURL, "{ENVIRONMENT_ID}")
	assert.Equal(t, "auth-audit", cfg.Kafka.Topics.Audit)

	// No secrets ship as defaults.
	assert.Empty(t, cfg.Auth.AppSecret)
	assert.Empty(t, cfg.Auth.EnvironmentID)
	assert.Empty(t, cfg.Webhooks.HeliusSecret)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("AUTH_ENVIRONMENT_ID", "env-42")
	t.Setenv("AUTH_ISSUER", "app.dynamicauth.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "env-42", cfg.Auth.EnvironmentID)
	assert.Equal(t, "app.dynamicauth.com", cfg.Auth.Issuer)
}
