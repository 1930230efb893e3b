package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oof-labs/oof-backend/internal/config"
	"github.com/oof-labs/oof-backend/pkg/models"
)

const testSecret = "test-app-secret"

func signHS256(t *testing.T, claims *models.Claims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func baseClaims(subject string) *models.Claims {
	now := time.Now()
	return &models.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    "oof-backend",
			Audience:  jwt.ClaimStrings{"oof-api"},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func TestTokenValidator_StaticMode(t *testing.T) {
	validator := NewStaticValidator([]byte(testSecret), testLogger())

	t.Run("valid token yields matching subject", func(t *testing.T) {
		token := signHS256(t, baseClaims("user-1"), testSecret)

		claims, err := validator.Validate(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.Subject)
	})

	t.Run("wrong secret is rejected", func(t *testing.T) {
		token := signHS256(t, baseClaims("user-1"), "other-secret")

		_, err := validator.Validate(context.Background(), token)
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		claims := baseClaims("user-1")
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		token := signHS256(t, claims, testSecret)

		_, err := validator.Validate(context.Background(), token)
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("not-yet-valid token is rejected", func(t *testing.T) {
		claims := baseClaims("user-1")
		claims.NotBefore = jwt.NewNumericDate(time.Now().Add(time.Hour))
		token := signHS256(t, claims, testSecret)

		_, err := validator.Validate(context.Background(), token)
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("token without expiry is rejected", func(t *testing.T) {
		claims := baseClaims("user-1")
		claims.ExpiresAt = nil
		token := signHS256(t, claims, testSecret)

		_, err := validator.Validate(context.Background(), token)
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("malformed token is rejected", func(t *testing.T) {
		_, err := validator.Validate(context.Background(), "not.a.token")
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("issuer mismatch is rejected", func(t *testing.T) {
		strict := NewStaticValidator([]byte(testSecret), testLogger()).RequireIssuer("expected-issuer")
		token := signHS256(t, baseClaims("user-1"), testSecret)

		_, err := strict.Validate(context.Background(), token)
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("audience mismatch is rejected", func(t *testing.T) {
		strict := NewStaticValidator([]byte(testSecret), testLogger()).RequireAudience("some-other-api")
		token := signHS256(t, baseClaims("user-1"), testSecret)

		_, err := strict.Validate(context.Background(), token)
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("audience list membership passes", func(t *testing.T) {
		strict := NewStaticValidator([]byte(testSecret), testLogger()).RequireAudience("oof-api")
		claims := baseClaims("user-1")
		claims.Audience = jwt.ClaimStrings{"something-else", "oof-api"}
		token := signHS256(t, claims, testSecret)

		got, err := strict.Validate(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, "user-1", got.Subject)
	})
}

func TestTokenValidator_JWKSMode(t *testing.T) {
	rsaKey := generateRSAKey(t)

	newValidator := func(t *testing.T) *TokenValidator {
		var fetches atomic.Int64
		server := jwksServer(t, &fetches, rsaJWK("key-1", rsaKey))
		client := NewJWKSClient(server.URL, "env-42", 5*time.Second, time.Hour, NewKeyCache(), nil, testLogger())
		return NewJWKSValidator(client, "env-42", testLogger())
	}

	signRS256 := func(t *testing.T, claims *models.Claims, kid string) string {
		t.Helper()
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
		token.Header["kid"] = kid
		signed, err := token.SignedString(rsaKey)
		require.NoError(t, err)
		return signed
	}

	t.Run("valid RSA token with known kid", func(t *testing.T) {
		validator := newValidator(t)
		claims := baseClaims("user-7")
		claims.Audience = jwt.ClaimStrings{"env-42"}
		claims.WalletPublicKey = "7fUAJdStEuGbc3sM84cKRL6wYVBGNUyYmVGUWqKjwcvi"

		got, err := validator.Validate(context.Background(), signRS256(t, claims, "key-1"))
		require.NoError(t, err)
		assert.Equal(t, "user-7", got.Subject)
		assert.Equal(t, claims.WalletPublicKey, got.WalletPublicKey)
	})

	t.Run("audience must match the environment id", func(t *testing.T) {
		validator := newValidator(t)
		claims := baseClaims("user-7")
		claims.Audience = jwt.ClaimStrings{"some-other-env"}

		_, err := validator.Validate(context.Background(), signRS256(t, claims, "key-1"))
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("unknown kid is rejected", func(t *testing.T) {
		validator := newValidator(t)
		claims := baseClaims("user-7")
		claims.Audience = jwt.ClaimStrings{"env-42"}

		_, err := validator.Validate(context.Background(), signRS256(t, claims, "unknown-kid"))
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("missing kid is rejected", func(t *testing.T) {
		validator := newValidator(t)
		claims := baseClaims("user-7")
		claims.Audience = jwt.ClaimStrings{"env-42"}

		token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
		signed, err := token.SignedString(rsaKey)
		require.NoError(t, err)

		_, err = validator.Validate(context.Background(), signed)
		require.ErrorIs(t, err, ErrUnauthorized)
	})
}

func TestAuthService(t *testing.T) {
	cfg := &config.Config{}
	cfg.Auth.AppSecret = testSecret
	cfg.Auth.TokenTTL = time.Hour

	svc, err := NewAuthService(cfg, testLogger(), NewKeyCache(), nil)
	require.NoError(t, err)

	t.Run("minted token round-trips", func(t *testing.T) {
		token, expiresAt, err := svc.GenerateToken("service-user", []string{"admin"})
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

		claims, err := svc.ValidateToken(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, "service-user", claims.Subject)
		assert.True(t, claims.HasRole("admin"))
		assert.Equal(t, "internal", claims.AuthProvider)
	})

	t.Run("environment mismatch is rejected", func(t *testing.T) {
		envCfg := &config.Config{}
		envCfg.Auth.AppSecret = testSecret
		envCfg.Auth.EnvironmentID = "env-42"
		envCfg.Auth.TokenTTL = time.Hour
		envSvc, err := NewAuthService(envCfg, testLogger(), NewKeyCache(), nil)
		require.NoError(t, err)

		claims := baseClaims("user-1")
		claims.EnvironmentID = "env-other"
		token := signHS256(t, claims, testSecret)

		_, err = envSvc.ValidateToken(context.Background(), token)
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("empty app secret refuses to construct", func(t *testing.T) {
		// A zero-value config must not produce a validator that verifies
		// against the empty HMAC key.
		emptyCfg := &config.Config{}
		_, err := NewAuthService(emptyCfg, testLogger(), NewKeyCache(), nil)
		require.Error(t, err)

		// The token an attacker would mint against the empty key.
		forged := signHS256(t, baseClaims("attacker"), "")
		validator := NewStaticValidator([]byte(testSecret), testLogger())
		_, err = validator.Validate(context.Background(), forged)
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("minting without a secret fails", func(t *testing.T) {
		jwksCfg := &config.Config{}
		jwksCfg.Auth.JWKSURL = "https://example.com/environments/{ENVIRONMENT_ID}/keys"
		jwksCfg.Auth.EnvironmentID = "env-42"
		jwksSvc, err := NewAuthService(jwksCfg, testLogger(), NewKeyCache(), nil)
		require.NoError(t, err)

		_, _, err = jwksSvc.GenerateToken("service-user", nil)
		require.Error(t, err)
	})
}
