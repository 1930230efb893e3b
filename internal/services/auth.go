package services

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/oof-labs/oof-backend/internal/config"
	"github.com/oof-labs/oof-backend/pkg/models"
)

type validatorMode int

const (
	modeJWKS validatorMode = iota
	modeStatic
)

// Algorithms accepted per mode. Anything else is rejected before signature
// verification runs.
var (
	jwksMethods   = []string{"RS256", "RS384", "RS512", "HS256", "HS384", "HS512"}
	staticMethods = []string{"HS256"}
)

// TokenValidator verifies bearer tokens in one of two mutually exclusive
// modes, chosen at construction: JWKS mode resolves keys by kid through a
// JWKSClient, static mode verifies with a fixed HMAC secret. Either way the
// caller sees only ErrUnauthorized on failure; the specific reason stays in
// the logs.
type TokenValidator struct {
	mode     validatorMode
	jwks     *JWKSClient
	secret   []byte
	issuer   string
	audience string
	logger   *logrus.Logger
}

// NewJWKSValidator builds a validator backed by the remote key set. The
// Dynamic environment id doubles as the required audience.
func NewJWKSValidator(jwks *JWKSClient, environmentID string, logger *logrus.Logger) *TokenValidator {
	return &TokenValidator{
		mode:     modeJWKS,
		jwks:     jwks,
		audience: environmentID,
		logger:   logger,
	}
}

// NewStaticValidator builds an HMAC validator for deployments without a
// JWKS endpoint.
func NewStaticValidator(secret []byte, logger *logrus.Logger) *TokenValidator {
	return &TokenValidator{
		mode:   modeStatic,
		secret: secret,
		logger: logger,
	}
}

// RequireIssuer makes validation reject tokens whose iss differs from the
// given value.
func (v *TokenValidator) RequireIssuer(issuer string) *TokenValidator {
	v.issuer = issuer
	return v
}

// RequireAudience makes validation reject tokens that do not carry the given
// audience.
func (v *TokenValidator) RequireAudience(audience string) *TokenValidator {
	v.audience = audience
	return v
}

// Validate verifies the token's signature, expiry and not-before, then
// applies the configured issuer/audience checks. Returns the verified claims
// or ErrUnauthorized.
func (v *TokenValidator) Validate(ctx context.Context, tokenString string) (*models.Claims, error) {
	claims, err := v.verify(ctx, tokenString)
	if err != nil {
		v.logger.WithError(err).Warn("Token validation failed")
		return nil, ErrUnauthorized
	}

	if v.issuer != "" && claims.Issuer != v.issuer {
		v.logger.WithFields(logrus.Fields{
			"expected_issuer": v.issuer,
			"token_issuer":    claims.Issuer,
		}).Warn("Token issuer mismatch")
		return nil, ErrUnauthorized
	}

	if v.audience != "" && !hasAudience(claims.Audience, v.audience) {
		v.logger.WithFields(logrus.Fields{
			"expected_audience": v.audience,
			"token_audience":    []string(claims.Audience),
		}).Warn("Token audience mismatch")
		return nil, ErrUnauthorized
	}

	return claims, nil
}

func (v *TokenValidator) verify(ctx context.Context, tokenString string) (*models.Claims, error) {
	var methods []string
	var keyfunc jwt.Keyfunc

	switch v.mode {
	case modeJWKS:
		methods = jwksMethods
		keyfunc = func(token *jwt.Token) (interface{}, error) {
			kid, ok := token.Header["kid"].(string)
			if !ok || kid == "" {
				return nil, fmt.Errorf("missing key ID in token header")
			}
			return v.jwks.GetKey(ctx, kid)
		}
	case modeStatic:
		methods = staticMethods
		keyfunc = func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return v.secret, nil
		}
	}

	token, err := jwt.ParseWithClaims(tokenString, &models.Claims{}, keyfunc,
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*models.Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

func hasAudience(audience jwt.ClaimStrings, want string) bool {
	for _, aud := range audience {
		if aud == want {
			return true
		}
	}
	return false
}

// AuthService owns the validator for inbound requests and mints internal
// HMAC tokens with the app secret.
type AuthService struct {
	config    *config.Config
	logger    *logrus.Logger
	validator *TokenValidator
	appSecret []byte
}

// NewAuthService fails rather than fall back to a guessable key: static mode
// with an empty app secret would verify tokens against the empty key and
// accept anything an attacker mints.
func NewAuthService(cfg *config.Config, logger *logrus.Logger, keyCache *KeyCache, metrics *AuthMetrics) (*AuthService, error) {
	var validator *TokenValidator
	if cfg.Auth.JWKSURL != "" && cfg.Auth.EnvironmentID != "" {
		var fetches *prometheus.CounterVec
		if metrics != nil {
			fetches = metrics.JWKSFetches
		}
		jwks := NewJWKSClient(
			cfg.Auth.JWKSURL, cfg.Auth.EnvironmentID,
			cfg.Auth.JWKSTimeout, cfg.Auth.JWKSCacheTTL,
			keyCache, fetches, logger,
		)
		validator = NewJWKSValidator(jwks, cfg.Auth.EnvironmentID, logger)
	} else {
		if cfg.Auth.AppSecret == "" {
			return nil, fmt.Errorf("auth configuration incomplete: static mode requires auth.app_secret")
		}
		validator = NewStaticValidator([]byte(cfg.Auth.AppSecret), logger)
	}
	if cfg.Auth.Issuer != "" {
		validator.RequireIssuer(cfg.Auth.Issuer)
	}

	return &AuthService{
		config:    cfg,
		logger:    logger,
		validator: validator,
		appSecret: []byte(cfg.Auth.AppSecret),
	}, nil
}

func (s *AuthService) ValidateToken(ctx context.Context, tokenString string) (*models.Claims, error) {
	claims, err := s.validator.Validate(ctx, tokenString)
	if err != nil {
		return nil, err
	}

	// Tokens that carry an environment id must match ours.
	if s.config.Auth.EnvironmentID != "" && claims.EnvironmentID != "" &&
		claims.EnvironmentID != s.config.Auth.EnvironmentID {
		s.logger.WithFields(logrus.Fields{
			"expected_environment": s.config.Auth.EnvironmentID,
			"token_environment":    claims.EnvironmentID,
		}).Warn("Token environment mismatch")
		return nil, ErrUnauthorized
	}

	return claims, nil
}

// GenerateToken issues an internal service token signed with the app secret.
func (s *AuthService) GenerateToken(subject string, roles []string) (string, time.Time, error) {
	if len(s.appSecret) == 0 {
		return "", time.Time{}, fmt.Errorf("token minting requires auth.app_secret")
	}

	now := time.Now()
	expiresAt := now.Add(s.config.Auth.TokenTTL)
	claims := &models.Claims{
		Roles:        roles,
		AuthProvider: "internal",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    "oof-backend",
			Audience:  jwt.ClaimStrings{"oof-api"},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.appSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, expiresAt, nil
}
