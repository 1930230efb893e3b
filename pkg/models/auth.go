package models

import (
	"encoding/json"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the canonical verified token payload. It merges the registered
// JWT claims with the Dynamic.xyz provider fields and the app-specific
// authorization fields. Audience uses jwt.ClaimStrings so tokens carrying
// either a single string or a list decode losslessly.
//
// Claims values exist only after successful signature, expiry and
// issuer/audience validation; nothing in this package constructs one from
// unverified input.
type Claims struct {
	Email           string `json:"email,omitempty"`
	EmailVerified   bool   `json:"email_verified,omitempty"`
	EnvironmentID   string `json:"environment_id,omitempty"`
	WalletPublicKey string `json:"wallet_public_key,omitempty"`
	WalletName      string `json:"wallet_name,omitempty"`
	AuthProvider    string `json:"auth_provider,omitempty"`
	SocialProvider  string `json:"social_provider,omitempty"`

	Roles            []string `json:"roles,omitempty"`
	Permissions      []string `json:"permissions,omitempty"`
	SubscriptionTier string   `json:"subscription_tier,omitempty"`

	// Extra collects provider-specific claims that have no named field.
	Extra map[string]interface{} `json:"-"`

	jwt.RegisteredClaims
}

// knownClaimKeys are the JSON keys consumed by named fields; everything else
// lands in Extra.
var knownClaimKeys = map[string]struct{}{
	"iss": {}, "sub": {}, "aud": {}, "exp": {}, "nbf": {}, "iat": {}, "jti": {},
	"email": {}, "email_verified": {}, "environment_id": {},
	"wallet_public_key": {}, "wallet_name": {}, "auth_provider": {},
	"social_provider": {}, "roles": {}, "permissions": {},
	"subscription_tier": {},
}

type claimsAlias Claims

func (c *Claims) UnmarshalJSON(data []byte) error {
	var alias claimsAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key := range raw {
		if _, known := knownClaimKeys[key]; known {
			delete(raw, key)
		}
	}
	if len(raw) > 0 {
		alias.Extra = raw
	}

	*c = Claims(alias)
	return nil
}

func (c Claims) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(claimsAlias(c))
	if err != nil {
		return nil, err
	}
	if len(c.Extra) == 0 {
		return data, nil
	}

	var merged map[string]interface{}
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for key, value := range c.Extra {
		if _, known := knownClaimKeys[key]; !known {
			merged[key] = value
		}
	}
	return json.Marshal(merged)
}

// HasRole reports whether the token carries the given role.
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
