package services

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const environmentPlaceholder = "{ENVIRONMENT_ID}"

// JSONWebKey is one key descriptor from the JWKS endpoint.
type JSONWebKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use,omitempty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
	K   string `json:"k,omitempty"`
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
}

type JWKSResponse struct {
	Keys []JSONWebKey `json:"keys"`
}

type cachedKey struct {
	key       interface{}
	expiresAt time.Time
}

// KeyCache holds converted decoding keys by kid. Entries are immutable once
// stored; a refresh replaces them wholesale. Constructed once at startup and
// shared by reference, so tests and multi-environment setups can run
// independent caches side by side.
type KeyCache struct {
	mu   sync.RWMutex
	keys map[string]cachedKey
}

func NewKeyCache() *KeyCache {
	return &KeyCache{keys: make(map[string]cachedKey)}
}

func (c *KeyCache) get(kid string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.keys[kid]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.key, true
}

// putAll installs a freshly fetched key set. Concurrent fetches may race
// here; last writer wins, which is fine because equivalent fetches produce
// equivalent immutable entries.
func (c *KeyCache) putAll(keys map[string]interface{}, ttl time.Duration) {
	expiresAt := time.Now().Add(ttl)

	c.mu.Lock()
	defer c.mu.Unlock()
	for kid, key := range keys {
		c.keys[kid] = cachedKey{key: key, expiresAt: expiresAt}
	}
}

// JWKSClient fetches the remote key set and answers kid lookups through the
// injected KeyCache. A fresh cache entry is served without any network call;
// a miss or expired entry triggers exactly one fetch that repopulates the
// whole set.
type JWKSClient struct {
	httpClient *http.Client
	url        string
	cache      *KeyCache
	cacheTTL   time.Duration
	fetches    *prometheus.CounterVec
	logger     *logrus.Logger
}

func NewJWKSClient(jwksURL, environmentID string, timeout, cacheTTL time.Duration, cache *KeyCache, fetches *prometheus.CounterVec, logger *logrus.Logger) *JWKSClient {
	return &JWKSClient{
		httpClient: &http.Client{Timeout: timeout},
		url:        strings.ReplaceAll(jwksURL, environmentPlaceholder, environmentID),
		cache:      cache,
		cacheTTL:   cacheTTL,
		fetches:    fetches,
		logger:     logger,
	}
}

func (c *JWKSClient) observeFetch(outcome string) {
	if c.fetches != nil {
		c.fetches.WithLabelValues(outcome).Inc()
	}
}

// GetKey resolves a decoding key for the given kid. Exactly one fetch is
// attempted per call; a kid absent from the freshly fetched set fails with
// ErrKeyNotFound rather than retrying.
func (c *JWKSClient) GetKey(ctx context.Context, kid string) (interface{}, error) {
	if key, ok := c.cache.get(kid); ok {
		return key, nil
	}

	jwks, err := c.fetch(ctx)
	if err != nil {
		c.observeFetch("failure")
		return nil, err
	}
	c.observeFetch("success")

	converted := make(map[string]interface{}, len(jwks.Keys))
	for _, jwk := range jwks.Keys {
		key, err := decodingKeyFromJWK(&jwk)
		if err != nil {
			c.logger.WithError(err).WithField("kid", jwk.Kid).Warn("Skipping unusable JWK")
			continue
		}
		converted[jwk.Kid] = key
	}
	c.cache.putAll(converted, c.cacheTTL)

	if key, ok := converted[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
}

func (c *JWKSClient) fetch(ctx context.Context) (*JWKSResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build JWKS request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: JWKS fetch: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: JWKS endpoint returned %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var jwks JWKSResponse
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS response: %w", err)
	}
	return &jwks, nil
}

// decodingKeyFromJWK converts a key descriptor into something golang-jwt can
// verify with. RSA and symmetric "oct" keys are supported; EC keys fail
// closed.
func decodingKeyFromJWK(jwk *JSONWebKey) (interface{}, error) {
	switch jwk.Kty {
	case "RSA":
		if jwk.N == "" || jwk.E == "" {
			return nil, fmt.Errorf("RSA key %s missing modulus or exponent", jwk.Kid)
		}
		nBytes, err := base64.RawURLEncoding.DecodeString(jwk.N)
		if err != nil {
			return nil, fmt.Errorf("invalid RSA modulus: %w", err)
		}
		eBytes, err := base64.RawURLEncoding.DecodeString(jwk.E)
		if err != nil {
			return nil, fmt.Errorf("invalid RSA exponent: %w", err)
		}
		return &rsa.PublicKey{
			N: new(big.Int).SetBytes(nBytes),
			E: int(new(big.Int).SetBytes(eBytes).Int64()),
		}, nil
	case "oct":
		if jwk.K == "" {
			return nil, fmt.Errorf("symmetric key %s missing key material", jwk.Kid)
		}
		keyBytes, err := base64.RawURLEncoding.DecodeString(jwk.K)
		if err != nil {
			return nil, fmt.Errorf("invalid symmetric key: %w", err)
		}
		return keyBytes, nil
	case "EC":
		return nil, fmt.Errorf("EC keys are not supported")
	default:
		return nil, fmt.Errorf("unsupported key type: %s", jwk.Kty)
	}
}
