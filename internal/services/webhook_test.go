package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/stat"
)

func signBody(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

func TestVerifyWebhookSignature(t *testing.T) {
	secret := "webhook-secret"
	body := []byte(`{"type":"enhanced","transactions":[]}`)
	digest := signBody(secret, body)

	t.Run("hex signature verifies", func(t *testing.T) {
		assert.True(t, VerifyWebhookSignature(secret, body, hex.EncodeToString(digest)))
	})

	t.Run("base64 signature verifies", func(t *testing.T) {
		assert.True(t, VerifyWebhookSignature(secret, body, base64.StdEncoding.EncodeToString(digest)))
	})

	t.Run("sha256= prefix is stripped", func(t *testing.T) {
		assert.True(t, VerifyWebhookSignature(secret, body, "sha256="+hex.EncodeToString(digest)))
		assert.True(t, VerifyWebhookSignature(secret, body, "sha256="+base64.StdEncoding.EncodeToString(digest)))
	})

	t.Run("tampered body is rejected", func(t *testing.T) {
		tampered := append([]byte{}, body...)
		tampered[0] ^= 0x01
		assert.False(t, VerifyWebhookSignature(secret, tampered, hex.EncodeToString(digest)))
	})

	t.Run("tampered signature is rejected", func(t *testing.T) {
		flipped := append([]byte{}, digest...)
		flipped[0] ^= 0x01
		assert.False(t, VerifyWebhookSignature(secret, body, hex.EncodeToString(flipped)))
	})

	t.Run("wrong secret is rejected", func(t *testing.T) {
		other := signBody("other-secret", body)
		assert.False(t, VerifyWebhookSignature(secret, body, hex.EncodeToString(other)))
	})

	t.Run("missing inputs are rejected", func(t *testing.T) {
		assert.False(t, VerifyWebhookSignature("", body, hex.EncodeToString(digest)))
		assert.False(t, VerifyWebhookSignature(secret, body, ""))
		assert.False(t, VerifyWebhookSignature(secret, body, "not-hex-not-base64!!!"))
	})
}

func TestWebhookSignatureFromHeaders(t *testing.T) {
	t.Run("primary header wins over short forms", func(t *testing.T) {
		headers := http.Header{}
		headers.Set("x-hel", "short")
		headers.Set("x-helius-signature", "primary")
		assert.Equal(t, "primary", WebhookSignatureFromHeaders(headers))
	})

	t.Run("short form is accepted alone", func(t *testing.T) {
		headers := http.Header{}
		headers.Set("x-hel-sig", "short")
		assert.Equal(t, "short", WebhookSignatureFromHeaders(headers))
	})

	t.Run("no candidate header yields empty", func(t *testing.T) {
		headers := http.Header{}
		headers.Set("content-type", "application/json")
		assert.Equal(t, "", WebhookSignatureFromHeaders(headers))
	})
}

// Verification time for a signature that diverges at the first byte must be
// statistically indistinguishable from one that diverges at the last byte.
func TestVerifyWebhookSignature_ConstantTime(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping timing measurement in short mode")
	}

	secret := "webhook-secret"
	body := []byte(`{"type":"enhanced","transactions":[]}`)
	digest := signBody(secret, body)

	earlyMismatch := append([]byte{}, digest...)
	earlyMismatch[0] ^= 0x01
	lateMismatch := append([]byte{}, digest...)
	lateMismatch[len(lateMismatch)-1] ^= 0x01

	measure := func(signature string) []float64 {
		const samples = 2000
		durations := make([]float64, samples)
		for i := range durations {
			start := time.Now()
			VerifyWebhookSignature(secret, body, signature)
			durations[i] = float64(time.Since(start).Nanoseconds())
		}
		return durations
	}

	early := stat.Mean(measure(hex.EncodeToString(earlyMismatch)), nil)
	late := stat.Mean(measure(hex.EncodeToString(lateMismatch)), nil)

	ratio := early / late
	if ratio < 1 {
		ratio = 1 / ratio
	}
	assert.Less(t, ratio, 3.0, "mean verification time must not depend on mismatch position")
}
