package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"
)

// Signature header names accepted on inbound webhooks, checked in order.
// Helius sends x-helius-signature; the short forms show up from older
// webhook registrations.
var webhookSignatureHeaders = []string{
	"x-helius-signature",
	"x-hel-sig",
	"x-hel",
	"x-webhook-signature",
}

// WebhookSignatureFromHeaders returns the first candidate signature header
// present, or "" when none is.
func WebhookSignatureFromHeaders(headers http.Header) string {
	for _, name := range webhookSignatureHeaders {
		if value := headers.Get(name); value != "" {
			return value
		}
	}
	return ""
}

// VerifyWebhookSignature checks an HMAC-SHA256 signature over the raw,
// unparsed request body. The header value may carry a "sha256=" prefix and
// the digest may be hex or base64 encoded. Comparison is constant-time.
// Returns false on any missing or undecodable input; never errors.
func VerifyWebhookSignature(secret string, body []byte, signatureHeader string) bool {
	if secret == "" || signatureHeader == "" {
		return false
	}

	encoded := signatureHeader
	if cut, found := strings.CutPrefix(signatureHeader, "sha256="); found {
		encoded = cut
	}

	signature, ok := decodeSignature(encoded)
	if !ok {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	return hmac.Equal(signature, expected)
}

func decodeSignature(encoded string) ([]byte, bool) {
	if decoded, err := hex.DecodeString(encoded); err == nil {
		return decoded, true
	}
	if decoded, err := base64.StdEncoding.DecodeString(encoded); err == nil {
		return decoded, true
	}
	return nil, false
}
