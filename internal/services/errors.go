package services

import "errors"

// Caller-visible error taxonomy. Verification failures all collapse into
// ErrUnauthorized before leaving this package; the distinction between a bad
// signature, an expired token and an unreachable key endpoint is logged but
// never surfaced, so responses give no oracle to a token forger.
var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrKeyNotFound         = errors.New("signing key not found")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)
