package security

import (
	"math"
	"time"
)

// IsExpired reports whether a credential expiring at expiresAt is expired at now.
// Self-issued credentials get no clock skew grace period: a credential is valid for
// every instant strictly before expiresAt and expired from expiresAt on.
// A zero expiry is treated as expired so that an incomplete record can never authenticate.
func IsExpired(expiresAt, now time.Time) bool {
	if expiresAt.IsZero() {
		return true
	}
	return !now.Before(expiresAt)
}

// SecondsUntil returns the number of whole seconds (rounded up) from now until expiresAt.
// Returns 0 when expiresAt is not in the future.
func SecondsUntil(expiresAt, now time.Time) int64 {
	remaining := expiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int64(math.Ceil(remaining.Seconds()))
}
