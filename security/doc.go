// Package security provides the security plumbing shared by the OAuth handlers.
//
// # Audit Logging
//
// Auditor writes one structured "security_audit" log record per security-relevant
// event (token issued, client authentication failure, PKCE failure, code reuse,
// approval decisions, rejected bearer tokens). Codes and tokens are never logged;
// the helpers record a truncated SHA-256 hash instead. Event type names are the
// Event* constants.
//
//	auditor := security.NewAuditor(logger, true)
//	auditor.LogAuthFailure(clientID, clientIP, "invalid client secret")
//
// # Headers
//
// SetSecurityHeaders is applied to every JSON and plain-text OAuth response;
// SetPageSecurityHeaders to the HTML approval page. Both send Cache-Control: no-store.
//
// # Client IP and Request IDs
//
// ClientIP honors X-Forwarded-For and X-Real-IP only when the deployment trusts its
// proxies. RequestIDMiddleware assigns a request ID, echoes it on the response and
// forwards it to the downstream origin.
//
// # Expiry
//
// IsExpired is the single expiry predicate for codes and tokens: an entry expires
// at the instant now reaches its expiry time. No clock skew grace is applied.
package security
