// Package security provides security features for the OAuth proxy including audit
// logging, secure header management, client IP extraction and request IDs.
package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/giantswarm/mcp-oauth-proxy/instrumentation"
)

// Auditor handles security event logging with secret protection.
type Auditor struct {
	logger          *slog.Logger
	enabled         bool
	now             func() time.Time
	instrumentation *instrumentation.Instrumentation
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
		now:     time.Now,
	}
}

// SetInstrumentation enables the audit event counter
func (a *Auditor) SetInstrumentation(inst *instrumentation.Instrumentation) {
	a.instrumentation = inst
}

// Enabled reports whether events are written
func (a *Auditor) Enabled() bool {
	return a != nil && a.enabled
}

// Event represents a security audit event
type Event struct {
	Type      string
	ClientID  string
	IPAddress string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event. A nil Auditor is a no-op.
func (a *Auditor) LogEvent(event Event) {
	if !a.Enabled() {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = a.now()
	}

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"client_id", event.ClientID,
		"ip_address", event.IPAddress,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)

	if a.instrumentation != nil {
		a.instrumentation.Metrics().RecordAuditEvent(context.Background(), event.Type)
	}
}

// LogTokenIssued logs when an access token is issued
func (a *Auditor) LogTokenIssued(clientID, ipAddress, grantType, token string) {
	a.LogEvent(Event{
		Type:      EventTokenIssued,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"grant_type": grantType,
			"token_hash": hashForLogging(token),
		},
	})
}

// LogAuthorizationCodeIssued logs when the approver grants a code
func (a *Auditor) LogAuthorizationCodeIssued(clientID, ipAddress, redirectURI string, pkce bool) {
	a.LogEvent(Event{
		Type:      EventAuthorizationCodeIssued,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"redirect_uri": redirectURI,
			"pkce":         pkce,
		},
	})
}

// LogAuthorizationDenied logs when the approver denies a request
func (a *Auditor) LogAuthorizationDenied(clientID, ipAddress, redirectURI string) {
	a.LogEvent(Event{
		Type:      EventAuthorizationDenied,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"redirect_uri": redirectURI,
		},
	})
}

// LogAuthFailure logs a client authentication failure
func (a *Auditor) LogAuthFailure(clientID, ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      EventAuthFailure,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogPKCEFailure logs a code_verifier that did not match the stored challenge
func (a *Auditor) LogPKCEFailure(clientID, ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      EventPKCEValidationFailed,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogCodeReuse logs an exchange of a code that was already consumed
func (a *Auditor) LogCodeReuse(clientID, ipAddress, code string) {
	a.LogEvent(Event{
		Type:      EventAuthorizationCodeReuseDetected,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"code_hash": hashForLogging(code),
		},
	})
}

// LogInvalidRedirect logs an authorization request with a rejected redirect_uri
func (a *Auditor) LogInvalidRedirect(clientID, ipAddress, redirectURI, reason string) {
	a.LogEvent(Event{
		Type:      EventInvalidRedirect,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"redirect_uri": redirectURI,
			"reason":       reason,
		},
	})
}

// LogInvalidToken logs a bearer token rejected by the access gate
func (a *Auditor) LogInvalidToken(ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      EventInvalidToken,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// hashForLogging creates a truncated SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
