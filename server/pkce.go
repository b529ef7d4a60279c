package server

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/oauth2"
)

// PKCE constants (RFC 7636)
const (
	MinCodeVerifierLength = 43
	MaxCodeVerifierLength = 128
	PKCEMethodS256        = "S256"
)

// VerifyPKCE reports whether verifier hashes to challenge under S256:
// BASE64URL-ENCODE(SHA256(ASCII(verifier))) without padding, compared in constant time.
// The verifier's syntax is not checked: a verifier that hashes to the challenge verifies.
func VerifyPKCE(verifier, challenge string) bool {
	if challenge == "" || verifier == "" {
		return false
	}
	computed := oauth2.S256ChallengeFromVerifier(verifier)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}

// validateCodeVerifier checks RFC 7636 section 4.1 syntax: 43 to 128 characters
// from [A-Z] / [a-z] / [0-9] / "-" / "." / "_" / "~". It only classifies failed
// verifications for the audit log.
func validateCodeVerifier(verifier string) error {
	if len(verifier) < MinCodeVerifierLength {
		return fmt.Errorf("code_verifier must be at least %d characters", MinCodeVerifierLength)
	}
	if len(verifier) > MaxCodeVerifierLength {
		return fmt.Errorf("code_verifier must be at most %d characters", MaxCodeVerifierLength)
	}
	if !isUnreservedString(verifier) {
		return fmt.Errorf("code_verifier contains invalid characters (must be [A-Za-z0-9-._~])")
	}
	return nil
}

// validateCodeChallenge checks the PKCE parameters of an authorization request.
// Both empty means the client does not use PKCE. Only S256 is accepted; a challenge
// without a method is S256, never plain.
func validateCodeChallenge(challenge, method string) error {
	if challenge == "" && method == "" {
		return nil
	}
	if challenge == "" {
		return fmt.Errorf("code_challenge_method given without code_challenge")
	}
	if method != "" && method != PKCEMethodS256 {
		return fmt.Errorf("unsupported code_challenge_method %q (supported: %s)", method, PKCEMethodS256)
	}
	if len(challenge) < MinCodeVerifierLength || len(challenge) > MaxCodeVerifierLength || !isUnreservedString(challenge) {
		return fmt.Errorf("code_challenge is malformed")
	}
	return nil
}

func isUnreservedString(s string) bool {
	for _, ch := range s {
		isValid := (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') ||
			ch == '-' || ch == '.' || ch == '_' || ch == '~'
		if !isValid {
			return false
		}
	}
	return true
}
