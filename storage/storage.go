// Package storage defines interfaces for persisting authorization codes and access tokens.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/giantswarm/mcp-oauth-proxy/security"
)

// Sentinel errors returned by storage implementations.
// Callers should match them with errors.Is since implementations may wrap them.
var (
	// ErrAuthorizationCodeNotFound is returned when a code is unknown or was already consumed
	ErrAuthorizationCodeNotFound = errors.New("authorization code not found")

	// ErrAuthorizationCodeExpired is returned when a code exists but its validity window has passed
	ErrAuthorizationCodeExpired = errors.New("authorization code expired")

	// ErrTokenNotFound is returned when an access token is unknown
	ErrTokenNotFound = errors.New("access token not found")

	// ErrTokenExpired is returned when an access token exists but has expired
	ErrTokenExpired = errors.New("access token expired")

	// ErrDuplicateKey is returned when saving a code or token whose value is already stored
	ErrDuplicateKey = errors.New("duplicate key")
)

// AuthorizationCode is a short-lived, single-use grant created when the user approves
// an authorization request. It binds the eventual token exchange to the redirect URI
// and the optional PKCE challenge supplied at authorization time.
type AuthorizationCode struct {
	Code                string
	ClientID            string
	RedirectURI         string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
	CreatedAt           time.Time
	ExpiresAt           time.Time
}

// IsExpired reports whether the code is no longer usable at the given instant.
func (c *AuthorizationCode) IsExpired(now time.Time) bool {
	return security.IsExpired(c.ExpiresAt, now)
}

// AccessToken is an opaque bearer credential issued by the server.
// Its expiry is absolute from IssuedAt and is never extended.
type AccessToken struct {
	Token     string
	ClientID  string
	GrantType string
	Scope     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IsExpired reports whether the token is no longer valid at the given instant.
func (t *AccessToken) IsExpired(now time.Time) bool {
	return security.IsExpired(t.ExpiresAt, now)
}

// CodeStore manages authorization codes between approval and exchange.
// All methods accept context.Context for tracing and cancellation.
type CodeStore interface {
	// SaveAuthorizationCode stores a newly issued code.
	// Returns ErrDuplicateKey if the code value is already stored.
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// GetAuthorizationCode returns a copy of a live code without consuming it.
	// Returns ErrAuthorizationCodeNotFound or ErrAuthorizationCodeExpired otherwise.
	GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// DeleteAuthorizationCode consumes a code.
	// SECURITY: Returns ErrAuthorizationCodeNotFound if the code is already gone, so that
	// exactly one of several concurrent exchanges of the same code can succeed.
	DeleteAuthorizationCode(ctx context.Context, code string) error
}

// TokenStore manages issued access tokens.
// All methods accept context.Context for tracing and cancellation.
type TokenStore interface {
	// SaveAccessToken stores a newly issued token.
	// Returns ErrDuplicateKey if the token value is already stored.
	SaveAccessToken(ctx context.Context, token *AccessToken) error

	// GetAccessToken returns a copy of a live token.
	// An expired token is evicted and ErrTokenExpired is returned; an unknown one yields ErrTokenNotFound.
	GetAccessToken(ctx context.Context, token string) (*AccessToken, error)

	// DeleteAccessToken removes a token. Deleting an unknown token is not an error.
	DeleteAccessToken(ctx context.Context, token string) error

	// DeleteExpiredAccessTokens removes every expired token and returns how many were removed.
	DeleteExpiredAccessTokens(ctx context.Context) (int, error)
}
