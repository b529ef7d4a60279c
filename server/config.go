package server

import (
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/giantswarm/mcp-oauth-proxy/internal/util"
)

// Config holds OAuth server configuration
type Config struct {
	// Issuer is the externally visible base URL of the proxy (BASE_URL).
	// Trailing slashes are removed.
	Issuer string

	// ClientID is the identifier of the single known client
	ClientID string

	// ClientSecret is the client's secret. It is hashed with bcrypt by New and the
	// hash is what the Server keeps.
	ClientSecret string

	// ClientSecretHashCost is the bcrypt cost used to hash ClientSecret.
	// Default: bcrypt.DefaultCost
	ClientSecretHashCost int

	// AuthorizationCodeTTL is how long authorization codes are valid
	// Default: 10 minutes
	AuthorizationCodeTTL time.Duration

	// AccessTokenTTL is how long access tokens are valid
	// Default: 1 hour
	AccessTokenTTL time.Duration

	// AllowMissingPKCEVerifier accepts an authorization_code exchange without
	// code_verifier even when the code was issued with a code_challenge.
	// WARNING: this lets a stolen code be redeemed without the verifier.
	// Default: false (a registered challenge must be satisfied)
	AllowMissingPKCEVerifier bool

	// AllowedRedirectURIs restricts redirect_uri to an exact-match allowlist.
	// Empty means any absolute, non-blocked redirect URI is accepted.
	AllowedRedirectURIs []string

	// BlockedRedirectSchemes are never accepted as redirect_uri schemes.
	// Default: DefaultBlockedRedirectSchemes
	BlockedRedirectSchemes []string

	// ResourcePath is the path of the protected resource (PROTECTED_PATH).
	// Default: "/mcp"
	ResourcePath string

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers
	// WARNING: Only enable if behind a trusted reverse proxy
	// Default: false
	TrustProxy bool

	// TrustedProxyCount is the number of trusted proxies in front of this server
	// Default: 1
	TrustedProxyCount int
}

// DefaultBlockedRedirectSchemes lists URI schemes that can execute script or read
// local data when a browser follows the redirect.
var DefaultBlockedRedirectSchemes = []string{"javascript", "data", "file", "vbscript", "about", "blob"}

// DefaultResourcePath is the protected path when none is configured
const DefaultResourcePath = "/mcp"

// applySecureDefaults fills in defaults for unset fields and warns about risky settings
func applySecureDefaults(config *Config, logger *slog.Logger) *Config {
	config.Issuer = util.NormalizeURL(strings.TrimSpace(config.Issuer))

	if config.AuthorizationCodeTTL == 0 {
		config.AuthorizationCodeTTL = 10 * time.Minute
	}
	if config.AccessTokenTTL == 0 {
		config.AccessTokenTTL = time.Hour
	}
	if config.ClientSecretHashCost == 0 {
		config.ClientSecretHashCost = bcrypt.DefaultCost
	}
	if config.TrustedProxyCount == 0 {
		config.TrustedProxyCount = 1
	}
	if len(config.BlockedRedirectSchemes) == 0 {
		config.BlockedRedirectSchemes = DefaultBlockedRedirectSchemes
	}
	if config.ResourcePath == "" {
		config.ResourcePath = DefaultResourcePath
	}
	if !strings.HasPrefix(config.ResourcePath, "/") {
		config.ResourcePath = "/" + config.ResourcePath
	}

	logSecurityWarnings(config, logger)
	return config
}

// logSecurityWarnings logs warnings for insecure configuration settings
func logSecurityWarnings(config *Config, logger *slog.Logger) {
	if config.AllowMissingPKCEVerifier {
		logger.Warn("SECURITY WARNING: authorization codes issued with a code_challenge can be exchanged without code_verifier",
			"setting", "AllowMissingPKCEVerifier",
			"recommendation", "Disable unless a legacy client cannot send code_verifier")
	}
	if config.TrustProxy {
		logger.Warn("Trusting forwarding headers for client IP extraction",
			"trusted_proxy_count", config.TrustedProxyCount,
			"recommendation", "Only enable behind a reverse proxy you control")
	}
	if strings.HasPrefix(config.Issuer, "http://") && !isLoopbackURL(config.Issuer) {
		logger.Warn("SECURITY WARNING: issuer uses plain HTTP; client secrets, codes and tokens travel unencrypted",
			"issuer", config.Issuer,
			"recommendation", "Terminate TLS in front of the proxy and use an https BASE_URL")
	}
}

// AuthorizationEndpoint returns the full URL of the authorization endpoint
func (c *Config) AuthorizationEndpoint() string {
	return util.JoinURL(c.Issuer, "/authorize")
}

// TokenEndpoint returns the full URL of the token endpoint
func (c *Config) TokenEndpoint() string {
	return util.JoinURL(c.Issuer, "/oauth/token")
}

// ResourceURL returns the identifier of the protected resource (RFC 9728 "resource")
func (c *Config) ResourceURL() string {
	return util.JoinURL(c.Issuer, c.ResourcePath)
}

// ProtectedResourceMetadataEndpoint returns the RFC 9728 discovery URL advertised in
// WWW-Authenticate challenges.
func (c *Config) ProtectedResourceMetadataEndpoint() string {
	return util.JoinURL(c.Issuer, "/.well-known/oauth-protected-resource")
}
