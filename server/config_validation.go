package server

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Validate checks that the configuration can serve requests.
// It is called by New after defaults were applied.
func (c *Config) Validate() error {
	var errs []error

	if c.ClientID == "" {
		errs = append(errs, errors.New("client id is required"))
	}
	if c.ClientSecret == "" {
		errs = append(errs, errors.New("client secret is required"))
	}

	if c.Issuer == "" {
		errs = append(errs, errors.New("issuer is required"))
	} else if parsed, err := url.Parse(c.Issuer); err != nil {
		errs = append(errs, fmt.Errorf("issuer is not a valid URL: %w", err))
	} else if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		errs = append(errs, fmt.Errorf("issuer must be an absolute http(s) URL, got %q", c.Issuer))
	} else if parsed.RawQuery != "" || parsed.Fragment != "" {
		errs = append(errs, fmt.Errorf("issuer must not contain a query or fragment, got %q", c.Issuer))
	}

	if c.AuthorizationCodeTTL <= 0 {
		errs = append(errs, fmt.Errorf("authorization code TTL must be positive, got %s", c.AuthorizationCodeTTL))
	}
	if c.AccessTokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("access token TTL must be positive, got %s", c.AccessTokenTTL))
	}
	if c.ClientSecretHashCost < bcrypt.MinCost || c.ClientSecretHashCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("client secret hash cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.TrustedProxyCount < 0 {
		errs = append(errs, fmt.Errorf("trusted proxy count must not be negative, got %d", c.TrustedProxyCount))
	}

	for _, allowed := range c.AllowedRedirectURIs {
		if err := c.checkRedirectURIFormat(allowed); err != nil {
			errs = append(errs, fmt.Errorf("allowed redirect URI %q: %w", allowed, err))
		}
	}

	return errors.Join(errs...)
}

// isLoopbackURL reports whether rawURL points at localhost or a loopback address
func isLoopbackURL(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := parsed.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
