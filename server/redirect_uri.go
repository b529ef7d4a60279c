package server

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// Redirect URI rejection reasons, used in audit events and debug logs
const (
	RedirectURIReasonMissing       = "missing"
	RedirectURIReasonInvalidFormat = "invalid_format"
	RedirectURIReasonNotAbsolute   = "not_absolute"
	RedirectURIReasonFragment      = "fragment_not_allowed"
	RedirectURIReasonBlockedScheme = "blocked_scheme"
	RedirectURIReasonNotAllowed    = "not_in_allowlist"
)

// redirectURIError carries the rejection reason next to the client-facing message
type redirectURIError struct {
	reason  string
	message string
}

func (e *redirectURIError) Error() string {
	return e.message
}

// redirectURIRejectionReason returns the reason code of a redirect URI failure
func redirectURIRejectionReason(err error) string {
	var uriErr *redirectURIError
	if errors.As(err, &uriErr) {
		return uriErr.reason
	}
	return RedirectURIReasonInvalidFormat
}

// checkRedirectURIFormat validates the shape of a redirect URI (RFC 6749 section 3.1.2):
// absolute, no fragment, scheme not blocked. http(s) URIs must name a host.
// Custom schemes used by native clients (cursor://, vscode://) are accepted.
func (c *Config) checkRedirectURIFormat(redirectURI string) error {
	if redirectURI == "" {
		return &redirectURIError{reason: RedirectURIReasonMissing, message: "redirect_uri is required"}
	}

	parsed, err := url.Parse(redirectURI)
	if err != nil {
		return &redirectURIError{reason: RedirectURIReasonInvalidFormat, message: "redirect_uri is not a valid URI"}
	}

	if parsed.Scheme == "" {
		return &redirectURIError{reason: RedirectURIReasonNotAbsolute, message: "redirect_uri must be an absolute URI"}
	}

	if parsed.Fragment != "" || strings.Contains(redirectURI, "#") {
		return &redirectURIError{reason: RedirectURIReasonFragment, message: "redirect_uri must not contain a fragment"}
	}

	scheme := strings.ToLower(parsed.Scheme)
	for _, blocked := range c.BlockedRedirectSchemes {
		if scheme == strings.ToLower(blocked) {
			return &redirectURIError{
				reason:  RedirectURIReasonBlockedScheme,
				message: fmt.Sprintf("redirect_uri scheme %q is not allowed", parsed.Scheme),
			}
		}
	}

	if (scheme == "http" || scheme == "https") && parsed.Host == "" {
		return &redirectURIError{reason: RedirectURIReasonNotAbsolute, message: "redirect_uri must include a host"}
	}

	return nil
}

// validateRedirectURI checks format and, when configured, the exact-match allowlist
func (s *Server) validateRedirectURI(redirectURI string) error {
	if err := s.Config.checkRedirectURIFormat(redirectURI); err != nil {
		return err
	}
	if len(s.Config.AllowedRedirectURIs) > 0 && !slices.Contains(s.Config.AllowedRedirectURIs, redirectURI) {
		return &redirectURIError{reason: RedirectURIReasonNotAllowed, message: "redirect_uri is not registered"}
	}
	return nil
}

// buildRedirectURL appends params to redirectURI, keeping any query it already carries.
// Empty values are skipped so that an absent state is never sent back as "state=".
func buildRedirectURL(redirectURI string, params url.Values) (string, error) {
	parsed, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("parse redirect_uri: %w", err)
	}
	if parsed.Scheme == "" {
		return "", fmt.Errorf("redirect_uri %q is not absolute", redirectURI)
	}

	query := parsed.Query()
	for key, values := range params {
		for _, v := range values {
			if v != "" {
				query.Add(key, v)
			}
		}
	}
	parsed.RawQuery = query.Encode()
	parsed.Fragment = ""

	return parsed.String(), nil
}
