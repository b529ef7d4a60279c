package security

import (
	"net/http"
	"net/url"
)

const (
	// apiContentSecurityPolicy forbids every resource: JSON responses never render
	apiContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'"

	// pageContentSecurityPolicy allows the inline stylesheet of the approval page.
	// form-action is left open because the approval form redirects to the client's redirect_uri.
	pageContentSecurityPolicy = "default-src 'none'; style-src 'unsafe-inline'; frame-ancestors 'none'; base-uri 'none'"
)

// SetSecurityHeaders sets security headers on JSON and plain-text OAuth responses.
// Strict-Transport-Security is only sent when baseURL uses https.
func SetSecurityHeaders(w http.ResponseWriter, baseURL string) {
	setCommonHeaders(w, baseURL)
	w.Header().Set("Content-Security-Policy", apiContentSecurityPolicy)
}

// SetPageSecurityHeaders sets security headers on the HTML approval page.
// X-Frame-Options and frame-ancestors prevent clickjacking of the approve button.
func SetPageSecurityHeaders(w http.ResponseWriter, baseURL string) {
	setCommonHeaders(w, baseURL)
	w.Header().Set("Content-Security-Policy", pageContentSecurityPolicy)
}

func setCommonHeaders(w http.ResponseWriter, baseURL string) {
	h := w.Header()
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Referrer-Policy", "no-referrer")

	if parsed, err := url.Parse(baseURL); err == nil && parsed.Scheme == "https" {
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}

	// Codes and tokens must never be cached (RFC 6749 section 5.1)
	h.Set("Cache-Control", "no-store")
	h.Set("Pragma", "no-cache")
}
