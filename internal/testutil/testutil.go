// Package testutil provides testing utilities and helpers for the mcp-oauth-proxy module.
package testutil

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/giantswarm/mcp-oauth-proxy/storage"
)

// Fixed test client used across package tests
const (
	TestClientID     = "test-client-id"
	TestClientSecret = "test-client-secret"
	TestRedirectURI  = "https://example.com/callback"
	TestIssuer       = "https://auth.example.com"
)

// MockTime provides a controllable time source for deterministic testing.
// It is safe for concurrent use, so it can back a store's clock while a test advances it.
type MockTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockTime creates a new mock time provider
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time
func (m *MockTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock time forward by the given duration
func (m *MockTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set sets the mock time to a specific value
func (m *MockTime) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// GenerateTestAuthorizationCode creates a live authorization code issued at now
func GenerateTestAuthorizationCode(now time.Time) *storage.AuthorizationCode {
	challenge, _ := GeneratePKCEPair()
	return &storage.AuthorizationCode{
		Code:                GenerateRandomString(43),
		ClientID:            TestClientID,
		RedirectURI:         TestRedirectURI,
		Scope:               "mcp",
		CodeChallenge:       challenge,
		CodeChallengeMethod: "S256",
		CreatedAt:           now,
		ExpiresAt:           now.Add(10 * time.Minute),
	}
}

// GenerateTestAccessToken creates a client_credentials access token issued at now
func GenerateTestAccessToken(now time.Time) *storage.AccessToken {
	return &storage.AccessToken{
		Token:     GenerateRandomString(43),
		ClientID:  TestClientID,
		GrantType: "client_credentials",
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}
}

// GenerateRandomString generates a random base64url-encoded string of the given length
func GenerateRandomString(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("failed to generate random string: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length]
}

// GeneratePKCEPair generates a valid S256 PKCE challenge and verifier pair.
// Returns (challenge, verifier).
func GeneratePKCEPair() (challenge, verifier string) {
	verifier = oauth2.GenerateVerifier()
	return oauth2.S256ChallengeFromVerifier(verifier), verifier
}

// HTTPRequest is a helper for making test HTTP requests
type HTTPRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
}

// NewHTTPRequest creates a new HTTP request helper
func NewHTTPRequest(method, url string) *HTTPRequest {
	return &HTTPRequest{
		Method:  method,
		URL:     url,
		Headers: make(map[string]string),
	}
}

// WithHeader adds a header to the request
func (r *HTTPRequest) WithHeader(key, value string) *HTTPRequest {
	r.Headers[key] = value
	return r
}

// WithBody sets the request body
func (r *HTTPRequest) WithBody(body string) *HTTPRequest {
	r.Body = body
	return r
}

// WithForm sets a form-encoded body and the matching Content-Type
func (r *HTTPRequest) WithForm(body string) *HTTPRequest {
	r.Headers["Content-Type"] = "application/x-www-form-urlencoded"
	r.Body = body
	return r
}

// Do executes the HTTP request against handler
func (r *HTTPRequest) Do(handler http.Handler) *httptest.ResponseRecorder {
	req := httptest.NewRequest(r.Method, r.URL, strings.NewReader(r.Body))
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}
