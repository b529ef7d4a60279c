package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/mcp-oauth-proxy/instrumentation"
	"github.com/giantswarm/mcp-oauth-proxy/security"
	"github.com/giantswarm/mcp-oauth-proxy/storage"
)

const (
	// tokenTypeBearer is the authentication scheme of the access gate
	tokenTypeBearer = "Bearer"

	// maxRequestBodySize bounds form and JSON bodies on the OAuth endpoints
	maxRequestBodySize = 1 << 20
)

// Endpoint labels used in HTTP metrics and spans
const (
	endpointAuthServerMetadata       = "authorization_server_metadata"
	endpointProtectedResourceMetadata = "protected_resource_metadata"
	endpointAuthorize                = "authorize"
	endpointToken                    = "token"
	endpointHealth                   = "health"
	endpointGate                     = "gate"
)

type accessTokenContextKey struct{}

// ContextWithAccessToken returns a context carrying the validated token record
func ContextWithAccessToken(ctx context.Context, token *storage.AccessToken) context.Context {
	return context.WithValue(ctx, accessTokenContextKey{}, token)
}

// AccessTokenFromContext returns the token record validated by the access gate, if any
func AccessTokenFromContext(ctx context.Context) (*storage.AccessToken, bool) {
	token, ok := ctx.Value(accessTokenContextKey{}).(*storage.AccessToken)
	return token, ok
}

// Handler is a thin HTTP adapter for the OAuth Server.
// It handles HTTP requests and delegates to the Server for business logic.
type Handler struct {
	server *Server
	logger *slog.Logger
	tracer trace.Tracer // OpenTelemetry tracer for HTTP layer
}

// NewHandler creates a new HTTP handler
func NewHandler(server *Server, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		server: server,
		logger: logger,
	}

	if server.Instrumentation != nil {
		h.tracer = server.Instrumentation.Tracer("http")
	}

	return h
}

// startSpan starts an HTTP span when tracing is available
func (h *Handler) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if h.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return h.tracer.Start(ctx, "oauth.http."+name)
}

// requestLogger returns the handler logger annotated with the request ID
func (h *Handler) requestLogger(r *http.Request) *slog.Logger {
	return security.LoggerWithRequestID(r.Context(), h.logger)
}

// withClientIP stores the client IP in the request context for auditing
func (h *Handler) withClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := security.ClientIP(r, h.server.Config.TrustProxy, h.server.Config.TrustedProxyCount)
		next.ServeHTTP(w, r.WithContext(security.WithClientIP(r.Context(), ip)))
	})
}

// ValidateToken is middleware that admits requests carrying a live bearer token.
// Admitted requests are forwarded unmodified, including the Authorization header.
func (h *Handler) ValidateToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		ctx, span := h.startSpan(r.Context(), "validate_token")
		defer span.End()

		accessToken, ok := extractBearerToken(r.Header.Get("Authorization"))
		if !ok {
			h.requestLogger(r).Debug("Rejected request without bearer token", "path", r.URL.Path)
			instrumentation.SetSpanError(span, "missing or malformed bearer token")
			h.writeUnauthorizedError(w, ErrUnauthorized("missing or malformed bearer token"))
			h.recordHTTPMetrics(ctx, endpointGate, r.Method, http.StatusUnauthorized, startTime)
			return
		}

		record, err := h.server.ValidateAccessToken(ctx, accessToken)
		if err != nil {
			oauthErr := oauthErrorFromServer(err)
			if oauthErr.Status == http.StatusInternalServerError {
				h.requestLogger(r).Error("Token validation failed", "error", err)
				h.writeError(w, oauthErr)
			} else {
				h.requestLogger(r).Warn("Token validation failed",
					"ip", security.ClientIPFromContext(ctx),
					"reason", oauthErr.Description)
				h.writeUnauthorizedError(w, oauthErr)
			}
			instrumentation.RecordError(span, err)
			h.recordHTTPMetrics(ctx, endpointGate, r.Method, oauthErr.Status, startTime)
			return
		}

		instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrClientID, record.ClientID))
		instrumentation.SetSpanSuccess(span)

		next.ServeHTTP(w, r.WithContext(ContextWithAccessToken(ctx, record)))
	})
}

// extractBearerToken returns the token of an "Authorization: Bearer <token>" header.
// The scheme is matched case-insensitively and the token must be non-empty.
func extractBearerToken(authHeader string) (string, bool) {
	scheme, token, found := strings.Cut(authHeader, " ")
	if !found || !strings.EqualFold(scheme, tokenTypeBearer) {
		return "", false
	}

	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}
	return token, true
}

// ServeProtectedResourceMetadata serves RFC 9728 Protected Resource Metadata
func (h *Handler) ServeProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	startTime := time.Now()

	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	h.writeJSON(w, http.StatusOK, ProtectedResourceMetadata{
		Resource:               h.server.Config.ResourceURL(),
		AuthorizationServers:   []string{h.server.Config.Issuer},
		BearerMethodsSupported: []string{"header"},
	})
	h.recordHTTPMetrics(r.Context(), endpointProtectedResourceMetadata, r.Method, http.StatusOK, startTime)
}

// ServeAuthorizationServerMetadata serves RFC 8414 Authorization Server Metadata
func (h *Handler) ServeAuthorizationServerMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	startTime := time.Now()

	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	h.writeJSON(w, http.StatusOK, h.buildAuthServerMetadata())
	h.recordHTTPMetrics(r.Context(), endpointAuthServerMetadata, r.Method, http.StatusOK, startTime)
}

// buildAuthServerMetadata builds the RFC 8414 authorization server metadata.
func (h *Handler) buildAuthServerMetadata() AuthorizationServerMetadata {
	return AuthorizationServerMetadata{
		Issuer:                            h.server.Config.Issuer,
		AuthorizationEndpoint:             h.server.Config.AuthorizationEndpoint(),
		TokenEndpoint:                     h.server.Config.TokenEndpoint(),
		ResponseTypesSupported:            SupportedResponseTypes,
		GrantTypesSupported:               SupportedGrantTypes,
		CodeChallengeMethodsSupported:     SupportedPKCEMethods,
		TokenEndpointAuthMethodsSupported: SupportedTokenAuthMethods,
	}
}

// ServeHealth reports liveness
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	startTime := time.Now()

	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
	h.recordHTTPMetrics(r.Context(), endpointHealth, r.Method, http.StatusOK, startTime)
}

// writeJSON writes v as a JSON response body
func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Debug("Failed to write response body", "error", err)
	}
}

// writeError writes an RFC 6749 section 5.2 JSON error response
func (h *Handler) writeError(w http.ResponseWriter, oauthErr *OAuthError) {
	security.SetSecurityHeaders(w, h.server.Config.Issuer)

	if oauthErr.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", h.formatWWWAuthenticate(oauthErr))
	}

	h.writeJSON(w, oauthErr.Status, ErrorResponse{
		Error:            oauthErr.Code,
		ErrorDescription: oauthErr.Description,
	})
}

// writeUnauthorizedError writes a 401 response of the access gate
func (h *Handler) writeUnauthorizedError(w http.ResponseWriter, oauthErr *OAuthError) {
	oauthErr.Status = http.StatusUnauthorized
	h.writeError(w, oauthErr)
}

// writePlainError writes a plain-text error for browser-facing endpoints where no
// redirect to the client is possible.
func (h *Handler) writePlainError(w http.ResponseWriter, oauthErr *OAuthError) {
	security.SetSecurityHeaders(w, h.server.Config.Issuer)

	body := oauthErr.Code
	if oauthErr.Description != "" {
		body += ": " + oauthErr.Description
	}
	http.Error(w, body, oauthErr.Status)
}

// formatWWWAuthenticate formats the WWW-Authenticate header value per RFC 6750 and RFC 9728.
// The resource_metadata URL is always present; error details are only added for
// invalid_token, since RFC 6750 section 3.1 defines no error code for missing credentials.
//
// Example output:
//
//	Bearer resource_metadata="https://example.com/.well-known/oauth-protected-resource", error="invalid_token", error_description="token expired"
func (h *Handler) formatWWWAuthenticate(oauthErr *OAuthError) string {
	params := []string{
		fmt.Sprintf(`resource_metadata="%s"`, h.server.Config.ProtectedResourceMetadataEndpoint()),
	}

	if oauthErr.Code == ErrorCodeInvalidToken {
		params = append(params, fmt.Sprintf(`error="%s"`, oauthErr.Code))
		if oauthErr.Description != "" {
			params = append(params, fmt.Sprintf(`error_description="%s"`, quoteHeaderValue(oauthErr.Description)))
		}
	}

	return tokenTypeBearer + " " + strings.Join(params, ", ")
}

// quoteHeaderValue escapes a value for use inside an HTTP quoted-string
func quoteHeaderValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

// recordHTTPMetrics records HTTP request metrics (total count and duration) and
// annotates the request span
func (h *Handler) recordHTTPMetrics(ctx context.Context, endpoint, method string, status int, startTime time.Time) {
	inst := h.server.Instrumentation
	if inst == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	instrumentation.AddHTTPAttributes(span, method, endpoint, status)
	if inst.ShouldLogClientIPs() {
		instrumentation.AddSecurityAttributes(span, security.ClientIPFromContext(ctx))
	}

	duration := time.Since(startTime).Seconds() * 1000 // convert to milliseconds
	inst.Metrics().RecordHTTPRequest(ctx, method, endpoint, status, duration)
}
