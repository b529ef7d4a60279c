package oauth

import (
	"net/http"

	"github.com/giantswarm/mcp-oauth-proxy/security"
)

const (
	// DefaultMetricsPath is where the Prometheus scrape endpoint is mounted
	DefaultMetricsPath = "/metrics"

	authorizationServerMetadataPath = "/.well-known/oauth-authorization-server"
	protectedResourceMetadataPath   = "/.well-known/oauth-protected-resource"
	authorizePath                   = "/authorize"
	tokenPath                       = "/oauth/token"
	healthPath                      = "/health"
)

// Routes returns the complete HTTP surface of the proxy. Requests to the protected
// path (and everything below it) pass the access gate and are then served by upstream.
// The metrics endpoint is mounted at metricsPath when the Prometheus exporter is active.
//
// Example usage:
//
//	handler := oauth.NewHandler(srv, logger)
//	httpServer := &http.Server{Addr: ":8101", Handler: handler.Routes(reverseProxy, "/metrics")}
func (h *Handler) Routes(upstream http.Handler, metricsPath string) http.Handler {
	mux := http.NewServeMux()

	resourcePath := h.server.Config.ResourcePath

	mux.HandleFunc(authorizationServerMetadataPath, h.ServeAuthorizationServerMetadata)
	mux.HandleFunc(protectedResourceMetadataPath, h.ServeProtectedResourceMetadata)
	mux.HandleFunc(protectedResourceMetadataPath+resourcePath, h.ServeProtectedResourceMetadata)
	mux.HandleFunc(authorizePath, h.ServeAuthorization)
	mux.HandleFunc(tokenPath, h.ServeToken)
	mux.HandleFunc(healthPath, h.ServeHealth)

	if metricsHandler := h.server.Instrumentation.MetricsHandler(); metricsHandler != nil {
		if metricsPath == "" {
			metricsPath = DefaultMetricsPath
		}
		mux.Handle(metricsPath, metricsHandler)
		h.logger.Info("Serving Prometheus metrics", "path", metricsPath)
	}

	gated := h.ValidateToken(upstream)
	mux.Handle(resourcePath, gated)
	mux.Handle(resourcePath+"/", gated)

	return security.RequestIDMiddleware(h.withClientIP(mux))
}
