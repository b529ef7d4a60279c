package oauth

import (
	"log/slog"

	"github.com/giantswarm/mcp-oauth-proxy/server"
	"github.com/giantswarm/mcp-oauth-proxy/storage"
)

// Server is the OAuth authorization server driven by the Handler
type Server = server.Server

// ServerConfig configures a Server
type ServerConfig = server.Config

// Supported protocol values advertised in discovery metadata
var (
	SupportedResponseTypes    = []string{server.ResponseTypeCode}
	SupportedGrantTypes       = []string{server.GrantTypeAuthorizationCode}
	SupportedPKCEMethods      = []string{server.PKCEMethodS256}
	SupportedTokenAuthMethods = []string{TokenEndpointAuthMethodPost, TokenEndpointAuthMethodBasic}
)

// Token endpoint client authentication methods (RFC 7591 section 2)
const (
	TokenEndpointAuthMethodPost  = "client_secret_post"
	TokenEndpointAuthMethodBasic = "client_secret_basic"
)

// NewServer creates a new OAuth server backed by the given stores.
// A single store may serve as both codeStore and tokenStore.
func NewServer(codeStore storage.CodeStore, tokenStore storage.TokenStore, config *ServerConfig, logger *slog.Logger) (*Server, error) {
	return server.New(codeStore, tokenStore, config, logger)
}
