package oauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/giantswarm/mcp-oauth-proxy/instrumentation"
	"github.com/giantswarm/mcp-oauth-proxy/security"
	"github.com/giantswarm/mcp-oauth-proxy/server"
)

// ServeToken handles the OAuth token endpoint
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	startTime := time.Now()
	ctx, span := h.startSpan(r.Context(), "token")
	defer span.End()

	req, err := h.parseTokenRequest(w, r)
	if err != nil {
		instrumentation.RecordError(span, err)
		h.writeError(w, ErrInvalidRequest(err.Error()))
		h.recordHTTPMetrics(ctx, endpointToken, r.Method, http.StatusBadRequest, startTime)
		return
	}
	instrumentation.AddOAuthFlowAttributes(span, req.ClientID, req.GrantType, req.Scope)

	var token *oauth2.Token
	switch req.GrantType {
	case server.GrantTypeClientCredentials:
		token, err = h.server.IssueClientCredentialsToken(ctx, req.ClientID, req.ClientSecret, req.Scope)
	case server.GrantTypeAuthorizationCode:
		token, err = h.server.ExchangeAuthorizationCode(ctx, &server.TokenRequest{
			Code:         req.Code,
			RedirectURI:  req.RedirectURI,
			ClientID:     req.ClientID,
			ClientSecret: req.ClientSecret,
			CodeVerifier: req.CodeVerifier,
		})
	case "":
		err = errMissingGrantType
	default:
		err = errUnsupportedGrantType
	}

	if err != nil {
		oauthErr := tokenErrorFrom(err, req.GrantType)
		if oauthErr.Status == http.StatusInternalServerError {
			h.requestLogger(r).Error("Token request failed",
				"client_id", req.ClientID,
				"grant_type", req.GrantType,
				"error", err)
		} else {
			h.requestLogger(r).Info("Rejected token request",
				"client_id", req.ClientID,
				"grant_type", req.GrantType,
				"ip", security.ClientIPFromContext(ctx),
				"error", oauthErr.Code)
		}
		instrumentation.RecordError(span, err)
		h.writeError(w, oauthErr)
		h.recordHTTPMetrics(ctx, endpointToken, r.Method, oauthErr.Status, startTime)
		return
	}

	instrumentation.SetSpanSuccess(span)
	h.writeTokenResponse(w, token)
	h.recordHTTPMetrics(ctx, endpointToken, r.Method, http.StatusOK, startTime)
}

var (
	errMissingGrantType     = errors.New("grant_type is required")
	errUnsupportedGrantType = errors.New("unsupported grant_type")
)

// tokenErrorFrom maps a token request failure to its OAuth error response
func tokenErrorFrom(err error, grantType string) *OAuthError {
	switch {
	case errors.Is(err, errMissingGrantType):
		return ErrInvalidRequest(err.Error())
	case errors.Is(err, errUnsupportedGrantType):
		return ErrUnsupportedGrantType(fmt.Sprintf("grant_type %q is not supported", grantType))
	default:
		return oauthErrorFromServer(err)
	}
}

// parseTokenRequest reads a token request from a form or JSON body.
// Credentials sent with HTTP Basic authentication take precedence over body parameters.
func (h *Handler) parseTokenRequest(w http.ResponseWriter, r *http.Request) (*tokenRequestBody, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req tokenRequestBody

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, errors.New("failed to parse JSON body")
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return nil, errors.New("failed to parse form")
		}
		req = tokenRequestBody{
			GrantType:    r.PostForm.Get("grant_type"),
			ClientID:     r.PostForm.Get("client_id"),
			ClientSecret: r.PostForm.Get("client_secret"),
			Code:         r.PostForm.Get("code"),
			RedirectURI:  r.PostForm.Get("redirect_uri"),
			CodeVerifier: r.PostForm.Get("code_verifier"),
			Scope:        r.PostForm.Get("scope"),
		}
	}

	if username, password, ok := r.BasicAuth(); ok {
		// RFC 6749 section 2.3.1: credentials are form-encoded before Basic encoding
		clientID, err := url.QueryUnescape(username)
		if err != nil {
			return nil, errors.New("malformed client_id in Authorization header")
		}
		clientSecret, err := url.QueryUnescape(password)
		if err != nil {
			return nil, errors.New("malformed client_secret in Authorization header")
		}
		req.ClientID = clientID
		req.ClientSecret = clientSecret
	}

	return &req, nil
}

// writeTokenResponse writes a successful RFC 6749 section 5.1 response
func (h *Handler) writeTokenResponse(w http.ResponseWriter, token *oauth2.Token) {
	security.SetSecurityHeaders(w, h.server.Config.Issuer)

	response := TokenResponse{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		ExpiresIn:   token.ExpiresIn,
	}
	if scope, ok := token.Extra("scope").(string); ok {
		response.Scope = scope
	}

	h.writeJSON(w, http.StatusOK, response)
}
