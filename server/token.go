package server

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/giantswarm/mcp-oauth-proxy/instrumentation"
	"github.com/giantswarm/mcp-oauth-proxy/internal/util"
	"github.com/giantswarm/mcp-oauth-proxy/security"
	"github.com/giantswarm/mcp-oauth-proxy/storage"
)

// Grant types accepted at the token endpoint
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeClientCredentials = "client_credentials"
)

// TokenTypeBearer is the token_type of every issued token
const TokenTypeBearer = "bearer"

// Token validation results recorded in metrics
const (
	TokenResultValid   = "valid"
	TokenResultUnknown = "unknown"
	TokenResultExpired = "expired"
)

// TokenRequest holds the parameters of an authorization_code token request
type TokenRequest struct {
	Code         string
	RedirectURI  string
	ClientID     string
	ClientSecret string // optional; verified when present
	CodeVerifier string
}

// ExchangeAuthorizationCode redeems an authorization code for an access token.
// Codes are single-use: of several concurrent exchanges of one code, exactly one succeeds.
func (s *Server) ExchangeAuthorizationCode(ctx context.Context, req *TokenRequest) (*oauth2.Token, error) {
	ctx, span := s.startSpan(ctx, "exchange_authorization_code")
	defer span.End()
	instrumentation.AddOAuthFlowAttributes(span, req.ClientID, GrantTypeAuthorizationCode, "")

	token, err := s.exchangeAuthorizationCode(ctx, req)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	instrumentation.SetSpanSuccess(span)
	return token, nil
}

func (s *Server) exchangeAuthorizationCode(ctx context.Context, req *TokenRequest) (*oauth2.Token, error) {
	clientIP := security.ClientIPFromContext(ctx)

	if req.Code == "" {
		return nil, newError(ErrInvalidGrant, "code is required")
	}

	clientErr := s.ValidateClientID(req.ClientID)
	if clientErr == nil && req.ClientSecret != "" {
		clientErr = s.ValidateClientCredentials(req.ClientID, req.ClientSecret)
	}
	if clientErr != nil {
		s.metrics().RecordClientAuthFailed(ctx, GrantTypeAuthorizationCode)
		s.Auditor.LogAuthFailure(req.ClientID, clientIP, "invalid_client_credentials")
		return nil, clientErr
	}

	authCode, err := s.codeStore.GetAuthorizationCode(ctx, req.Code)
	if err != nil {
		if errors.Is(err, storage.ErrAuthorizationCodeNotFound) || errors.Is(err, storage.ErrAuthorizationCodeExpired) {
			// SECURITY: log the detail, return a generic error per RFC 6749
			s.Logger.Debug("Authorization code validation failed",
				"reason", err.Error(),
				"client_id", req.ClientID,
				"code_prefix", util.SafeTruncate(req.Code, tokenIDLogLength))
			s.Auditor.LogAuthFailure(req.ClientID, clientIP, "invalid_authorization_code")
			return nil, newError(ErrInvalidGrant, "authorization code is invalid or expired")
		}
		return nil, fmt.Errorf("failed to load authorization code: %w", err)
	}

	if authCode.ClientID != req.ClientID {
		s.Auditor.LogAuthFailure(req.ClientID, clientIP, "client_id_mismatch")
		return nil, newError(ErrInvalidGrant, "authorization code was issued to another client")
	}

	if authCode.RedirectURI != req.RedirectURI {
		s.Logger.Debug("Authorization code validation failed",
			"reason", "redirect_uri_mismatch",
			"client_id", req.ClientID,
			"code_prefix", util.SafeTruncate(req.Code, tokenIDLogLength))
		s.Auditor.LogAuthFailure(req.ClientID, clientIP, "redirect_uri_mismatch")
		return nil, newError(ErrInvalidGrant, "redirect_uri does not match")
	}

	if err := s.checkCodeVerifier(ctx, authCode, req.CodeVerifier); err != nil {
		return nil, err
	}

	// Consume the code. Only one caller can delete it; a concurrent or repeated
	// exchange finds it gone and fails.
	if err := s.codeStore.DeleteAuthorizationCode(ctx, req.Code); err != nil {
		if errors.Is(err, storage.ErrAuthorizationCodeNotFound) {
			s.metrics().RecordCodeReuseDetected(ctx)
			instrumentation.SetSpanAttributes(trace.SpanFromContext(ctx), attribute.Bool(instrumentation.AttrCodeReuse, true))
			s.Auditor.LogCodeReuse(req.ClientID, clientIP, req.Code)
			s.Logger.Warn("Authorization code reuse detected",
				"client_id", req.ClientID,
				"code_prefix", util.SafeTruncate(req.Code, tokenIDLogLength))
			return nil, newError(ErrInvalidGrant, "authorization code is invalid or expired")
		}
		return nil, fmt.Errorf("failed to consume authorization code: %w", err)
	}

	s.metrics().RecordCodeExchange(ctx, req.ClientID, authCode.CodeChallengeMethod)
	return s.issueAccessToken(ctx, req.ClientID, GrantTypeAuthorizationCode, authCode.Scope)
}

// checkCodeVerifier enforces PKCE for a code that was issued with a challenge
func (s *Server) checkCodeVerifier(ctx context.Context, authCode *storage.AuthorizationCode, verifier string) error {
	if authCode.CodeChallenge == "" {
		return nil
	}

	clientIP := security.ClientIPFromContext(ctx)

	if verifier == "" {
		if s.Config.AllowMissingPKCEVerifier {
			s.Logger.Warn("Accepting authorization code without code_verifier",
				"client_id", authCode.ClientID,
				"setting", "AllowMissingPKCEVerifier")
			return nil
		}
		s.metrics().RecordPKCEValidationFailed(ctx, authCode.CodeChallengeMethod)
		s.Auditor.LogPKCEFailure(authCode.ClientID, clientIP, "missing_code_verifier")
		return newError(ErrInvalidGrant, "code_verifier is required")
	}

	if !VerifyPKCE(verifier, authCode.CodeChallenge) {
		reason := "challenge_mismatch"
		if err := validateCodeVerifier(verifier); err != nil {
			reason = err.Error()
		}
		s.metrics().RecordPKCEValidationFailed(ctx, authCode.CodeChallengeMethod)
		s.Auditor.LogPKCEFailure(authCode.ClientID, clientIP, reason)
		return newError(ErrInvalidGrant, "code_verifier does not match code_challenge")
	}

	return nil
}

// IssueClientCredentialsToken authenticates the client and issues an access token
// (RFC 6749 section 4.4).
func (s *Server) IssueClientCredentialsToken(ctx context.Context, clientID, clientSecret, scope string) (*oauth2.Token, error) {
	ctx, span := s.startSpan(ctx, "client_credentials")
	defer span.End()
	instrumentation.AddOAuthFlowAttributes(span, clientID, GrantTypeClientCredentials, scope)

	if err := s.ValidateClientCredentials(clientID, clientSecret); err != nil {
		s.metrics().RecordClientAuthFailed(ctx, GrantTypeClientCredentials)
		s.Auditor.LogAuthFailure(clientID, security.ClientIPFromContext(ctx), "invalid_client_credentials")
		recordSpanError(span, err)
		return nil, err
	}

	token, err := s.issueAccessToken(ctx, clientID, GrantTypeClientCredentials, scope)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	instrumentation.SetSpanSuccess(span)
	return token, nil
}

// issueAccessToken mints, stores and returns a new access token, then sweeps
// expired tokens from the store.
func (s *Server) issueAccessToken(ctx context.Context, clientID, grantType, scope string) (*oauth2.Token, error) {
	issuedAt := s.now()
	expiresAt := issuedAt.Add(s.Config.AccessTokenTTL)

	accessToken, err := mintAndSave(func(value string) error {
		return s.tokenStore.SaveAccessToken(ctx, &storage.AccessToken{
			Token:     value,
			ClientID:  clientID,
			GrantType: grantType,
			Scope:     scope,
			IssuedAt:  issuedAt,
			ExpiresAt: expiresAt,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save access token: %w", err)
	}

	if removed, err := s.tokenStore.DeleteExpiredAccessTokens(ctx); err != nil {
		s.Logger.Warn("Failed to sweep expired access tokens", "error", err)
	} else if removed > 0 {
		s.Logger.Debug("Swept expired access tokens", "removed", removed)
	}

	expiresIn := security.SecondsUntil(expiresAt, issuedAt)
	instrumentation.SetSpanAttributes(trace.SpanFromContext(ctx), attribute.Int64(instrumentation.AttrExpiresIn, expiresIn))
	token := &oauth2.Token{
		AccessToken: accessToken,
		TokenType:   TokenTypeBearer,
		Expiry:      expiresAt,
		ExpiresIn:   expiresIn,
	}
	if scope != "" {
		token = token.WithExtra(map[string]any{"scope": scope})
	}

	s.metrics().RecordTokenIssued(ctx, grantType)
	s.Auditor.LogTokenIssued(clientID, security.ClientIPFromContext(ctx), grantType, accessToken)
	s.Logger.Info("Access token issued",
		"client_id", clientID,
		"grant_type", grantType,
		"expires_in", expiresIn,
		"token_prefix", util.SafeTruncate(accessToken, tokenIDLogLength))

	return token, nil
}

// ValidateAccessToken returns the stored record of a live access token.
// Unknown and expired tokens fail with ErrInvalidToken; expired ones are evicted by the store.
func (s *Server) ValidateAccessToken(ctx context.Context, accessToken string) (*storage.AccessToken, error) {
	ctx, span := s.startSpan(ctx, "validate_access_token")
	defer span.End()

	if accessToken == "" {
		err := newError(ErrInvalidToken, "token is missing")
		recordSpanError(span, err)
		return nil, err
	}

	record, err := s.tokenStore.GetAccessToken(ctx, accessToken)
	if err != nil {
		var result, description string
		switch {
		case errors.Is(err, storage.ErrTokenExpired):
			result, description = TokenResultExpired, "token expired"
		case errors.Is(err, storage.ErrTokenNotFound):
			result, description = TokenResultUnknown, "token is not recognized"
		default:
			recordSpanError(span, err)
			return nil, fmt.Errorf("failed to load access token: %w", err)
		}

		s.metrics().RecordTokenValidation(ctx, result)
		instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrTokenResult, result))
		s.Auditor.LogInvalidToken(security.ClientIPFromContext(ctx), result)

		oauthErr := newError(ErrInvalidToken, "%s", description)
		recordSpanError(span, oauthErr)
		return nil, oauthErr
	}

	// The store evicts on its own clock; the server clock is authoritative for callers
	if record.IsExpired(s.now()) {
		if err := s.tokenStore.DeleteAccessToken(ctx, accessToken); err != nil && !errors.Is(err, storage.ErrTokenNotFound) {
			s.Logger.Warn("Failed to evict expired access token", "error", err)
		}
		s.metrics().RecordTokenValidation(ctx, TokenResultExpired)
		s.Auditor.LogInvalidToken(security.ClientIPFromContext(ctx), TokenResultExpired)
		oauthErr := newError(ErrInvalidToken, "token expired")
		recordSpanError(span, oauthErr)
		return nil, oauthErr
	}

	s.metrics().RecordTokenValidation(ctx, TokenResultValid)
	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrTokenResult, TokenResultValid),
		attribute.String(instrumentation.AttrClientID, record.ClientID))
	instrumentation.SetSpanSuccess(span)
	return record, nil
}
