package server

import (
	"context"
	"fmt"
	"net/url"

	"go.opentelemetry.io/otel/attribute"

	"github.com/giantswarm/mcp-oauth-proxy/instrumentation"
	"github.com/giantswarm/mcp-oauth-proxy/internal/util"
	"github.com/giantswarm/mcp-oauth-proxy/security"
	"github.com/giantswarm/mcp-oauth-proxy/storage"
)

// ResponseTypeCode is the only supported response_type
const ResponseTypeCode = "code"

// Authorization decisions recorded in metrics and spans
const (
	DecisionApprove = "approve"
	DecisionDeny    = "deny"
)

// AuthorizationRequest holds the parameters of an authorization request (RFC 6749 section 4.1.1)
type AuthorizationRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	CodeChallenge       string
	CodeChallengeMethod string
	State               string
	Scope               string
}

// ValidateAuthorizationRequest checks an authorization request before the approval page
// is shown. The same checks run again when the approver submits the decision.
func (s *Server) ValidateAuthorizationRequest(ctx context.Context, req *AuthorizationRequest) error {
	ctx, span := s.startSpan(ctx, "validate_authorization_request")
	defer span.End()
	instrumentation.AddOAuthFlowAttributes(span, req.ClientID, "", req.Scope)
	instrumentation.AddPKCEAttributes(span, req.CodeChallengeMethod)
	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrResponseType, req.ResponseType),
		attribute.Bool(instrumentation.AttrStateProvided, req.State != ""))

	err := s.validateAuthorizationRequest(ctx, req)
	if err != nil {
		recordSpanError(span, err)
		return err
	}

	s.metrics().RecordAuthorizationRequested(ctx, req.ClientID, req.CodeChallenge != "")
	instrumentation.SetSpanSuccess(span)
	return nil
}

func (s *Server) validateAuthorizationRequest(ctx context.Context, req *AuthorizationRequest) error {
	if req.ResponseType != ResponseTypeCode {
		return newError(ErrUnsupportedResponseType, "response_type must be %q", ResponseTypeCode)
	}
	return s.validateGrantParameters(ctx, req)
}

// validateGrantParameters checks the fields shared by the approval page and the
// decision form. A code_challenge without a method is normalized to S256.
func (s *Server) validateGrantParameters(ctx context.Context, req *AuthorizationRequest) error {
	clientIP := security.ClientIPFromContext(ctx)

	if err := s.ValidateClientID(req.ClientID); err != nil {
		s.Auditor.LogAuthFailure(req.ClientID, clientIP, "unknown_client_id")
		return err
	}

	if err := s.validateRedirectURI(req.RedirectURI); err != nil {
		s.Logger.Debug("Rejected redirect_uri",
			"client_id", req.ClientID,
			"reason", redirectURIRejectionReason(err))
		s.Auditor.LogInvalidRedirect(req.ClientID, clientIP, req.RedirectURI, redirectURIRejectionReason(err))
		return newError(ErrInvalidRedirectURI, "%s", err.Error())
	}

	if err := validateCodeChallenge(req.CodeChallenge, req.CodeChallengeMethod); err != nil {
		return newError(ErrInvalidRequest, "%s", err.Error())
	}
	if req.CodeChallenge != "" && req.CodeChallengeMethod == "" {
		req.CodeChallengeMethod = PKCEMethodS256
	}

	return nil
}

// ApproveAuthorization mints an authorization code for an approved request and returns
// the URL to redirect the user agent to: redirect_uri?code=..[&state=..].
// The form fields come back from the browser, so client, redirect URI and PKCE
// parameters are checked again. The form need not echo response_type; if it does,
// it must still be "code".
func (s *Server) ApproveAuthorization(ctx context.Context, req *AuthorizationRequest) (string, error) {
	ctx, span := s.startSpan(ctx, "approve_authorization")
	defer span.End()
	instrumentation.AddOAuthFlowAttributes(span, req.ClientID, "", req.Scope)
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrDecision, DecisionApprove))

	if err := s.validateGrantParameters(ctx, req); err != nil {
		recordSpanError(span, err)
		return "", err
	}
	if req.ResponseType != "" && req.ResponseType != ResponseTypeCode {
		err := newError(ErrUnsupportedResponseType, "response_type must be %q", ResponseTypeCode)
		recordSpanError(span, err)
		return "", err
	}

	now := s.now()
	code, err := mintAndSave(func(value string) error {
		return s.codeStore.SaveAuthorizationCode(ctx, &storage.AuthorizationCode{
			Code:                value,
			ClientID:            req.ClientID,
			RedirectURI:         req.RedirectURI,
			Scope:               req.Scope,
			CodeChallenge:       req.CodeChallenge,
			CodeChallengeMethod: req.CodeChallengeMethod,
			CreatedAt:           now,
			ExpiresAt:           now.Add(s.Config.AuthorizationCodeTTL),
		})
	})
	if err != nil {
		recordSpanError(span, err)
		return "", fmt.Errorf("failed to save authorization code: %w", err)
	}

	location, err := buildRedirectURL(req.RedirectURI, url.Values{
		"code":  {code},
		"state": {req.State},
	})
	if err != nil {
		// Unreachable after validation; the code is dropped so it cannot leak
		_ = s.codeStore.DeleteAuthorizationCode(ctx, code)
		recordSpanError(span, err)
		return "", newError(ErrInvalidRedirectURI, "redirect_uri is not a valid URI")
	}

	s.metrics().RecordAuthorizationDecision(ctx, DecisionApprove)
	s.Auditor.LogAuthorizationCodeIssued(req.ClientID, security.ClientIPFromContext(ctx), req.RedirectURI, req.CodeChallenge != "")
	s.Logger.Info("Authorization approved",
		"client_id", req.ClientID,
		"pkce", req.CodeChallenge != "",
		"code_prefix", util.SafeTruncate(code, tokenIDLogLength))

	instrumentation.SetSpanSuccess(span)
	return location, nil
}

// DenyAuthorization returns redirect_uri?error=access_denied[&state=..].
// Nothing is validated beyond the redirect URI being parseable.
func (s *Server) DenyAuthorization(ctx context.Context, redirectURI, state string) (string, error) {
	ctx, span := s.startSpan(ctx, "deny_authorization")
	defer span.End()
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrDecision, DecisionDeny))

	location, err := buildRedirectURL(redirectURI, url.Values{
		"error": {"access_denied"},
		"state": {state},
	})
	if err != nil {
		recordSpanError(span, err)
		return "", newError(ErrInvalidRedirectURI, "redirect_uri is not a valid URI")
	}

	s.metrics().RecordAuthorizationDecision(ctx, DecisionDeny)
	s.Auditor.LogAuthorizationDenied(s.Config.ClientID, security.ClientIPFromContext(ctx), redirectURI)
	s.Logger.Info("Authorization denied")

	instrumentation.SetSpanSuccess(span)
	return location, nil
}

