package oauth

import (
	"bytes"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/giantswarm/mcp-oauth-proxy/instrumentation"
	"github.com/giantswarm/mcp-oauth-proxy/security"
	"github.com/giantswarm/mcp-oauth-proxy/server"
)

// authorizationRequestFrom reads the authorization request parameters from values
func authorizationRequestFrom(values url.Values) *server.AuthorizationRequest {
	return &server.AuthorizationRequest{
		ResponseType:        values.Get("response_type"),
		ClientID:            values.Get("client_id"),
		RedirectURI:         values.Get("redirect_uri"),
		CodeChallenge:       values.Get("code_challenge"),
		CodeChallengeMethod: values.Get("code_challenge_method"),
		State:               values.Get("state"),
		Scope:               values.Get("scope"),
	}
}

// ServeAuthorization handles the authorization endpoint. GET renders the approval
// page; POST applies the approver's decision.
func (h *Handler) ServeAuthorization(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.serveApprovalPage(w, r)
	case http.MethodPost:
		h.handleAuthorizationDecision(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) serveApprovalPage(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.startSpan(r.Context(), "authorization")
	defer span.End()

	req := authorizationRequestFrom(r.URL.Query())
	if err := h.server.ValidateAuthorizationRequest(ctx, req); err != nil {
		oauthErr := oauthErrorFromServer(err)
		h.requestLogger(r).Info("Rejected authorization request",
			"client_id", req.ClientID,
			"error", oauthErr.Code,
			"description", oauthErr.Description)
		instrumentation.RecordError(span, err)
		h.writePlainError(w, oauthErr)
		h.recordHTTPMetrics(ctx, endpointAuthorize, r.Method, oauthErr.Status, startTime)
		return
	}

	view := approvalView{
		Action:              r.URL.Path,
		Resource:            h.server.Config.ResourceURL(),
		ResponseType:        req.ResponseType,
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		State:               req.State,
		Scope:               req.Scope,
	}

	// Render into a buffer so a template failure can still produce a clean 500
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "approval.html", view); err != nil {
		h.requestLogger(r).Error("Failed to render approval page", "error", err)
		instrumentation.RecordError(span, err)
		h.writePlainError(w, ErrServerError("failed to render approval page"))
		h.recordHTTPMetrics(ctx, endpointAuthorize, r.Method, http.StatusInternalServerError, startTime)
		return
	}

	security.SetPageSecurityHeaders(w, h.server.Config.Issuer)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())

	instrumentation.SetSpanSuccess(span)
	h.recordHTTPMetrics(ctx, endpointAuthorize, r.Method, http.StatusOK, startTime)
}

func (h *Handler) handleAuthorizationDecision(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.startSpan(r.Context(), "authorization_decision")
	defer span.End()

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := r.ParseForm(); err != nil {
		h.writePlainError(w, ErrInvalidRequest("failed to parse form"))
		h.recordHTTPMetrics(ctx, endpointAuthorize, r.Method, http.StatusBadRequest, startTime)
		return
	}

	req := authorizationRequestFrom(r.PostForm)

	var (
		location string
		err      error
	)
	if r.PostForm.Get("action") == server.DecisionApprove {
		instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrDecision, server.DecisionApprove))
		location, err = h.server.ApproveAuthorization(ctx, req)
	} else {
		instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrDecision, server.DecisionDeny))
		location, err = h.server.DenyAuthorization(ctx, req.RedirectURI, req.State)
	}

	if err != nil {
		oauthErr := oauthErrorFromServer(err)
		if oauthErr.Status == http.StatusInternalServerError {
			h.requestLogger(r).Error("Authorization decision failed", "client_id", req.ClientID, "error", err)
		} else {
			h.requestLogger(r).Info("Rejected authorization decision",
				"client_id", req.ClientID,
				"error", oauthErr.Code,
				"description", oauthErr.Description)
		}
		instrumentation.RecordError(span, err)
		h.writePlainError(w, oauthErr)
		h.recordHTTPMetrics(ctx, endpointAuthorize, r.Method, oauthErr.Status, startTime)
		return
	}

	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	w.Header().Set("Location", location)
	w.WriteHeader(http.StatusFound)

	instrumentation.SetSpanSuccess(span)
	h.recordHTTPMetrics(ctx, endpointAuthorize, r.Method, http.StatusFound, startTime)
}
