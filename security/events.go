package security

// Event type constants for security audit logging.
const (
	// Token lifecycle events

	// EventTokenIssued is logged when a new access token is issued to the client
	EventTokenIssued = "token_issued"

	// EventInvalidToken is logged when the access gate rejects a bearer token
	EventInvalidToken = "invalid_token"

	// Authorization flow events

	// EventAuthorizationCodeIssued is logged when the approver grants a request and a code is minted
	EventAuthorizationCodeIssued = "authorization_code_issued"

	// EventAuthorizationDenied is logged when the approver denies a request
	EventAuthorizationDenied = "authorization_denied"

	// EventAuthorizationCodeReuseDetected is logged when an already consumed code is presented again
	EventAuthorizationCodeReuseDetected = "authorization_code_reuse_detected"

	// Security violation events

	// EventAuthFailure is logged when client authentication fails
	EventAuthFailure = "auth_failure"

	// EventPKCEValidationFailed is logged when the code_verifier does not match the stored challenge
	EventPKCEValidationFailed = "pkce_validation_failed"

	// EventInvalidRedirect is logged when an authorization request carries a rejected redirect_uri
	EventInvalidRedirect = "invalid_redirect"
)
