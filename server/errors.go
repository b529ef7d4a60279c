package server

import (
	"errors"
	"fmt"
)

// Sentinel errors for OAuth protocol failures. The HTTP layer maps each one to an
// RFC 6749 error code and status with errors.Is.
var (
	ErrInvalidRequest          = errors.New("invalid_request")
	ErrInvalidClient           = errors.New("invalid_client")
	ErrInvalidGrant            = errors.New("invalid_grant")
	ErrUnsupportedResponseType = errors.New("unsupported_response_type")
	ErrInvalidRedirectURI      = errors.New("invalid_redirect_uri")
	ErrInvalidToken            = errors.New("invalid_token")
)

// Error is an OAuth protocol failure. Description is safe to return to clients;
// internal reasons are logged instead.
type Error struct {
	Kind        error
	Description string
}

func (e *Error) Error() string {
	if e.Description == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Description
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Description: fmt.Sprintf(format, args...)}
}

// ErrorDescription returns the client-safe description carried by err, or "".
func ErrorDescription(err error) string {
	var oauthErr *Error
	if errors.As(err, &oauthErr) {
		return oauthErr.Description
	}
	return ""
}

// IsProtocolError reports whether err is an OAuth protocol failure rather than an internal error
func IsProtocolError(err error) bool {
	var oauthErr *Error
	return errors.As(err, &oauthErr)
}
