package server

import (
	"errors"
	"testing"

	"github.com/giantswarm/mcp-oauth-proxy/internal/testutil"
)

func TestServer_ValidateClientID(t *testing.T) {
	srv, _, _ := newTestServer(t)

	tests := []struct {
		name     string
		clientID string
		wantErr  bool
	}{
		{name: "configured client", clientID: testutil.TestClientID},
		{name: "empty", clientID: "", wantErr: true},
		{name: "other client", clientID: "other-client", wantErr: true},
		{name: "prefix of configured client", clientID: "test-client", wantErr: true},
		{name: "different case", clientID: "TEST-CLIENT-ID", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := srv.ValidateClientID(tt.clientID)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateClientID() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidClient) {
				t.Errorf("ValidateClientID() error = %v, want ErrInvalidClient", err)
			}
		})
	}
}

func TestServer_ValidateClientCredentials(t *testing.T) {
	srv, _, _ := newTestServer(t)

	tests := []struct {
		name     string
		clientID string
		secret   string
		wantErr  bool
	}{
		{name: "valid credentials", clientID: testutil.TestClientID, secret: testutil.TestClientSecret},
		{name: "wrong secret", clientID: testutil.TestClientID, secret: "wrong", wantErr: true},
		{name: "empty secret", clientID: testutil.TestClientID, secret: "", wantErr: true},
		{name: "wrong client", clientID: "other", secret: testutil.TestClientSecret, wantErr: true},
		{name: "both wrong", clientID: "other", secret: "wrong", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := srv.ValidateClientCredentials(tt.clientID, tt.secret)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateClientCredentials() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidClient) {
				t.Errorf("ValidateClientCredentials() error = %v, want ErrInvalidClient", err)
			}
		})
	}
}

func TestServer_ValidateClientCredentials_LongSecret(t *testing.T) {
	// bcrypt alone ignores everything after 72 bytes
	long := "0123456789012345678901234567890123456789012345678901234567890123456789012345-suffix"
	srv, _, _ := newTestServer(t, func(c *Config) { c.ClientSecret = long })

	if err := srv.ValidateClientCredentials(testutil.TestClientID, long); err != nil {
		t.Fatalf("ValidateClientCredentials() error = %v", err)
	}
	if err := srv.ValidateClientCredentials(testutil.TestClientID, long[:72]+"-changed"); err == nil {
		t.Error("secret differing after byte 72 should be rejected")
	}
}
