package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"

	"github.com/giantswarm/mcp-oauth-proxy/instrumentation"
	"github.com/giantswarm/mcp-oauth-proxy/security"
	"github.com/giantswarm/mcp-oauth-proxy/storage"
)

// tokenIDLogLength is the number of characters of a code or token that may be logged
const tokenIDLogLength = 8

// maxMintAttempts bounds retries when a freshly minted value collides with a stored one
const maxMintAttempts = 3

// Server implements the OAuth 2.0 server logic for the single configured client.
type Server struct {
	codeStore  storage.CodeStore
	tokenStore storage.TokenStore

	// clientSecretHash is the bcrypt hash of the SHA-256 digest of the client secret
	clientSecretHash []byte

	Auditor         *security.Auditor
	Logger          *slog.Logger
	Config          *Config
	Instrumentation *instrumentation.Instrumentation

	tracer trace.Tracer
	now    func() time.Time
}

// New creates a new OAuth server. The client secret in config is hashed and the
// plaintext is cleared from the Config the Server keeps.
func New(codeStore storage.CodeStore, tokenStore storage.TokenStore, config *Config, logger *slog.Logger) (*Server, error) {
	if codeStore == nil {
		return nil, fmt.Errorf("code store is required")
	}
	if tokenStore == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Work on a copy so the caller's struct keeps its values
	cfg := *config
	applySecureDefaults(&cfg, logger)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword(secretDigest(cfg.ClientSecret), cfg.ClientSecretHashCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash client secret: %w", err)
	}
	cfg.ClientSecret = ""

	inst, err := instrumentation.New(instrumentation.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumentation: %w", err)
	}

	srv := &Server{
		codeStore:        codeStore,
		tokenStore:       tokenStore,
		clientSecretHash: hash,
		Config:           &cfg,
		Logger:           logger,
		now:              time.Now,
	}
	srv.SetInstrumentation(inst)

	return srv, nil
}

// SetAuditor sets the security auditor
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.Auditor = aud
}

// SetInstrumentation sets the instrumentation used for server spans and metrics.
// A nil value keeps the current instrumentation.
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	if inst == nil {
		return
	}
	s.Instrumentation = inst
	s.tracer = inst.Tracer("server")
}

// SetClock replaces the time source used to stamp and check codes and tokens
func (s *Server) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.now = now
}

// metrics returns the metric recorders
func (s *Server) metrics() *instrumentation.Metrics {
	return s.Instrumentation.Metrics()
}

// startSpan starts a server span
func (s *Server) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "oauth.server."+name)
}

// recordSpanError marks span as failed. Protocol errors also carry their OAuth error code.
func recordSpanError(span trace.Span, err error) {
	var oauthErr *Error
	if errors.As(err, &oauthErr) {
		instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrError, oauthErr.Kind.Error()))
	}
	instrumentation.RecordError(span, err)
}

// generateRandomToken returns 32 bytes from crypto/rand, base64url encoded (43 characters).
// Codes and tokens are opaque values of this form.
func generateRandomToken() string {
	return oauth2.GenerateVerifier()
}

// secretDigest maps a secret of any length into bcrypt's 72-byte input window
func secretDigest(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return []byte(hex.EncodeToString(sum[:]))
}

// mintAndSave generates a fresh value and stores it with save, retrying when the
// store reports that the value already exists.
func mintAndSave(save func(value string) error) (string, error) {
	var err error
	for attempt := 0; attempt < maxMintAttempts; attempt++ {
		value := generateRandomToken()
		if err = save(value); err == nil {
			return value, nil
		}
		if !errors.Is(err, storage.ErrDuplicateKey) {
			return "", err
		}
	}
	return "", err
}

