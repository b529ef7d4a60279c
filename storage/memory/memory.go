// Package memory provides an in-memory implementation of the storage interfaces.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/mcp-oauth-proxy/instrumentation"
	"github.com/giantswarm/mcp-oauth-proxy/internal/util"
	"github.com/giantswarm/mcp-oauth-proxy/storage"
)

const (
	// tokenIDLogLength is the number of characters to include when logging codes and tokens
	tokenIDLogLength = 8

	// storageType is reported on storage spans
	storageType = "memory"
)

// Store is an in-memory implementation of CodeStore and TokenStore.
type Store struct {
	mu sync.RWMutex

	codes  map[string]*storage.AuthorizationCode
	tokens map[string]*storage.AccessToken

	// now is the clock used for every expiry decision
	now func() time.Time

	// Instrumentation
	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer

	// Atomic counters for metrics (lock-free access during metric collection)
	tokensCountAtomic atomic.Int64
	codesCountAtomic  atomic.Int64

	// Cleanup
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	logger          *slog.Logger
}

// Compile-time interface checks
var (
	_ storage.CodeStore  = (*Store)(nil)
	_ storage.TokenStore = (*Store)(nil)
)

// New creates a new in-memory store with the default cleanup interval (1 minute)
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates a new in-memory store with a custom cleanup interval.
// If cleanupInterval is 0 or negative, uses default of 1 minute.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &Store{
		codes:           make(map[string]*storage.AuthorizationCode),
		tokens:          make(map[string]*storage.AccessToken),
		now:             time.Now,
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
	}

	// Start background cleanup
	go s.cleanupLoop()

	return s
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// SetClock replaces the time source used for expiry decisions.
// It exists for deterministic tests; production code keeps time.Now.
func (s *Store) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}
	s.tokensCountAtomic.Store(int64(len(s.tokens)))
	s.codesCountAtomic.Store(int64(len(s.codes)))
	logger := s.logger
	s.mu.Unlock()

	if inst != nil {
		err := inst.RegisterStorageSizeCallbacks(
			func() int64 { return s.tokensCountAtomic.Load() },
			func() int64 { return s.codesCountAtomic.Load() },
		)
		if err != nil {
			logger.Warn("Failed to register storage size callbacks", "error", err)
		}
	}
}

// Stop gracefully stops the cleanup goroutine. It is safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
}

// ============================================================
// CodeStore Implementation
// ============================================================

// SaveAuthorizationCode saves an issued authorization code
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	ctx, span := s.startStorageSpan(ctx, "save_authorization_code")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "save_authorization_code", err, startTime)
	}()

	if code == nil || code.Code == "" {
		err = fmt.Errorf("invalid authorization code")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.codes[code.Code]; exists {
		err = fmt.Errorf("%w: authorization code", storage.ErrDuplicateKey)
		return err
	}

	// Store a copy so later caller mutations cannot affect the stored record
	stored := *code
	s.codes[code.Code] = &stored
	s.codesCountAtomic.Add(1)

	s.logger.Debug("Saved authorization code", "code_prefix", util.SafeTruncate(code.Code, tokenIDLogLength))
	return nil
}

// GetAuthorizationCode retrieves a live authorization code without consuming it.
// An expired code is evicted on discovery.
func (s *Store) GetAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	ctx, span := s.startStorageSpan(ctx, "get_authorization_code")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "get_authorization_code", err, startTime)
	}()

	s.mu.Lock() // write lock: an expired entry is deleted on discovery
	defer s.mu.Unlock()

	authCode, ok := s.codes[code]
	if !ok {
		err = storage.ErrAuthorizationCodeNotFound
		return nil, err
	}

	if authCode.IsExpired(s.now()) {
		delete(s.codes, code)
		s.codesCountAtomic.Add(-1)
		err = storage.ErrAuthorizationCodeExpired
		return nil, err
	}

	// Return a COPY to prevent caller from modifying our stored version
	codeCopy := *authCode
	return &codeCopy, nil
}

// DeleteAuthorizationCode consumes an authorization code.
// SECURITY: Only one caller can delete a given code; every other caller gets
// ErrAuthorizationCodeNotFound, which makes the code single-use under concurrency.
func (s *Store) DeleteAuthorizationCode(ctx context.Context, code string) error {
	ctx, span := s.startStorageSpan(ctx, "delete_authorization_code")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "delete_authorization_code", err, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.codes[code]; !ok {
		err = storage.ErrAuthorizationCodeNotFound
		return err
	}

	delete(s.codes, code)
	s.codesCountAtomic.Add(-1)
	s.logger.Debug("Deleted authorization code", "code_prefix", util.SafeTruncate(code, tokenIDLogLength))
	return nil
}

// ============================================================
// TokenStore Implementation
// ============================================================

// SaveAccessToken saves an issued access token
func (s *Store) SaveAccessToken(ctx context.Context, token *storage.AccessToken) error {
	ctx, span := s.startStorageSpan(ctx, "save_access_token")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "save_access_token", err, startTime)
	}()

	if token == nil || token.Token == "" {
		err = fmt.Errorf("invalid access token")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[token.Token]; exists {
		err = fmt.Errorf("%w: access token", storage.ErrDuplicateKey)
		return err
	}

	stored := *token
	s.tokens[token.Token] = &stored
	s.tokensCountAtomic.Add(1)

	s.logger.Debug("Saved access token",
		"token_prefix", util.SafeTruncate(token.Token, tokenIDLogLength),
		"client_id", token.ClientID,
		"expires_at", token.ExpiresAt)
	return nil
}

// GetAccessToken retrieves a live access token.
// An expired token is evicted on discovery and ErrTokenExpired is returned.
func (s *Store) GetAccessToken(ctx context.Context, token string) (*storage.AccessToken, error) {
	ctx, span := s.startStorageSpan(ctx, "get_access_token")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "get_access_token", err, startTime)
	}()

	s.mu.Lock() // write lock: an expired entry is deleted on discovery
	defer s.mu.Unlock()

	accessToken, ok := s.tokens[token]
	if !ok {
		err = storage.ErrTokenNotFound
		return nil, err
	}

	if accessToken.IsExpired(s.now()) {
		delete(s.tokens, token)
		s.tokensCountAtomic.Add(-1)
		s.logger.Debug("Evicted expired access token",
			"token_prefix", util.SafeTruncate(token, tokenIDLogLength))
		err = storage.ErrTokenExpired
		return nil, err
	}

	tokenCopy := *accessToken
	return &tokenCopy, nil
}

// DeleteAccessToken removes an access token. Unknown tokens are ignored.
func (s *Store) DeleteAccessToken(ctx context.Context, token string) error {
	ctx, span := s.startStorageSpan(ctx, "delete_access_token")
	defer span.End()

	startTime := time.Now()
	defer func() {
		s.recordStorageOperation(ctx, span, "delete_access_token", nil, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[token]; ok {
		delete(s.tokens, token)
		s.tokensCountAtomic.Add(-1)
	}
	return nil
}

// DeleteExpiredAccessTokens removes every expired access token.
func (s *Store) DeleteExpiredAccessTokens(ctx context.Context) (int, error) {
	ctx, span := s.startStorageSpan(ctx, "delete_expired_access_tokens")
	defer span.End()

	startTime := time.Now()
	defer func() {
		s.recordStorageOperation(ctx, span, "delete_expired_access_tokens", nil, startTime)
	}()

	s.mu.Lock()
	removed := s.deleteExpiredTokensLocked(s.now())
	s.mu.Unlock()

	s.recordExpiredRemoved(ctx, "access_token", removed)
	return removed, nil
}

// deleteExpiredTokensLocked removes expired tokens. Caller must hold s.mu.
func (s *Store) deleteExpiredTokensLocked(now time.Time) int {
	removed := 0
	for key, token := range s.tokens {
		if token.IsExpired(now) {
			delete(s.tokens, key)
			removed++
		}
	}
	if removed > 0 {
		s.tokensCountAtomic.Add(-int64(removed))
	}
	return removed
}

// deleteExpiredCodesLocked removes expired authorization codes. Caller must hold s.mu.
func (s *Store) deleteExpiredCodesLocked(now time.Time) int {
	removed := 0
	for key, code := range s.codes {
		if code.IsExpired(now) {
			delete(s.codes, key)
			removed++
		}
	}
	if removed > 0 {
		s.codesCountAtomic.Add(-int64(removed))
	}
	return removed
}

// ============================================================
// Cleanup
// ============================================================

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup sweeps expired codes and tokens. Live entries are never touched.
func (s *Store) cleanup() {
	s.mu.Lock()
	now := s.now()
	tokens := s.deleteExpiredTokensLocked(now)
	codes := s.deleteExpiredCodesLocked(now)
	logger := s.logger
	s.mu.Unlock()

	ctx := context.Background()
	s.recordExpiredRemoved(ctx, "access_token", tokens)
	s.recordExpiredRemoved(ctx, "authorization_code", codes)

	if tokens+codes > 0 {
		logger.Debug("Cleaned up expired entries", "tokens", tokens, "codes", codes)
	}
}

// ============================================================
// Instrumentation Helpers
// ============================================================

// startStorageSpan starts a new span for a storage operation
// Returns a context with the span attached and the span itself
func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	s.mu.RLock()
	tracer := s.tracer
	s.mu.RUnlock()

	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	ctx, span := tracer.Start(ctx, fmt.Sprintf("storage.%s", operation))
	instrumentation.AddStorageAttributes(span, operation, storageType)

	return ctx, span
}

// recordStorageOperation records metrics for a storage operation and sets span status
func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, startTime time.Time) {
	inst := s.instrumentationSnapshot()
	if inst == nil {
		return
	}

	durationMs := float64(time.Since(startTime).Microseconds()) / 1000
	result := "success"
	if err != nil {
		result = "error"
		instrumentation.RecordError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrStorageResult, result))

	inst.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}

func (s *Store) recordExpiredRemoved(ctx context.Context, kind string, count int) {
	if inst := s.instrumentationSnapshot(); inst != nil {
		inst.Metrics().RecordExpiredRemoved(ctx, kind, count)
	}
}

// instrumentationSnapshot reads the instrumentation pointer without holding the lock
// across metric recording. Deferred recorders run after the operation released s.mu.
func (s *Store) instrumentationSnapshot() *instrumentation.Instrumentation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.instrumentation
}
