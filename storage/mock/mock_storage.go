// Package mock provides mock implementations of storage interfaces for testing.
//
// Every method delegates to an exported func field. The defaults behave like a
// simple map-backed store; tests replace individual funcs to inject failures.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/giantswarm/mcp-oauth-proxy/storage"
)

// Compile-time interface checks
var (
	_ storage.CodeStore  = (*MockCodeStore)(nil)
	_ storage.TokenStore = (*MockTokenStore)(nil)
)

// callCounter records how often each mock method was invoked
type callCounter struct {
	countsMu sync.Mutex
	counts   map[string]int
}

func (c *callCounter) record(method string) {
	c.countsMu.Lock()
	defer c.countsMu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[method]++
}

// CallCount returns how many times method was called
func (c *callCounter) CallCount(method string) int {
	c.countsMu.Lock()
	defer c.countsMu.Unlock()
	return c.counts[method]
}

// ResetCallCounts resets all call counters
func (c *callCounter) ResetCallCounts() {
	c.countsMu.Lock()
	defer c.countsMu.Unlock()
	c.counts = make(map[string]int)
}

// MockCodeStore is a mock implementation of CodeStore for testing
type MockCodeStore struct {
	callCounter

	mu    sync.Mutex
	codes map[string]*storage.AuthorizationCode

	SaveFunc   func(ctx context.Context, code *storage.AuthorizationCode) error
	GetFunc    func(ctx context.Context, code string) (*storage.AuthorizationCode, error)
	DeleteFunc func(ctx context.Context, code string) error
}

// NewMockCodeStore creates a new mock code store
func NewMockCodeStore() *MockCodeStore {
	m := &MockCodeStore{
		codes: make(map[string]*storage.AuthorizationCode),
	}

	// Set default implementations
	m.SaveFunc = func(_ context.Context, code *storage.AuthorizationCode) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.codes[code.Code]; ok {
			return storage.ErrDuplicateKey
		}
		stored := *code
		m.codes[code.Code] = &stored
		return nil
	}

	m.GetFunc = func(_ context.Context, code string) (*storage.AuthorizationCode, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		authCode, ok := m.codes[code]
		if !ok {
			return nil, storage.ErrAuthorizationCodeNotFound
		}
		if authCode.IsExpired(time.Now()) {
			delete(m.codes, code)
			return nil, storage.ErrAuthorizationCodeExpired
		}
		codeCopy := *authCode
		return &codeCopy, nil
	}

	m.DeleteFunc = func(_ context.Context, code string) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.codes[code]; !ok {
			return storage.ErrAuthorizationCodeNotFound
		}
		delete(m.codes, code)
		return nil
	}

	return m
}

// SaveAuthorizationCode saves an authorization code
func (m *MockCodeStore) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	m.record("SaveAuthorizationCode")
	return m.SaveFunc(ctx, code)
}

// GetAuthorizationCode retrieves an authorization code
func (m *MockCodeStore) GetAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	m.record("GetAuthorizationCode")
	return m.GetFunc(ctx, code)
}

// DeleteAuthorizationCode consumes an authorization code
func (m *MockCodeStore) DeleteAuthorizationCode(ctx context.Context, code string) error {
	m.record("DeleteAuthorizationCode")
	return m.DeleteFunc(ctx, code)
}

// MockTokenStore is a mock implementation of TokenStore for testing
type MockTokenStore struct {
	callCounter

	mu     sync.Mutex
	tokens map[string]*storage.AccessToken

	SaveFunc          func(ctx context.Context, token *storage.AccessToken) error
	GetFunc           func(ctx context.Context, token string) (*storage.AccessToken, error)
	DeleteFunc        func(ctx context.Context, token string) error
	DeleteExpiredFunc func(ctx context.Context) (int, error)
}

// NewMockTokenStore creates a new mock token store
func NewMockTokenStore() *MockTokenStore {
	m := &MockTokenStore{
		tokens: make(map[string]*storage.AccessToken),
	}

	m.SaveFunc = func(_ context.Context, token *storage.AccessToken) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.tokens[token.Token]; ok {
			return storage.ErrDuplicateKey
		}
		stored := *token
		m.tokens[token.Token] = &stored
		return nil
	}

	m.GetFunc = func(_ context.Context, token string) (*storage.AccessToken, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		accessToken, ok := m.tokens[token]
		if !ok {
			return nil, storage.ErrTokenNotFound
		}
		if accessToken.IsExpired(time.Now()) {
			delete(m.tokens, token)
			return nil, storage.ErrTokenExpired
		}
		tokenCopy := *accessToken
		return &tokenCopy, nil
	}

	m.DeleteFunc = func(_ context.Context, token string) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.tokens, token)
		return nil
	}

	m.DeleteExpiredFunc = func(_ context.Context) (int, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		removed := 0
		now := time.Now()
		for key, token := range m.tokens {
			if token.IsExpired(now) {
				delete(m.tokens, key)
				removed++
			}
		}
		return removed, nil
	}

	return m
}

// SaveAccessToken saves an access token
func (m *MockTokenStore) SaveAccessToken(ctx context.Context, token *storage.AccessToken) error {
	m.record("SaveAccessToken")
	return m.SaveFunc(ctx, token)
}

// GetAccessToken retrieves an access token
func (m *MockTokenStore) GetAccessToken(ctx context.Context, token string) (*storage.AccessToken, error) {
	m.record("GetAccessToken")
	return m.GetFunc(ctx, token)
}

// DeleteAccessToken removes an access token
func (m *MockTokenStore) DeleteAccessToken(ctx context.Context, token string) error {
	m.record("DeleteAccessToken")
	return m.DeleteFunc(ctx, token)
}

// DeleteExpiredAccessTokens removes expired access tokens
func (m *MockTokenStore) DeleteExpiredAccessTokens(ctx context.Context) (int, error) {
	m.record("DeleteExpiredAccessTokens")
	return m.DeleteExpiredFunc(ctx)
}
