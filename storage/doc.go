// Package storage provides the interfaces and record types for authorization code and
// access token persistence.
//
// The storage package defines the two stores used by the authorization server:
//   - CodeStore: authorization codes between user approval and token exchange
//   - TokenStore: issued bearer tokens and their absolute expiry
//
// Implementations are provided in subpackages:
//   - storage/memory: In-memory storage with a background expiry sweep
//   - storage/mock: Mock storage with injectable behaviour for unit testing
//
// Nothing is persisted across restarts; every code and token is lost when the process exits.
package storage
