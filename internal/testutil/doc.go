// Package testutil provides testing utilities and fixtures for the mcp-oauth-proxy module.
// It includes a concurrency-safe mock clock, PKCE pair generation, record fixtures,
// small assertion helpers and an httptest request builder.
package testutil
