// Package proxy forwards admitted requests to the downstream MCP origin.
//
// The reverse proxy rewrites the Host header to the origin, adds X-Forwarded-*
// headers, preserves the incoming path and query, and flushes every write so that
// streamable HTTP and SSE responses reach the client immediately. Outgoing
// requests carry trace context through an otelhttp transport.
//
// WaitForReady polls the origin with exponential backoff until it answers, and
// is used at startup before the listener is opened.
package proxy
