// Package instrumentation provides OpenTelemetry instrumentation for the authorization
// server, its storage and the downstream proxy.
//
// # Quick Start
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		Enabled:         true,
//		ServiceName:     "mcp-oauth-proxy",
//		ServiceVersion:  "1.0.0",
//		MetricsExporter: instrumentation.ExporterPrometheus,
//		TracesExporter:  instrumentation.ExporterOTLP,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
//	mux.Handle("/metrics", inst.MetricsHandler())
//
// The Prometheus exporter registers into a dedicated registry (Go runtime and process
// collectors included); MetricsHandler serves it. The OTLP trace exporter reads its
// endpoint from the standard OTEL_EXPORTER_OTLP_* environment variables.
//
// # Available Metrics
//
// HTTP Layer:
//   - oauth.http.requests.total{method, endpoint, status}
//   - oauth.http.request.duration{endpoint}
//
// OAuth Flows:
//   - oauth.authorization.requested{client_id, pkce}
//   - oauth.authorization.decided{decision}
//   - oauth.code.exchanged{client_id, pkce_method}
//   - oauth.token.issued{grant_type}
//   - oauth.token.validated{result}
//
// Security:
//   - oauth.pkce.validation_failed{method}
//   - oauth.code.reuse_detected
//   - oauth.client.auth_failed{grant_type}
//   - oauth.audit.events.total{event_type}
//
// Storage:
//   - storage.operation.total{operation, result}
//   - storage.operation.duration{operation}
//   - storage.expired.removed{type}
//   - storage.tokens.count, storage.codes.count
//
// Proxy:
//   - proxy.requests.total{method, status}
//   - proxy.request.duration{method}
//   - proxy.errors.total{method}
//
// # Security Considerations
//
// Never record token values, authorization codes, client secrets or PKCE verifiers in
// spans or metric attributes. Only metadata (grant type, validation result, expiry) is
// collected. Client IP addresses are recorded only when LogClientIPs is enabled.
//
// When disabled, no-op providers are used and recording has no measurable overhead.
package instrumentation
