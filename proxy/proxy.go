package proxy

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/giantswarm/mcp-oauth-proxy/instrumentation"
	"github.com/giantswarm/mcp-oauth-proxy/security"
)

// badGatewayBody is returned when the origin cannot be reached
const badGatewayBody = `{"error":"bad_gateway"}` + "\n"

// Proxy is a reverse proxy to a single downstream origin
type Proxy struct {
	target          *url.URL
	reverseProxy    *httputil.ReverseProxy
	logger          *slog.Logger
	instrumentation *instrumentation.Instrumentation
	transport       http.RoundTripper
}

// Option configures a Proxy
type Option func(*Proxy)

// WithLogger sets the logger (default: slog.Default())
func WithLogger(logger *slog.Logger) Option {
	return func(p *Proxy) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithInstrumentation enables proxy metrics and traced outgoing requests
func WithInstrumentation(inst *instrumentation.Instrumentation) Option {
	return func(p *Proxy) {
		p.instrumentation = inst
	}
}

// WithTransport replaces the base transport (default: http.DefaultTransport)
func WithTransport(rt http.RoundTripper) Option {
	return func(p *Proxy) {
		if rt != nil {
			p.transport = rt
		}
	}
}

// New creates a reverse proxy to target
func New(target *url.URL, opts ...Option) *Proxy {
	p := &Proxy{
		target:    target,
		logger:    slog.Default(),
		transport: http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.reverseProxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			// SetURL also clears Out.Host, so the origin sees its own host name
			pr.SetURL(p.target)
			pr.SetXForwarded()
		},
		Transport:     p.tracedTransport(),
		FlushInterval: -1,
		ErrorHandler:  p.handleError,
	}

	return p
}

// tracedTransport wraps the base transport with otelhttp when instrumentation is set
func (p *Proxy) tracedTransport() http.RoundTripper {
	if p.instrumentation == nil {
		return p.transport
	}

	opts := []otelhttp.Option{
		otelhttp.WithTracerProvider(p.instrumentation.TracerProvider()),
		otelhttp.WithMeterProvider(p.instrumentation.MeterProvider()),
	}
	if propagator := p.instrumentation.Propagator(); propagator != nil {
		opts = append(opts, otelhttp.WithPropagators(propagator))
	}
	return otelhttp.NewTransport(p.transport, opts...)
}

// ServeHTTP forwards r to the origin
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

	p.reverseProxy.ServeHTTP(rec, r)

	if p.instrumentation != nil {
		duration := time.Since(startTime).Seconds() * 1000
		p.instrumentation.Metrics().RecordProxyRequest(r.Context(), r.Method, rec.status, duration, rec.err)
	}
}

func (p *Proxy) handleError(w http.ResponseWriter, r *http.Request, err error) {
	logger := security.LoggerWithRequestID(r.Context(), p.logger)

	if rec, ok := w.(*statusRecorder); ok {
		rec.err = err
	}

	if errors.Is(err, context.Canceled) {
		logger.Debug("Client went away before the origin answered", "path", r.URL.Path)
	} else {
		logger.Warn("Downstream request failed",
			"target", p.target.Redacted(),
			"path", r.URL.Path,
			"error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	_, _ = w.Write([]byte(badGatewayBody))
}

// statusRecorder captures the response status for metrics. Unwrap lets
// http.ResponseController reach the underlying writer for flushing.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	err         error
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wroteHeader = true
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}
