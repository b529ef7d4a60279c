// Package envconfig loads the proxy configuration from the process environment.
package envconfig

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/giantswarm/mcp-oauth-proxy/instrumentation"
	"github.com/giantswarm/mcp-oauth-proxy/internal/util"
	"github.com/giantswarm/mcp-oauth-proxy/server"
)

// Log formats accepted by LOG_FORMAT
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config is the complete runtime configuration of the proxy
type Config struct {
	ClientID     string `env:"CLIENT_ID,required,notEmpty"`
	ClientSecret string `env:"CLIENT_SECRET,required,notEmpty"`
	BaseURL      string `env:"BASE_URL,required,notEmpty"`

	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8101"`

	DownstreamURL          string        `env:"DOWNSTREAM_URL" envDefault:"http://localhost:8100"`
	DownstreamCommand      string        `env:"DOWNSTREAM_COMMAND"`
	DownstreamReadyTimeout time.Duration `env:"DOWNSTREAM_READY_TIMEOUT" envDefault:"30s"`
	DownstreamHealthPath   string        `env:"DOWNSTREAM_HEALTH_PATH" envDefault:"/"`

	ProtectedPath            string        `env:"PROTECTED_PATH" envDefault:"/mcp"`
	AuthorizationCodeTTL     time.Duration `env:"AUTHORIZATION_CODE_TTL" envDefault:"10m"`
	AccessTokenTTL           time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"1h"`
	AllowMissingPKCEVerifier bool          `env:"PKCE_ALLOW_MISSING_VERIFIER" envDefault:"false"`
	AllowedRedirectURIs      []string      `env:"ALLOWED_REDIRECT_URIS" envSeparator:","`
	CleanupInterval          time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1m"`

	TrustProxy        bool `env:"TRUST_PROXY" envDefault:"false"`
	TrustedProxyCount int  `env:"TRUSTED_PROXY_COUNT" envDefault:"1"`

	AuditEnabled bool `env:"AUDIT_ENABLED" envDefault:"true"`

	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text"`

	MetricsExporter string `env:"METRICS_EXPORTER" envDefault:"none"`
	MetricsPath     string `env:"METRICS_PATH" envDefault:"/metrics"`
	TracesExporter  string `env:"TRACES_EXPORTER" envDefault:"none"`
	LogClientIPs    bool   `env:"LOG_CLIENT_IPS" envDefault:"false"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// Load parses the process environment
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses the given variables instead of the process environment
func LoadFrom(environment map[string]string) (*Config, error) {
	return parse(env.Options{Environment: environment})
}

func parse(opts env.Options) (*Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	cfg.AllowedRedirectURIs = trimEmpty(cfg.AllowedRedirectURIs)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values the env tags cannot express
func (c *Config) Validate() error {
	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		return fmt.Errorf("LOG_FORMAT must be %q or %q, got %q", LogFormatText, LogFormatJSON, c.LogFormat)
	}
	if c.DownstreamReadyTimeout < 0 {
		return errors.New("DOWNSTREAM_READY_TIMEOUT must not be negative")
	}
	if c.CleanupInterval <= 0 {
		return errors.New("CLEANUP_INTERVAL must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("SHUTDOWN_TIMEOUT must be positive")
	}
	if c.TrustedProxyCount < 1 {
		return errors.New("TRUSTED_PROXY_COUNT must be at least 1")
	}
	if !strings.HasPrefix(c.MetricsPath, "/") {
		return errors.New("METRICS_PATH must start with /")
	}
	return nil
}

// ServerConfig maps the environment onto the OAuth server configuration
func (c *Config) ServerConfig() *server.Config {
	return &server.Config{
		Issuer:                   c.BaseURL,
		ClientID:                 c.ClientID,
		ClientSecret:             c.ClientSecret,
		AuthorizationCodeTTL:     c.AuthorizationCodeTTL,
		AccessTokenTTL:           c.AccessTokenTTL,
		AllowMissingPKCEVerifier: c.AllowMissingPKCEVerifier,
		AllowedRedirectURIs:      c.AllowedRedirectURIs,
		ResourcePath:             c.ProtectedPath,
		TrustProxy:               c.TrustProxy,
		TrustedProxyCount:        c.TrustedProxyCount,
	}
}

// InstrumentationConfig maps the environment onto the instrumentation configuration
func (c *Config) InstrumentationConfig(version string) instrumentation.Config {
	return instrumentation.Config{
		ServiceName:     instrumentation.DefaultServiceName,
		ServiceVersion:  version,
		Enabled:         c.MetricsExporter != instrumentation.ExporterNone || c.TracesExporter != instrumentation.ExporterNone,
		MetricsExporter: c.MetricsExporter,
		TracesExporter:  c.TracesExporter,
		LogClientIPs:    c.LogClientIPs,
	}
}

// ReadinessURL is the downstream URL polled before the listener opens
func (c *Config) ReadinessURL() string {
	return util.JoinURL(c.DownstreamURL, c.DownstreamHealthPath)
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT
func (c *Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == LogFormatJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func trimEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
