package envconfig

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func requiredEnv() map[string]string {
	return map[string]string{
		"CLIENT_ID":     "client-1",
		"CLIENT_SECRET": "secret-1",
		"BASE_URL":      "https://proxy.example.com",
	}
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(requiredEnv())
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"ListenAddr", cfg.ListenAddr, ":8101"},
		{"DownstreamURL", cfg.DownstreamURL, "http://localhost:8100"},
		{"DownstreamCommand", cfg.DownstreamCommand, ""},
		{"DownstreamReadyTimeout", cfg.DownstreamReadyTimeout, 30 * time.Second},
		{"DownstreamHealthPath", cfg.DownstreamHealthPath, "/"},
		{"ProtectedPath", cfg.ProtectedPath, "/mcp"},
		{"AuthorizationCodeTTL", cfg.AuthorizationCodeTTL, 10 * time.Minute},
		{"AccessTokenTTL", cfg.AccessTokenTTL, time.Hour},
		{"AllowMissingPKCEVerifier", cfg.AllowMissingPKCEVerifier, false},
		{"AllowedRedirectURIs", len(cfg.AllowedRedirectURIs), 0},
		{"CleanupInterval", cfg.CleanupInterval, time.Minute},
		{"TrustProxy", cfg.TrustProxy, false},
		{"TrustedProxyCount", cfg.TrustedProxyCount, 1},
		{"AuditEnabled", cfg.AuditEnabled, true},
		{"LogLevel", cfg.LogLevel, slog.LevelInfo},
		{"LogFormat", cfg.LogFormat, LogFormatText},
		{"MetricsExporter", cfg.MetricsExporter, "none"},
		{"MetricsPath", cfg.MetricsPath, "/metrics"},
		{"TracesExporter", cfg.TracesExporter, "none"},
		{"LogClientIPs", cfg.LogClientIPs, false},
		{"ShutdownTimeout", cfg.ShutdownTimeout, 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestLoadFrom_Overrides(t *testing.T) {
	environment := requiredEnv()
	environment["LISTEN_ADDR"] = "127.0.0.1:9000"
	environment["DOWNSTREAM_READY_TIMEOUT"] = "0s"
	environment["ACCESS_TOKEN_TTL"] = "15m"
	environment["PKCE_ALLOW_MISSING_VERIFIER"] = "true"
	environment["ALLOWED_REDIRECT_URIS"] = "https://a.example.com/cb, ,http://127.0.0.1:3000/cb"
	environment["LOG_LEVEL"] = "debug"
	environment["LOG_FORMAT"] = "JSON"
	environment["AUDIT_ENABLED"] = "false"

	cfg, err := LoadFrom(environment)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.ListenAddr != "127.0.0.1:9000" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.DownstreamReadyTimeout != 0 {
		t.Errorf("DownstreamReadyTimeout = %v, want 0", cfg.DownstreamReadyTimeout)
	}
	if cfg.AccessTokenTTL != 15*time.Minute {
		t.Errorf("AccessTokenTTL = %v", cfg.AccessTokenTTL)
	}
	if !cfg.AllowMissingPKCEVerifier {
		t.Error("AllowMissingPKCEVerifier = false, want true")
	}
	want := []string{"https://a.example.com/cb", "http://127.0.0.1:3000/cb"}
	if len(cfg.AllowedRedirectURIs) != len(want) {
		t.Fatalf("AllowedRedirectURIs = %v, want %v", cfg.AllowedRedirectURIs, want)
	}
	for i := range want {
		if cfg.AllowedRedirectURIs[i] != want[i] {
			t.Errorf("AllowedRedirectURIs[%d] = %q, want %q", i, cfg.AllowedRedirectURIs[i], want[i])
		}
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Errorf("LogFormat = %q", cfg.LogFormat)
	}
	if cfg.AuditEnabled {
		t.Error("AuditEnabled = true, want false")
	}
}

func TestLoadFrom_MissingRequired(t *testing.T) {
	_, err := LoadFrom(map[string]string{"CLIENT_ID": "client-1"})
	if err == nil {
		t.Fatal("LoadFrom() error = nil, want error")
	}
	for _, name := range []string{"CLIENT_SECRET", "BASE_URL"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not name %s", err, name)
		}
	}
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"empty client secret", "CLIENT_SECRET", ""},
		{"bad duration", "ACCESS_TOKEN_TTL", "forever"},
		{"bad bool", "TRUST_PROXY", "maybe"},
		{"bad log level", "LOG_LEVEL", "loud"},
		{"bad log format", "LOG_FORMAT", "xml"},
		{"negative ready timeout", "DOWNSTREAM_READY_TIMEOUT", "-1s"},
		{"zero cleanup interval", "CLEANUP_INTERVAL", "0s"},
		{"zero proxy count", "TRUSTED_PROXY_COUNT", "0"},
		{"relative metrics path", "METRICS_PATH", "metrics"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			environment := requiredEnv()
			environment[tt.key] = tt.value

			if _, err := LoadFrom(environment); err == nil {
				t.Errorf("LoadFrom() with %s=%q error = nil, want error", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_ProcessEnvironment(t *testing.T) {
	for k, v := range requiredEnv() {
		t.Setenv(k, v)
	}
	t.Setenv("DOWNSTREAM_URL", "http://127.0.0.1:7000/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ClientID != "client-1" {
		t.Errorf("ClientID = %q", cfg.ClientID)
	}
	if got := cfg.ReadinessURL(); got != "http://127.0.0.1:7000/" {
		t.Errorf("ReadinessURL() = %q", got)
	}
}

func TestConfig_ServerConfig(t *testing.T) {
	environment := requiredEnv()
	environment["PROTECTED_PATH"] = "/tools"
	environment["TRUST_PROXY"] = "true"
	environment["TRUSTED_PROXY_COUNT"] = "2"

	cfg, err := LoadFrom(environment)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	sc := cfg.ServerConfig()
	if sc.Issuer != "https://proxy.example.com" || sc.ClientID != "client-1" || sc.ClientSecret != "secret-1" {
		t.Errorf("ServerConfig() identity = %q/%q/%q", sc.Issuer, sc.ClientID, sc.ClientSecret)
	}
	if sc.ResourcePath != "/tools" {
		t.Errorf("ResourcePath = %q", sc.ResourcePath)
	}
	if !sc.TrustProxy || sc.TrustedProxyCount != 2 {
		t.Errorf("TrustProxy = %v, TrustedProxyCount = %d", sc.TrustProxy, sc.TrustedProxyCount)
	}
	if sc.AccessTokenTTL != time.Hour || sc.AuthorizationCodeTTL != 10*time.Minute {
		t.Errorf("TTLs = %v/%v", sc.AccessTokenTTL, sc.AuthorizationCodeTTL)
	}
}

func TestConfig_InstrumentationConfig(t *testing.T) {
	cfg, err := LoadFrom(requiredEnv())
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if ic := cfg.InstrumentationConfig("v1.2.3"); ic.Enabled {
		t.Error("instrumentation enabled with no exporter configured")
	}

	cfg.MetricsExporter = "prometheus"
	ic := cfg.InstrumentationConfig("v1.2.3")
	if !ic.Enabled || ic.MetricsExporter != "prometheus" || ic.ServiceVersion != "v1.2.3" {
		t.Errorf("InstrumentationConfig() = %+v", ic)
	}
}
