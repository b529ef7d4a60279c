// Command mcp-oauth-proxy puts an OAuth 2.0 authorization server in front of a
// single MCP HTTP service.
//
// The proxy issues bearer tokens to one configured client (client_credentials, or
// authorization_code with PKCE after an approval page) and forwards requests under
// the protected path to the downstream origin once a valid token is presented.
// Optionally it launches the downstream itself (DOWNSTREAM_COMMAND) and exits when
// that process exits.
//
// Configuration is read from the environment; see internal/envconfig.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	oauth "github.com/giantswarm/mcp-oauth-proxy"
	"github.com/giantswarm/mcp-oauth-proxy/instrumentation"
	"github.com/giantswarm/mcp-oauth-proxy/internal/envconfig"
	"github.com/giantswarm/mcp-oauth-proxy/internal/supervisor"
	"github.com/giantswarm/mcp-oauth-proxy/proxy"
	"github.com/giantswarm/mcp-oauth-proxy/security"
	"github.com/giantswarm/mcp-oauth-proxy/storage/memory"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

// childStopGrace is how long the downstream gets between SIGTERM and SIGKILL
const childStopGrace = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := envconfig.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	downstreamURL, err := parseDownstreamURL(cfg.DownstreamURL)
	if err != nil {
		logger.Error("Invalid downstream URL", "error", err)
		return 1
	}

	inst, err := instrumentation.New(cfg.InstrumentationConfig(version))
	if err != nil {
		logger.Error("Failed to set up instrumentation", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := inst.Shutdown(shutdownCtx); err != nil {
			logger.Error("Instrumentation shutdown error", "error", err)
		}
	}()

	store := memory.NewWithInterval(cfg.CleanupInterval)
	store.SetLogger(logger)
	store.SetInstrumentation(inst)
	defer store.Stop()

	server, err := oauth.NewServer(store, store, cfg.ServerConfig(), logger)
	if err != nil {
		logger.Error("Failed to create OAuth server", "error", err)
		return 1
	}
	server.SetInstrumentation(inst)

	auditor := security.NewAuditor(logger, cfg.AuditEnabled)
	auditor.SetInstrumentation(inst)
	server.SetAuditor(auditor)

	var childDone <-chan struct{}
	var child *supervisor.Process
	if cfg.DownstreamCommand != "" {
		child, err = supervisor.Start(cfg.DownstreamCommand, logger)
		if err != nil {
			logger.Error("Failed to start downstream command", "error", err)
			return 1
		}
		defer child.Stop(childStopGrace)
		childDone = child.Done()
	}

	if code, ok := waitForDownstream(ctx, cfg, child, logger); !ok {
		return code
	}

	reverseProxy := proxy.New(downstreamURL,
		proxy.WithLogger(logger),
		proxy.WithInstrumentation(inst))

	handler := oauth.NewHandler(server, logger)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler.Routes(reverseProxy, cfg.MetricsPath),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		// No WriteTimeout: proxied MCP streams stay open for the whole session
		IdleTimeout: 120 * time.Second,
		ErrorLog:    slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()

	logger.Info("MCP OAuth proxy listening",
		"addr", cfg.ListenAddr,
		"issuer", server.Config.Issuer,
		"protected_path", server.Config.ResourcePath,
		"downstream", downstreamURL.Redacted(),
		"version", version)

	exitCode := 0
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			exitCode = 1
		}
	case <-childDone:
		logger.Error("Downstream process exited, shutting down",
			"exit_code", supervisor.ExitCode(child.Err()))
		exitCode = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("MCP OAuth proxy stopped")
	return exitCode
}

// waitForDownstream blocks until the downstream answers. It gives up when the
// readiness timeout elapses, a signal arrives or the supervised child exits.
func waitForDownstream(ctx context.Context, cfg *envconfig.Config, child *supervisor.Process, logger *slog.Logger) (int, bool) {
	readyCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if child != nil {
		go func() {
			select {
			case <-child.Done():
				cancel()
			case <-readyCtx.Done():
			}
		}()
	}

	err := proxy.WaitForReady(readyCtx, nil, cfg.ReadinessURL(), cfg.DownstreamReadyTimeout, logger)
	if err == nil {
		return 0, true
	}

	switch {
	case child != nil && isClosed(child.Done()):
		logger.Error("Downstream process exited before becoming ready",
			"exit_code", supervisor.ExitCode(child.Err()))
		return 1, false
	case ctx.Err() != nil:
		logger.Info("Shutdown signal received while waiting for downstream")
		return 0, false
	default:
		logger.Error("Downstream never became ready", "error", err)
		return 1, false
	}
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func parseDownstreamURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("DOWNSTREAM_URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("DOWNSTREAM_URL must be an absolute http(s) URL, got %q", raw)
	}
	return u, nil
}
