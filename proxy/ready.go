package proxy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// readyProbeTimeout bounds a single readiness probe
const readyProbeTimeout = 2 * time.Second

// WaitForReady blocks until the origin at rawURL answers an HTTP request or timeout
// elapses. Any HTTP response counts as ready; only transport errors are retried.
// A zero timeout returns immediately.
func WaitForReady(ctx context.Context, client *http.Client, rawURL string, timeout time.Duration, logger *slog.Logger) error {
	if timeout <= 0 {
		return nil
	}
	if client == nil {
		client = &http.Client{Timeout: readyProbeTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 100 * time.Millisecond
	expBackoff.MaxInterval = 2 * time.Second

	startTime := time.Now()
	attempts := 0
	operation := func() (int, error) {
		attempts++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return 0, backoff.Permanent(fmt.Errorf("invalid readiness URL: %w", err))
		}

		resp, err := client.Do(req)
		if err != nil {
			return 0, err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return resp.StatusCode, nil
	}

	status, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxElapsedTime(timeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Debug("Downstream not ready yet", "url", rawURL, "error", err, "retry_in", next)
		}),
	)
	if err != nil {
		return fmt.Errorf("downstream %s not ready after %s (%d attempts): %w", rawURL, timeout, attempts, err)
	}

	logger.Info("Downstream is ready",
		"url", rawURL,
		"status", status,
		"attempts", attempts,
		"waited", time.Since(startTime).Round(time.Millisecond))
	return nil
}
