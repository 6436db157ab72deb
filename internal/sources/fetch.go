// Package sources provides the shared HTTP plumbing for sanctions list
// clients. Each list provider lives in its own subpackage and uses the
// Fetcher here for downloads.
package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/acuityrisk/sanctionscan/internal/config"
)

// Fetcher downloads list payloads with bounded retries. Transient failures
// (transport errors, 429 and 5xx responses) are retried with a growing delay;
// client errors like 404 are returned immediately since retrying cannot help.
type Fetcher struct {
	client      *http.Client
	userAgent   string
	maxAttempts int
	retryDelay  time.Duration
	logger      *zap.SugaredLogger
}

// NewFetcher builds a Fetcher from the shared HTTP client configuration.
func NewFetcher(cfg config.HTTPClientConfig, logger *zap.SugaredLogger) *Fetcher {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Fetcher{
		client:      &http.Client{Timeout: cfg.Timeout},
		userAgent:   cfg.UserAgent,
		maxAttempts: attempts,
		retryDelay:  cfg.RetryDelay,
		logger:      logger,
	}
}

// Get fetches url and returns the response body. A non-2xx final status is an
// error that includes the status code so callers can decide on fallbacks.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < f.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.retryDelay * time.Duration(attempt)):
			}
		}

		body, retryable, err := f.getOnce(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}

		f.logger.Warnw("Download failed, retrying",
			"url", url,
			"attempt", attempt+1,
			"error", err)
	}
	return nil, fmt.Errorf("download failed after %d attempts: %w", f.maxAttempts, lastErr)
}

func (f *Fetcher) getOnce(ctx context.Context, url string) (body []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, retryable, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, url)
	}

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, false, nil
}
