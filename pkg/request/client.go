package request

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"officeradar/pkg/version"
)

var defaultUserAgent = fmt.Sprintf("officeradar/%s", version.Version)

// StatusError reports a non-OK HTTP status from an upstream API.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api error: status %d", e.StatusCode)
}

// Retryable reports whether a status code is worth retrying against the
// same endpoint (rate limiting or server-side failure).
func Retryable(statusCode int) bool {
	return statusCode == 429 || (statusCode >= 500 && statusCode < 600)
}

// Client handles HTTP requests against upstream APIs with retries on
// transient failures.
type Client struct {
	httpClient  *http.Client
	userAgent   string
	maxAttempts int
	baseDelay   time.Duration
}

// New creates a new Client. baseDelay is the unit of the linear backoff:
// after attempt N fails, the client sleeps N*baseDelay before retrying.
func New(timeout, baseDelay time.Duration) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		userAgent:   defaultUserAgent,
		maxAttempts: 3,
		baseDelay:   baseDelay,
	}
}

// Get performs a GET request with retries.
func (c *Client) Get(ctx context.Context, u string) ([]byte, error) {
	return c.executeWithBackoff(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	})
}

// Post performs a POST request with retries. The body is resent on every
// attempt.
func (c *Client) Post(ctx context.Context, u string, body []byte, contentType string) ([]byte, error) {
	return c.executeWithBackoff(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	})
}

// executeWithBackoff runs the request up to maxAttempts times, sleeping
// attempt*baseDelay between tries. Retries cover network errors, 429 and
// 5xx responses; any other non-OK status fails immediately. The request is
// rebuilt per attempt so request bodies can be replayed.
func (c *Client) executeWithBackoff(ctx context.Context, build func() (*http.Request, error)) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		// Verify context is still alive before dialing
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)

		slog.Debug("Network Request", "host", req.URL.Host, "path", req.URL.Path, "attempt", attempt)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			// Check if the error is a context cancellation from OUR side
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			slog.Warn("Request failed", "url", req.URL, "attempt", attempt, "error", err)
			lastErr = err
			if attempt < c.maxAttempts {
				if serr := c.sleep(ctx, attempt); serr != nil {
					return nil, serr
				}
			}
			continue
		}

		if Retryable(resp.StatusCode) {
			resp.Body.Close()
			slog.Warn("API Backoff", "status", resp.StatusCode, "url", req.URL, "attempt", attempt)
			lastErr = &StatusError{StatusCode: resp.StatusCode}
			if attempt < c.maxAttempts {
				if serr := c.sleep(ctx, attempt); serr != nil {
					return nil, serr
				}
			}
			continue
		}

		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, &StatusError{StatusCode: resp.StatusCode}
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read error: %w", err)
		}
		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	return Sleep(ctx, time.Duration(attempt)*c.baseDelay)
}

// Sleep waits for d unless the context is cancelled first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
