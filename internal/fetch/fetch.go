// Package fetch provides the HTTP client used for pricing dataset downloads.
//
// Requests are retried on network failures and retryable status codes
// (429 and 5xx) with a linear backoff that honors integer-seconds
// Retry-After response headers. Other 4xx responses are returned to the
// caller without retrying.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Defaults applied when the corresponding Options field is zero.
const (
	DefaultTimeout = 30 * time.Second
	DefaultRetries = 2
)

// maxResponseBytes caps response bodies to guard against unexpectedly
// large payloads.
const maxResponseBytes = 10 << 20 // 10 MiB

// maxRetryAfter caps the delay taken from a Retry-After header.
const maxRetryAfter = 5 * time.Second

// ///////////////////////////////////////////////
// Options
// ///////////////////////////////////////////////

// Options configures a Client.
type Options struct {
	// Timeout bounds each individual attempt, not the whole retry loop.
	Timeout time.Duration
	// Retries is the number of re-attempts after the first try.
	// Zero selects DefaultRetries; a negative value disables retrying.
	Retries int
	// Logger receives per-attempt diagnostics. Nil disables them.
	Logger *slog.Logger
}

// ///////////////////////////////////////////////
// Client
// ///////////////////////////////////////////////

// Client is a retrying HTTP client for pricing endpoints.
type Client struct {
	rc  *retryablehttp.Client
	log *slog.Logger
}

// New creates a Client with the given options, applying defaults for
// zero-valued fields.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	switch {
	case opts.Retries == 0:
		opts.Retries = DefaultRetries
	case opts.Retries < 0:
		opts.Retries = 0
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = opts.Timeout
	rc.RetryMax = opts.Retries
	rc.CheckRetry = checkRetry
	rc.Backoff = backoff
	// Surface the last response after exhaustion instead of discarding it.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = nil // suppress retryablehttp's default logging

	c := &Client{rc: rc, log: opts.Logger}
	if opts.Logger != nil {
		rc.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
			opts.Logger.Debug("fetch attempt", "url", req.URL.String(), "attempt", attempt)
		}
	}
	return c
}

// Get issues a GET for url with the optional extra header and returns the
// response body. The request is retried per the client's policy; after
// exhaustion the last network error or last non-OK status is returned.
func (c *Client) Get(ctx context.Context, url string, header http.Header) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.rc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, maxResponseBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}
	if int64(len(body)) > maxResponseBytes {
		return nil, fmt.Errorf("response from %s exceeds %d bytes", url, maxResponseBytes)
	}
	return body, nil
}

// ///////////////////////////////////////////////
// Retry Policy
// ///////////////////////////////////////////////

// checkRetry retries on network-level failures, 429, and 5xx responses.
// All other status codes, including the remaining 4xx family, are final.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return true, nil
	}
	return false, nil
}

// backoff computes the inter-attempt delay: attempt+1 seconds, unless the
// response carries an integer-seconds Retry-After header, in which case
// that value is used, capped at maxRetryAfter. attempt is zero-based.
func backoff(_, _ time.Duration, attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs >= 0 {
				return min(time.Duration(secs)*time.Second, maxRetryAfter)
			}
		}
	}
	return time.Duration(attempt+1) * time.Second
}
