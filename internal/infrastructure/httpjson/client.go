// Package httpjson is a small JSON-over-HTTP client shared by the block
// explorer and release lookups. Requests are rate limited and retried with
// exponential backoff on 429 and 5xx responses and transport errors.
package httpjson

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/khanhnv2901/safe-audit/internal/shared/constants"
)

// maxBody caps how much of a response body is read.
const maxBody = 8 << 20

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d: %s", e.URL, e.StatusCode, e.Body)
}

// Transient reports whether the status is worth retrying.
func (e *StatusError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client performs rate-limited, retried JSON GET requests.
type Client struct {
	HTTP      *http.Client
	Limiter   *rate.Limiter
	Retries   uint64
	RetryBase time.Duration
	Logger    *zap.Logger
}

// New creates a client with the given per-second request budget.
func New(timeout time.Duration, rps float64, retries uint64, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = constants.DefaultCallTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if rps > 0 {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &Client{
		HTTP:      &http.Client{Timeout: timeout},
		Limiter:   limiter,
		Retries:   retries,
		RetryBase: constants.DefaultRetryBase,
		Logger:    logger,
	}
}

// ResponseCheck inspects a decoded payload. APIs that report rate limiting
// inside a 200 response return retry.RetryableError from it.
type ResponseCheck func() error

// Get fetches rawURL and decodes the JSON body into out, then runs check if set.
func (c *Client) Get(ctx context.Context, rawURL string, headers map[string]string, out any, check ResponseCheck) error {
	backoff := retry.WithMaxRetries(c.Retries, retry.NewExponential(c.RetryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if c.Limiter != nil {
			if err := c.Limiter.Wait(ctx); err != nil {
				return err
			}
		}
		err := c.once(ctx, rawURL, headers, out)
		if err == nil && check != nil {
			err = check()
		}
		if err == nil {
			return nil
		}

		var statusErr *StatusError
		transient := errors.As(err, &statusErr) && statusErr.Transient()
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) {
			transient = true
		}
		if transient && ctx.Err() == nil {
			c.Logger.Debug("retrying request", zap.String("url", redact(rawURL)), zap.Error(err))
			return retry.RetryableError(err)
		}
		return err
	})
}

func (c *Client) once(ctx context.Context, rawURL string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		// Transport errors quote the full URL, query credentials included.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = redact(urlErr.URL)
		}
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return &StatusError{URL: redact(rawURL), StatusCode: resp.StatusCode, Body: snippet}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
