// Package httpclient wraps net/http with bounded transport-level retries for
// idempotent requests.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const defaultUserAgent = "pawnval/1.0 (+https://github.com/pawnval)"

// Client retries GETs that failed before a usable response arrived: network
// errors and 502/504 gateway failures. Every other status is returned to the
// caller as-is for classification.
type Client struct {
	http            *http.Client
	maxRetries      uint64
	initialInterval time.Duration
	userAgent       string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithMaxRetries sets how many times a request is retried after the first try.
func WithMaxRetries(n int) Option {
	return func(cl *Client) {
		if n >= 0 {
			cl.maxRetries = uint64(n)
		}
	}
}

// WithInitialInterval sets the first backoff interval.
func WithInitialInterval(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.initialInterval = d
		}
	}
}

// WithUserAgent sets the User-Agent sent when the request has none.
func WithUserAgent(ua string) Option {
	return func(cl *Client) {
		cl.userAgent = ua
	}
}

// New creates a Client. Timeouts come from the request context.
func New(opts ...Option) *Client {
	c := &Client{
		http:            &http.Client{},
		maxRetries:      2,
		initialInterval: 100 * time.Millisecond,
		userAgent:       defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get issues a GET with the given headers. The caller owns the response body.
func (c *Client) Get(ctx context.Context, url string, header http.Header) (*http.Response, error) {
	var resp *http.Response
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		if req.Header.Get("User-Agent") == "" && c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		r, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		if r.StatusCode == http.StatusBadGateway || r.StatusCode == http.StatusGatewayTimeout {
			drain(r)
			return &StatusError{StatusCode: r.StatusCode}
		}
		resp = r
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return nil, perm.Err
		}
		return nil, err
	}
	return resp, nil
}

// Do sends req once without retrying; use it for non-idempotent requests.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" && c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return c.http.Do(req)
}

// StatusError reports a retryable gateway status that persisted through every
// retry.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d", e.StatusCode)
}

func drain(r *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r.Body, 64<<10))
	_ = r.Body.Close()
}
