package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/five82/tracksync/internal/cache"
	"github.com/five82/tracksync/internal/outbox"
)

// Ensure Client implements outbox.Transport at compile time.
var _ outbox.Transport = (*Client)(nil)

const (
	defaultBaseURL   = "http://127.0.0.1:8000"
	defaultUserAgent = "tracksync/0.1"
	defaultTimeout   = 10 * time.Second
	maxErrorBody     = 512
)

// TokenSource supplies a bearer token per request. An empty token sends no
// Authorization header.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer token.
type StaticToken string

// Token returns t.
func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

// Options tune a Client.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	Tokens    TokenSource
	// HTTPClient replaces the default client. Timeout is ignored when set.
	HTTPClient *http.Client
	// RequestsPerSecond caps outgoing requests, bursting up to one second's
	// worth. Zero means unlimited.
	RequestsPerSecond float64
}

// Client talks to the tracking REST API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
	tokens    TokenSource
	limiter   *rate.Limiter
}

// NewClient builds a Client for baseURL. A bare host:port gets an http
// scheme; an empty value uses the local default.
func NewClient(baseURL string, opts Options) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}
	c := &Client{
		baseURL:   base,
		http:      hc,
		userAgent: ua,
		tokens:    opts.Tokens,
	}
	if rps := opts.RequestsPerSecond; rps > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
	return c, nil
}

// BaseURL returns the normalized API base.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Collection returns a cache fetch function that GETs path. The response
// body is passed through untouched; the cache normalizes it.
func (c *Client) Collection(path string) cache.FetchFunc {
	return func(ctx context.Context) (json.RawMessage, error) {
		var raw json.RawMessage
		if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
			return nil, err
		}
		return raw, nil
	}
}

// Submit POSTs one queued write. Any status of 400 or above is a failure.
func (c *Client) Submit(ctx context.Context, sub outbox.Submission) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	body := sub.Data
	if len(body) == 0 {
		body = json.RawMessage(`{}`)
	}
	return c.do(ctx, http.MethodPost, sub.Endpoint, body, nil)
}

// Health performs GET /health. Any non-error status counts as healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) resolve(path string) (*url.URL, error) {
	rel, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint %q: %w", path, err)
	}
	if rel.IsAbs() {
		return rel, nil
	}
	u := *c.baseURL
	u.Path = strings.TrimRight(c.baseURL.Path, "/") + "/" + strings.TrimLeft(rel.Path, "/")
	u.RawQuery = rel.RawQuery
	return &u, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, dest any) error {
	if path == "" {
		return fmt.Errorf("endpoint is required")
	}
	reqURL, err := c.resolve(path)
	if err != nil {
		return err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("fetch token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Method: method,
			Path:   reqURL.Path,
			Code:   resp.StatusCode,
			Body:   strings.TrimSpace(string(snippet)),
		}
	}
	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api_base_url %q: %w", raw, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse api_base_url %q: missing host", raw)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
