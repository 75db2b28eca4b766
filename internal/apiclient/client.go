// Package apiclient is a resilient JSON-over-HTTP client for the public
// culture-media and organism APIs. It spaces requests per host, retries
// transient failures with exponential backoff and caches raw responses so
// that a re-run never repeats a successful call.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vthunder/culturedb/internal/cache"
	"github.com/vthunder/culturedb/internal/logging"
	"github.com/vthunder/culturedb/internal/metrics"
)

// Params are query parameters for one request.
type Params map[string]string

const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxAttempts = 4
	DefaultBackoffBase = 1500 * time.Millisecond
	DefaultBackoffMax  = 30 * time.Second

	maxBody      = 64 << 20
	maxErrorBody = 512
)

// Options configures a Client. Only BaseURL is required.
type Options struct {
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration

	// Limiter is shared across clients; nil disables spacing.
	Limiter *Limiter
	// Cache stores raw bodies under Namespace; nil disables caching.
	Cache     cache.Store
	Namespace string
	// Refresh skips cache reads but still stores fresh responses.
	Refresh bool
	Metrics *metrics.Collector

	HTTPClient *http.Client
	UserAgent  string
	// DefaultParams are sent with every request but do not take part in
	// the cache key (credentials, contact email).
	DefaultParams Params
}

// Client talks to one API base URL.
type Client struct {
	baseURL     string
	host        string
	namespace   string
	maxAttempts int
	backoffBase time.Duration
	backoffMax  time.Duration
	limiter     *Limiter
	cache       cache.Store
	refresh     bool
	metrics     *metrics.Collector
	httpClient  *http.Client
	userAgent   string
	defaults    Params

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a client for opts.BaseURL.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(opts.BaseURL, "/")
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", opts.BaseURL)
	}

	c := &Client{
		baseURL:     base,
		host:        u.Host,
		namespace:   opts.Namespace,
		maxAttempts: opts.MaxAttempts,
		backoffBase: opts.BackoffBase,
		backoffMax:  opts.BackoffMax,
		limiter:     opts.Limiter,
		cache:       opts.Cache,
		refresh:     opts.Refresh,
		metrics:     opts.Metrics,
		httpClient:  opts.HTTPClient,
		userAgent:   opts.UserAgent,
		defaults:    opts.DefaultParams,
		sleep:       sleepCtx,
	}
	if c.namespace == "" {
		c.namespace = strings.ReplaceAll(u.Hostname(), ".", "_")
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = DefaultMaxAttempts
	}
	if c.backoffBase <= 0 {
		c.backoffBase = DefaultBackoffBase
	}
	if c.backoffMax <= 0 {
		c.backoffMax = DefaultBackoffMax
	}
	if c.httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		c.httpClient = &http.Client{Timeout: timeout}
	}
	if c.userAgent == "" {
		c.userAgent = "culturedb/1.0"
	}
	return c, nil
}

// BaseURL returns the API root requests are made against.
func (c *Client) BaseURL() string { return c.baseURL }

// Host returns the host the client sends requests to.
func (c *Client) Host() string { return c.host }

// Namespace returns the cache namespace.
func (c *Client) Namespace() string { return c.namespace }

// FetchCached returns the response body for endpoint+params, from cache when
// present. A cache hit touches neither the network nor the limiter. Only
// successful, valid JSON responses are cached.
func (c *Client) FetchCached(ctx context.Context, endpoint string, params Params) ([]byte, error) {
	key := cache.Key(endpoint, params)
	if c.cache != nil && !c.refresh {
		body, ok, err := c.cache.Get(ctx, c.namespace, key)
		if err != nil {
			logging.Warn("apiclient", "cache read %s/%s: %v", c.namespace, key[:12], err)
		} else if ok {
			c.metrics.ObserveCache(c.namespace, true)
			logging.Debug("apiclient", "cache hit %s %s", endpoint, key[:12])
			return body, nil
		}
		c.metrics.ObserveCache(c.namespace, false)
	}

	body, err := c.Fetch(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Put(ctx, c.namespace, key, body); err != nil {
			logging.Warn("apiclient", "cache write %s/%s: %v", c.namespace, key[:12], err)
		}
	}
	return body, nil
}

// Fetch performs the request without consulting the cache. Transient
// failures (429, 5xx gateway errors, network errors, timeouts) are retried
// up to the configured number of attempts. Any other non-2xx status fails
// immediately with a *StatusError.
func (c *Client) Fetch(ctx context.Context, endpoint string, params Params) ([]byte, error) {
	reqURL := c.buildURL(endpoint, params)

	var (
		lastErr    error
		lastStatus int
	)
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx, c.host); err != nil {
			return nil, err
		}

		body, status, retryAfter, err := c.do(ctx, endpoint, reqURL)
		if err == nil {
			return body, nil
		}
		if !isRetryable(err) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr, lastStatus = err, status

		if attempt == c.maxAttempts {
			break
		}
		wait := c.backoff(attempt)
		if retryAfter > wait {
			wait = min(retryAfter, c.backoffMax)
		}
		c.metrics.ObserveRetry(c.host)
		logging.Debug("apiclient", "retry %d/%d %s in %s: %v", attempt, c.maxAttempts-1, endpoint, wait, err)
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	logging.Warn("apiclient", "%s failed after %d attempts: %v", endpoint, c.maxAttempts, lastErr)
	return nil, &TransportError{
		Endpoint:   endpoint,
		Attempts:   c.maxAttempts,
		StatusCode: lastStatus,
		Err:        lastErr,
	}
}

// Get fetches (cached) and decodes the JSON body into out.
func (c *Client) Get(ctx context.Context, endpoint string, params Params, out any) error {
	body, err := c.FetchCached(ctx, endpoint, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &ProtocolError{Endpoint: endpoint, StatusCode: http.StatusOK, ContentType: "application/json", Reason: "decode: " + err.Error()}
	}
	return nil
}

// Detail fetches a single-record endpoint and returns its "data" member.
// A body without a "data" key is a protocol error; "data": null is returned
// as the JSON literal null.
func (c *Client) Detail(ctx context.Context, endpoint string, params Params) (json.RawMessage, error) {
	var env map[string]json.RawMessage
	if err := c.Get(ctx, endpoint, params, &env); err != nil {
		return nil, err
	}
	data, ok := env["data"]
	if !ok {
		return nil, &ProtocolError{Endpoint: endpoint, StatusCode: http.StatusOK, ContentType: "application/json", Reason: `missing "data" key`}
	}
	return data, nil
}

// retryable marks an attempt failure worth retrying.
type retryable struct{ err error }

func (r retryable) Error() string { return r.err.Error() }
func (r retryable) Unwrap() error { return r.err }

func isRetryable(err error) bool {
	var r retryable
	return errors.As(err, &r)
}

// do sends one attempt. It returns the body on success, or the status seen
// and any Retry-After hint on failure.
func (c *Client) do(ctx context.Context, endpoint, reqURL string) ([]byte, int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(c.host, 0, time.Since(start))
		if ctx.Err() != nil {
			return nil, 0, 0, ctx.Err()
		}
		return nil, 0, 0, retryable{fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	c.metrics.ObserveRequest(c.host, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, resp.StatusCode, 0, retryable{fmt.Errorf("failed to read response: %w", err)}
	}

	if retryableStatus(resp.StatusCode) {
		return nil, resp.StatusCode, parseRetryAfter(resp.Header.Get("Retry-After")),
			retryable{fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, 0, &StatusError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       logging.Truncate(string(body), maxErrorBody),
		}
	}

	ct := resp.Header.Get("Content-Type")
	if !isJSON(ct) {
		return nil, resp.StatusCode, 0, &ProtocolError{Endpoint: endpoint, StatusCode: resp.StatusCode, ContentType: ct, Reason: "response is not JSON"}
	}
	if !json.Valid(body) {
		return nil, resp.StatusCode, 0, &ProtocolError{Endpoint: endpoint, StatusCode: resp.StatusCode, ContentType: ct, Reason: "invalid JSON body"}
	}
	return body, resp.StatusCode, 0, nil
}

func (c *Client) buildURL(endpoint string, params Params) string {
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	v := url.Values{}
	for k, val := range c.defaults {
		v.Set(k, val)
	}
	for k, val := range params {
		v.Set(k, val)
	}
	if len(v) == 0 {
		return c.baseURL + endpoint
	}
	return c.baseURL + endpoint + "?" + v.Encode()
}

// backoff returns the wait before attempt+1: base, 2*base, 4*base, capped.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.backoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= c.backoffMax {
			return c.backoffMax
		}
	}
	return d
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
