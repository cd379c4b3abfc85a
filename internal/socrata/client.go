// Package socrata fetches weekly COT reports and contract catalogs from the
// CFTC public reporting API (Socrata SODA 2.1).
package socrata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"cot-lab/internal/logging"
	"cot-lab/internal/observability"
)

// Default configuration values.
const (
	DefaultBaseURL     = "https://publicreporting.cftc.gov"
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 0
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
	DefaultPageSize    = 5000
)

// Remote errors.
var (
	// ErrTransport is returned for network failures and non-2xx responses.
	ErrTransport = errors.New("remote transport failure")

	// ErrMalformedResponse is returned when a response body is not a JSON array of rows.
	ErrMalformedResponse = errors.New("malformed remote response")
)

// Client is an HTTP client for the CFTC Socrata datasets.
type Client struct {
	baseURL     string
	client      *http.Client
	appToken    string
	pageSize    int
	limiter     *rate.Limiter
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	logger      *logrus.Entry
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithAppToken sets the Socrata application token sent as X-App-Token.
func WithAppToken(token string) ClientOption {
	return func(c *Client) {
		c.appToken = token
	}
}

// WithPageSize sets the $limit of each page request.
func WithPageSize(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithRateLimit caps outgoing page requests. Zero rps disables limiting.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Entry) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:     baseURL,
		client:      &http.Client{Timeout: DefaultTimeout},
		pageSize:    DefaultPageSize,
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrDiscard(c.logger)
	return c
}

// fetchRows pages through a dataset query until a short page arrives.
func (c *Client) fetchRows(ctx context.Context, endpoint, datasetID string, query url.Values) ([]map[string]interface{}, error) {
	var all []map[string]interface{}
	for offset := 0; ; offset += c.pageSize {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("$limit", strconv.Itoa(c.pageSize))
		q.Set("$offset", strconv.Itoa(offset))

		page, err := c.getPage(ctx, endpoint, datasetID, q)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < c.pageSize {
			return all, nil
		}
	}
}

// getPage performs one GET with retries and exponential backoff.
// Network errors, 429 and 5xx are retried; other statuses fail at once.
func (c *Client) getPage(ctx context.Context, endpoint, datasetID string, query url.Values) ([]map[string]interface{}, error) {
	u := fmt.Sprintf("%s/resource/%s.json?%s", c.baseURL, datasetID, query.Encode())

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			observability.RecordRemoteRetry(endpoint)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: create request: %w", ErrTransport, err)
		}
		req.Header.Set("Accept", "application/json")
		if c.appToken != "" {
			req.Header.Set("X-App-Token", c.appToken)
		}

		start := time.Now()
		resp, err := c.client.Do(req)
		if err != nil {
			observability.RecordRemoteRequest(endpoint, "error", time.Since(start).Seconds())
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		observability.RecordRemoteRequest(endpoint, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		// Handle rate limiting and upstream outages
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, snippet(body))
			c.logger.WithFields(logrus.Fields{
				"status":  resp.StatusCode,
				"attempt": attempt + 1,
			}).Debug("retrying remote request")
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("%w: unexpected status %d: %s", ErrTransport, resp.StatusCode, snippet(body))
		}

		return decodeRows(body)
	}

	return nil, fmt.Errorf("%w: max retries exceeded: %w", ErrTransport, lastErr)
}

// decodeRows parses a response body that must be a JSON array of objects.
func decodeRows(body []byte) ([]map[string]interface{}, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: expected JSON array, got %s", ErrMalformedResponse, snippet(trimmed))
	}
	var rows []map[string]interface{}
	if err := json.Unmarshal(trimmed, &rows); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return rows, nil
}

func snippet(body []byte) string {
	const limit = 200
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
