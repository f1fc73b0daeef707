package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Request describes one backend call
type Request struct {
	Method string
	Params url.Values
	Body   any
}

// Response is a successful backend response
type Response struct {
	Status int
	Data   []byte
}

// Doer performs backend calls. Failures are returned as *Error.
//
//go:generate mockgen -destination=mocks/doer.go . Doer
type Doer interface {
	Do(ctx context.Context, path string, req Request) (*Response, error)
}

// IHttpStatusHandler observes request outcomes
type IHttpStatusHandler interface {
	// OnRequest handles a request with its status result
	OnRequest(status string)
	// OnRetry handles retry events
	OnRetry()
}

// TokenSource returns the bearer token for the current session, or ""
type TokenSource func() string

// Config configures the backend client
type Config struct {
	BaseURL           string          `yaml:"base_url" envconfig:"BASE_URL"`
	MaxRetries        int             `yaml:"max_retries"`
	BaseBackoff       time.Duration   `yaml:"base_backoff"`
	ConnectionTimeout time.Duration   `yaml:"connection_timeout"`
	RequestTimeout    time.Duration   `yaml:"request_timeout"`
	RateLimit         RateLimitConfig `yaml:"rate_limit"`
}

// DefaultConfig returns default client settings
func DefaultConfig() Config {
	return Config{
		BaseURL:           "http://localhost:8000/api",
		MaxRetries:        3,
		BaseBackoff:       500 * time.Millisecond,
		ConnectionTimeout: 10 * time.Second,
		RequestTimeout:    30 * time.Second,
	}
}

// Client is the REST client for the marketplace backend.
// Only GET requests are retried; writes get a single attempt.
type Client struct {
	httpClient     *http.Client
	config         Config
	tokens         TokenSource
	statusHandler  IHttpStatusHandler
	limiterManager IRateLimiterManager
	logger         *zap.Logger
	sleep          func(ctx context.Context, d time.Duration) error
}

// NewClient creates a client. tokens, handler and logger may be nil.
func NewClient(config Config, tokens TokenSource, handler IHttpStatusHandler, logger *zap.Logger) *Client {
	defaults := DefaultConfig()
	if config.MaxRetries <= 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.BaseBackoff <= 0 {
		config.BaseBackoff = defaults.BaseBackoff
	}
	if config.ConnectionTimeout <= 0 {
		config.ConnectionTimeout = defaults.ConnectionTimeout
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = defaults.RequestTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: config.RequestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: config.ConnectionTimeout,
				}).DialContext,
			},
		},
		config:         config,
		tokens:         tokens,
		statusHandler:  handler,
		limiterManager: NewRateLimiterManager(config.RateLimit),
		logger:         logger,
		sleep:          sleepContext,
	}
}

// SetRateLimiterManager replaces the limiter manager; nil disables limiting
func (c *Client) SetRateLimiterManager(m IRateLimiterManager) {
	c.limiterManager = m
}

// Do executes req against path relative to the base URL
func (c *Client) Do(ctx context.Context, path string, req Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body []byte
	if req.Body != nil {
		var err error
		body, err = json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode body for %s %s: %w", method, path, err)
		}
	}

	attempts := 1
	if method == http.MethodGet {
		attempts = c.config.MaxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := calculateBackoffWithJitter(c.config.BaseBackoff, attempt)
			c.logger.Info("APIClient: retrying request",
				zap.String("method", method),
				zap.String("path", path),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))
			c.onRetry()
			if err := c.sleep(ctx, backoff); err != nil {
				return nil, &Error{Err: err}
			}
		}

		resp, err := c.execute(ctx, method, path, req.Params, body)
		if err == nil {
			c.onRequest("success")
			return resp, nil
		}
		lastErr = err

		apiErr := err.(*Error)
		if apiErr.Status != 0 && !isRetryableStatus(apiErr.Status) {
			c.onRequest("error")
			return nil, apiErr
		}
		if apiErr.Status == http.StatusTooManyRequests {
			c.onRequest("rate_limited")
		} else {
			c.onRequest("error")
		}
		if ctx.Err() != nil {
			break
		}
	}

	return nil, lastErr
}

// execute performs one attempt; errors are always *Error
func (c *Client) execute(ctx context.Context, method, path string, params url.Values, body []byte) (*Response, error) {
	u, err := c.buildURL(path, params)
	if err != nil {
		return nil, &Error{Err: err}
	}

	if c.limiterManager != nil {
		if limiter := c.limiterManager.GetLimiterForURL(u); limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, &Error{Err: fmt.Errorf("rate limiter wait failed: %w", err)}
			}
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, &Error{Err: err}
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token := c.tokens(); token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("%s %s failed after %.2fs: %w", method, path, time.Since(start).Seconds(), err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Status: resp.StatusCode, Err: fmt.Errorf("error reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{
			Status:  resp.StatusCode,
			Message: errorMessage(data),
			Data:    data,
		}
	}

	return &Response{Status: resp.StatusCode, Data: data}, nil
}

func (c *Client) buildURL(path string, params url.Values) (*url.URL, error) {
	raw := strings.TrimRight(c.config.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if len(params) > 0 {
		query := u.Query()
		for name, values := range params {
			for _, v := range values {
				query.Add(name, v)
			}
		}
		u.RawQuery = query.Encode()
	}
	return u, nil
}

func (c *Client) onRequest(status string) {
	if c.statusHandler != nil {
		c.statusHandler.OnRequest(status)
	}
}

func (c *Client) onRetry() {
	if c.statusHandler != nil {
		c.statusHandler.OnRetry()
	}
}

// calculateBackoffWithJitter calculates backoff duration with jitter for retries
func calculateBackoffWithJitter(baseBackoff time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return baseBackoff
	}

	multiplier := uint(1) << uint(attempt-1)
	backoff := time.Duration(float64(baseBackoff) * float64(multiplier))
	if backoff < 2 {
		return backoff
	}
	jitter := time.Duration(rand.Int63n(int64(backoff / 2)))
	return backoff + jitter
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
