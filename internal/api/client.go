// Package api provides the client for HTTP record services.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"

	"github.com/rescale/livelist/internal/config"
	"github.com/rescale/livelist/internal/constants"
	"github.com/rescale/livelist/internal/http"
	"github.com/rescale/livelist/internal/models"
	"github.com/rescale/livelist/internal/ratelimit"
	"github.com/rescale/livelist/internal/version"
)

// QueryPath is the endpoint records are queried from.
const QueryPath = "/api/v1/query/"

// defaultCooldown applies when a 429 response carries no Retry-After header.
const defaultCooldown = 5 * time.Second

// retryLogger implements the retryablehttp.LeveledLogger interface
type retryLogger struct{}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	log.Error().Interface("details", keysAndValues).Msgf("[RETRY ERROR] %s", msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	// Only log errors and warnings, not all info
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	// Only log errors and warnings
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	log.Warn().Interface("details", keysAndValues).Msgf("[RETRY WARN] %s", msg)
}

// apiMetrics tracks API usage statistics
type apiMetrics struct {
	sync.Mutex
	totalCalls  int64
	callsByPath map[string]int64
}

// QueryBody is the JSON body posted to QueryPath.
type QueryBody struct {
	Expr    models.Expr `json:"expr"`
	Detail  string      `json:"detail,omitempty"`
	Sources []string    `json:"sources,omitempty"`
	Kinds   []string    `json:"kinds,omitempty"`
	OrderBy string      `json:"order_by,omitempty"`
	Offset  int         `json:"offset"`
	Limit   int         `json:"limit,omitempty"`
}

// queryResponse is the envelope form of a query response.
type queryResponse struct {
	Records []models.Record `json:"records"`
	Results []models.Record `json:"results"`
}

// Client talks to an HTTP record service.
type Client struct {
	httpClient *nethttp.Client
	baseURL    string
	apiKey     string
	limiter    *ratelimit.RateLimiter
	metrics    *apiMetrics
}

// NewClient creates a client for the service at backend.URL.
func NewClient(backend config.BackendConfig, proxy config.ProxyConfig) (*Client, error) {
	if strings.TrimSpace(backend.URL) == "" {
		return nil, fmt.Errorf("API base URL is empty")
	}

	// Configure HTTP client with proxy support
	httpClient, err := http.CreateOptimizedClient(proxy, backend.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}
	if backend.TimeoutSeconds > 0 {
		httpClient.Timeout = time.Duration(backend.TimeoutSeconds) * time.Second
	}

	// Wrap with retry logic
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = httpClient
	retryClient.RetryMax = backend.MaxRetries
	retryClient.RetryWaitMin = constants.RetryInitialDelay
	retryClient.RetryWaitMax = constants.RetryMaxDelay
	retryClient.Logger = &retryLogger{}
	// Hand the last response back so status codes reach doRequest
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	rate := backend.RateLimit
	if rate <= 0 {
		rate = constants.QueryRateLimit
	}

	return &Client{
		httpClient: retryClient.StandardClient(),
		baseURL:    strings.TrimSuffix(backend.URL, "/"),
		apiKey:     backend.APIKey,
		limiter:    ratelimit.NewQueryRateLimiter(rate),
		metrics: &apiMetrics{
			callsByPath: make(map[string]int64),
		},
	}, nil
}

// doRequest performs an HTTP request with authentication and rate limiting
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (*nethttp.Response, error) {
	// Wait for rate limiter to allow request
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter cancelled: %w", err)
	}

	c.metrics.Lock()
	c.metrics.totalCalls++
	c.metrics.callsByPath[path]++
	c.metrics.Unlock()

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	url := c.baseURL + path
	req, err := nethttp.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Token "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("method", method).Str("path", path).Msg("API call failed")
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode == nethttp.StatusTooManyRequests {
		cooldown := defaultCooldown
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
				cooldown = time.Duration(secs) * time.Second
			}
		}
		c.limiter.SetCooldown(cooldown)
		log.Warn().
			Str("method", method).
			Str("path", path).
			Dur("cooldown", cooldown).
			Msg("THROTTLED: rate limit exceeded")
	}

	return resp, nil
}

// Query posts body to QueryPath and decodes the returned records. Both a
// bare array and an object holding "records" or "results" are accepted.
func (c *Client) Query(ctx context.Context, body QueryBody) ([]models.Record, error) {
	resp, err := c.doRequest(ctx, nethttp.MethodPost, QueryPath, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read query response: %w", err)
	}

	if resp.StatusCode != nethttp.StatusOK {
		return nil, &StatusError{
			Method:     nethttp.MethodPost,
			Path:       QueryPath,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}

	return decodeRecords(data)
}

func decodeRecords(data []byte) ([]models.Record, error) {
	// Try decoding as array first
	var records []models.Record
	if err := json.Unmarshal(data, &records); err == nil {
		return records, nil
	}

	var envelope queryResponse
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode query response: %w", err)
	}
	if envelope.Records != nil {
		return envelope.Records, nil
	}
	return envelope.Results, nil
}

// Calls returns the total number of requests issued and the count per path.
func (c *Client) Calls() (int64, map[string]int64) {
	c.metrics.Lock()
	defer c.metrics.Unlock()

	byPath := make(map[string]int64, len(c.metrics.callsByPath))
	for k, v := range c.metrics.callsByPath {
		byPath[k] = v
	}
	return c.metrics.totalCalls, byPath
}

// CooldownRemaining returns how long requests stay paused after a 429.
func (c *Client) CooldownRemaining() time.Duration {
	return c.limiter.CooldownRemaining()
}
