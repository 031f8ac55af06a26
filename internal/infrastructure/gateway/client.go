package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/marketlens/client/internal/domain"
	"golang.org/x/time/rate"
)

const userAgent = "MarketLens/1.0"

// ClientConfig tunes the gateway client
type ClientConfig struct {
	Timeout       time.Duration // per API call; image fetches are bounded by ctx only
	RateLimit     float64       // requests per second, 0 disables limiting
	Burst         int
	MaxImageBytes int64
}

// Client handles communication with the marketplace analysis backend
type Client struct {
	httpClient    *http.Client
	fetchClient   *http.Client
	baseURL       string
	rateLimiter   *rate.Limiter
	maxImageBytes int64
}

// NewClient creates a new backend client rooted at baseURL
func NewClient(baseURL string, cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = domain.MaxUploadBytes
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		fetchClient:   &http.Client{},
		baseURL:       strings.TrimRight(baseURL, "/"),
		rateLimiter:   limiter,
		maxImageBytes: cfg.MaxImageBytes,
	}
}

// BaseURL returns the API base the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Call issues a request to endpoint and returns the raw JSON body.
// A body carrying an "error" field fails with *domain.ServiceError; transport
// failures and malformed bodies fail with domain.ErrNetwork.
func (c *Client) Call(ctx context.Context, endpoint string, opts domain.CallOptions) (json.RawMessage, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", domain.ErrNetwork, err)
	}

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	reqURL := c.baseURL + endpoint
	if len(opts.Query) > 0 {
		params := url.Values{}
		for k, v := range opts.Query {
			params.Add(k, v)
		}
		reqURL = fmt.Sprintf("%s?%s", reqURL, params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, opts.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", domain.ErrNetwork, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if opts.ContentType != "" {
		req.Header.Set("Content-Type", opts.ContentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Gateway] %s %s failed: %v", method, endpoint, err)
		return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", domain.ErrNetwork, err)
	}

	raw, err := decodeEnvelope(resp.StatusCode, body)
	if err != nil {
		log.Printf("[Gateway] %s %s - Status: %d, error: %v", method, endpoint, resp.StatusCode, err)
		return nil, err
	}
	return raw, nil
}

// envelope picks out the fields the backend uses to report failures
type envelope struct {
	Error  json.RawMessage `json:"error"`
	Detail json.RawMessage `json:"detail"`
}

func decodeEnvelope(status int, body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return nil, fmt.Errorf("%w: malformed response (status %d)", domain.ErrNetwork, status)
	}

	var env envelope
	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("%w: malformed response: %v", domain.ErrNetwork, err)
		}
		if msg, ok := truthyMessage(env.Error); ok {
			return nil, &domain.ServiceError{Message: msg, StatusCode: status}
		}
	}

	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		msg, ok := truthyMessage(env.Detail)
		if !ok {
			msg = fmt.Sprintf("request failed with status %d", status)
		}
		return nil, &domain.ServiceError{Message: msg, StatusCode: status}
	}

	return json.RawMessage(trimmed), nil
}

// truthyMessage renders a JSON value as a message when it is set and not empty,
// false, zero or null.
func truthyMessage(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, val != ""
	case bool:
		if !val {
			return "", false
		}
	case float64:
		if val == 0 {
			return "", false
		}
	}
	return string(raw), true
}

// StorageInfo queries the storage introspection endpoint
func (c *Client) StorageInfo(ctx context.Context) (*domain.StorageInfo, error) {
	raw, err := c.Call(ctx, "/storage-info", domain.CallOptions{})
	if err != nil {
		return nil, err
	}

	var info domain.StorageInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", domain.ErrNetwork, err)
	}
	return &info, nil
}

// CheckHealth issues a single GET /health and returns the status code.
// It skips the rate limiter; the caller bounds it with ctx.
func (c *Client) CheckHealth(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")

	resp, err := c.fetchClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return resp.StatusCode, fmt.Errorf("API responded with status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}
