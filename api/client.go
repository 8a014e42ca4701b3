// Package api is a client for the Sublime email-security analysis API.
//
// The client wraps a fixed set of versioned REST endpoints: message
// enrichment and analysis, detection management, flagged message triage,
// and backtest jobs. All analysis happens server side; this package only
// builds requests and decodes responses.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sublime-security/sublime-cli/logger"
	"github.com/sublime-security/sublime-cli/pkg/retry"
)

// DefaultBaseURL is used unless the BASE_URL environment variable is set.
const DefaultBaseURL = "https://api.sublimesecurity.com"

// APIVersion is the path prefix of every endpoint.
const APIVersion = "v1"

// API endpoints. Endpoints with a %s take an ID or name.
const (
	epMessageAnalyze      = "message/analyze"
	epMessageAnalyzeMulti = "message/analyze/multi"
	epMessageEnrich       = "message/enrich"
	epMessageCreate       = "message/create"

	epModelAnalyze      = "model/analyze"
	epModelAnalyzeMulti = "model/analyze/multi"
	epModelQuery        = "model/query"
	epModelQueryMulti   = "model/query/multi"

	epCommunityDetections        = "community/detections"
	epCommunityDetectionByID     = "community/detections/%s"
	epCommunityDetectionByName   = "community/detections/name/%s"
	epSubscribeDetectionByID     = "community/detections/%s/subscribe"
	epSubscribeDetectionByName   = "community/detections/name/%s/subscribe"
	epUnsubscribeDetectionByID   = "community/detections/%s/unsubscribe"
	epUnsubscribeDetectionByName = "community/detections/name/%s/unsubscribe"

	epOrgDetections             = "org/detections"
	epOrgDetectionByID          = "org/detections/%s"
	epOrgDetectionByName        = "org/detections/name/%s"
	epShareOrgDetectionByID     = "org/detections/%s/share"
	epShareOrgDetectionByName   = "org/detections/name/%s/share"
	epUnshareOrgDetectionByID   = "org/detections/%s/unshare"
	epUnshareOrgDetectionByName = "org/detections/name/%s/unshare"
	epBacktestDetections        = "org/detections/backtest/multi"

	epAdminActionReview    = "actions/admin/review/%s"
	epAdminActionReviewAll = "actions/admin/review/multi/all"
	epAdminActionDelete    = "actions/admin/delete/%s"

	epGetMe                 = "org/sublime-users/me"
	epGetOrg                = "org"
	epGetUsers              = "org/users"
	epFlaggedMessages       = "org/flagged-messages"
	epFlaggedMessagesDetail = "org/flagged-messages/%s/detail"
	epSendMockTutorialOne   = "org/sublime-users/mock-tutorial-one"
	epUpdateUserLicense     = "org/users/email/%s/license"
	epPrivacyAck            = "org/sublime-users/privacy-ack"

	epGetJobStatus = "jobs/%s/status"
	epGetJobOutput = "jobs/%s/output"
)

// Client is a Sublime API client. It is safe for concurrent use.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	retryCfg   retry.BackoffConfig
	cache      *responseCache
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRetryConfig overrides the backoff settings for transient failures.
func WithRetryConfig(cfg retry.BackoffConfig) Option {
	return func(c *Client) {
		c.retryCfg = cfg
	}
}

// WithoutCache disables in-process caching of GET responses.
func WithoutCache() Option {
	return func(c *Client) {
		c.cache = nil
	}
}

// NewClient creates an API client authenticated with apiKey.
func NewClient(apiKey string, opts ...Option) *Client {
	baseURL := DefaultBaseURL
	if env := os.Getenv("BASE_URL"); env != "" {
		baseURL = env
	}

	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	c := &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   60 * time.Second,
		},
		retryCfg: retry.DefaultBackoffConfig(),
		cache:    newResponseCache(60*time.Second, 256),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do sends one API request and decodes the response body. GET responses
// are cached (unless useCache is false) and retried on transient
// failures; mutating requests are sent exactly once.
func (c *Client) do(ctx context.Context, method, endpoint string, params url.Values, body any, useCache bool) (any, error) {
	u := strings.Join([]string{c.baseURL, APIVersion, endpoint}, "/")
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	cacheKey := method + " " + u
	if useCache && method == http.MethodGet && c.cache != nil {
		if cached, ok := c.cache.get(cacheKey); ok {
			logger.Debug("API response served from cache", "url", u)
			return cached, nil
		}
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	logger.Debug("Sending API request", "method", method, "url", u)

	var result any
	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(payload))
		if err != nil {
			return retry.Stop(fmt.Errorf("failed to build request: %w", err))
		}
		req.Header.Set("User-Agent", UserAgent)
		req.Header.Set("Key", c.apiKey)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// A failed mutation may still have reached the server, so
			// only GETs are resent.
			if method != http.MethodGet {
				return retry.Stop(fmt.Errorf("request failed: %w", err))
			}
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		decoded, err := decodeResponse(resp)
		if err != nil {
			apiErr, ok := err.(*APIError)
			if !ok {
				return retry.Stop(err)
			}
			// Rate limits are retried on every method: the server
			// rejected the request before acting on it. Other
			// transient statuses are only safe to retry on GETs.
			if apiErr.StatusCode == http.StatusTooManyRequests {
				return err
			}
			if method == http.MethodGet && retryableStatus(apiErr.StatusCode) {
				return err
			}
			return retry.Stop(err)
		}
		result = decoded
		return nil
	}

	err := retry.WithBackoff(ctx, c.retryCfg, attempt)
	if err != nil {
		return nil, err
	}

	if useCache && method == http.MethodGet && c.cache != nil {
		c.cache.set(cacheKey, result)
	} else if method != http.MethodGet && c.cache != nil {
		// A mutation may change what listings return.
		c.cache.invalidate()
	}

	return result, nil
}

// retryableStatus reports whether a response status is worth retrying.
func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// decodeResponse parses a response body and maps error statuses to
// error categories. The API reports errors as {"error": {"message": ...}}.
func decodeResponse(resp *http.Response) (any, error) {
	requestID := resp.Header.Get("X-Request-Id")
	retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))

	var raw []byte
	var body any
	if resp.StatusCode != http.StatusNoContent {
		var err error
		raw, err = io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
			if err := json.Unmarshal(raw, &body); err != nil {
				apiErr := newAPIError(
					fmt.Sprintf("invalid JSON response from API (HTTP %d)", resp.StatusCode),
					resp.StatusCode, requestID)
				apiErr.RetryAfter = retryAfter
				return nil, apiErr
			}
		} else {
			body = string(raw)
		}
	}

	if resp.StatusCode >= 400 {
		message := extractErrorMessage(body)
		if message == "" {
			message = fmt.Sprintf("invalid response from API: %s (HTTP response code was %d)",
				strconv.Quote(truncate(string(raw), 200)), resp.StatusCode)
		}
		apiErr := newAPIError(message, resp.StatusCode, requestID)
		apiErr.RetryAfter = retryAfter
		return nil, apiErr
	}

	return body, nil
}

// parseRetryAfter handles both forms of the Retry-After header: a
// delay in seconds or an HTTP date.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs > 0 {
			return time.Duration(secs) * time.Second
		}
		return 0
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func extractErrorMessage(body any) string {
	obj, ok := body.(map[string]any)
	if !ok {
		return ""
	}
	errData, ok := obj["error"].(map[string]any)
	if !ok {
		return ""
	}
	message, _ := errData["message"].(string)
	return message
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) (any, error) {
	return c.do(ctx, http.MethodGet, endpoint, params, nil, true)
}

// getFresh bypasses the response cache; used for polling endpoints.
func (c *Client) getFresh(ctx context.Context, endpoint string, params url.Values) (any, error) {
	return c.do(ctx, http.MethodGet, endpoint, params, nil, false)
}

func (c *Client) post(ctx context.Context, endpoint string, body any) (any, error) {
	return c.do(ctx, http.MethodPost, endpoint, nil, body, false)
}

func (c *Client) patch(ctx context.Context, endpoint string, body any) (any, error) {
	return c.do(ctx, http.MethodPatch, endpoint, nil, body, false)
}

func (c *Client) delete(ctx context.Context, endpoint string, params url.Values) (any, error) {
	return c.do(ctx, http.MethodDelete, endpoint, params, nil, false)
}
