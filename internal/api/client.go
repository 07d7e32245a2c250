// Package api is a thin client for the Visium backend REST interface.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/me/visium/internal/logging"
	"github.com/me/visium/pkg/model"
)

// ErrAuthRequired is returned, without sending anything, when an
// authenticated endpoint is called and no token is available.
var ErrAuthRequired = errors.New("authentication required")

// TokenSource supplies the bearer token for authenticated requests.
type TokenSource interface {
	Token() (string, error)
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() (string, error)

func (f TokenFunc) Token() (string, error) { return f() }

// StaticToken is a TokenSource returning a fixed token.
type StaticToken string

func (s StaticToken) Token() (string, error) {
	if s == "" {
		return "", ErrAuthRequired
	}
	return string(s), nil
}

// Recorder observes completed requests. status is 0 for transport failures.
type Recorder interface {
	ObserveRequest(endpoint string, status int, elapsed time.Duration)
}

// Client is an HTTP client for the Visium API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger

	tokens   TokenSource
	notifier logging.Notifier
	limiter  *rate.Limiter
	recorder Recorder
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// WithTimeout sets the per-request timeout on a copy of the current
// http.Client, leaving a shared client such as http.DefaultClient untouched.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := &http.Client{}
		if c.HTTPClient != nil {
			*hc = *c.HTTPClient
		}
		hc.Timeout = d
		c.HTTPClient = hc
	}
}

// WithTokenSource sets where bearer tokens come from.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithNotifier sets where request failures are reported.
func WithNotifier(n logging.Notifier) Option {
	return func(c *Client) { c.notifier = n }
}

// WithRateLimit limits outgoing requests to rps with the given burst.
// rps <= 0 leaves requests unlimited.
func WithRateLimit(rps float64, burst int) Option {
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

// WithMetrics records every request on r.
func WithMetrics(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

// NewClient creates a Visium API client.
func NewClient(baseURL string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Logger:     logger.With("component", "api"),
		notifier:   logging.NopNotifier{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetTokenSource replaces the token source after construction.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.tokens = ts
}

// request describes one backend call.
type request struct {
	method string
	path   string
	body   any // JSON-encoded when set

	raw         io.Reader // pre-encoded body, used with contentType
	contentType string

	auth  bool // attach the bearer token; abort if none
	quiet bool // failures are returned but not logged or notified
}

// do performs r and decodes a successful response into out (may be nil).
// Failures are reported through the notifier, except for the expected
// "not liked" condition and missing credentials.
func (c *Client) do(ctx context.Context, r request, out any) error {
	err := c.send(ctx, r, out)
	if err == nil || r.quiet || errors.Is(err, ErrAuthRequired) {
		return err
	}
	msg := err.Error()
	if strings.Contains(msg, model.NotLikedMessage) {
		return err
	}
	c.Logger.Error("API request error", "method", r.method, "path", r.path, "error", err)
	c.notifier.Notify(logging.Notification{
		Title:       "Error",
		Description: msg,
		Variant:     logging.VariantDestructive,
	})
	return err
}

func (c *Client) send(ctx context.Context, r request, out any) error {
	var bodyReader io.Reader
	contentType := r.contentType
	switch {
	case r.raw != nil:
		bodyReader = r.raw
	case r.body != nil:
		data, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.BaseURL+r.path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	if r.auth {
		if c.tokens == nil {
			return ErrAuthRequired
		}
		token, err := c.tokens.Token()
		if err != nil || token == "" {
			return ErrAuthRequired
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}

	c.Logger.Debug("HTTP request", "method", r.method, "path", r.path)
	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.observe(r.path, 0, start)
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	c.observe(r.path, resp.StatusCode, start)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	c.Logger.Debug("HTTP response", "status", resp.StatusCode, "bytes", len(respBody))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, respBody)
	}
	if resp.StatusCode == http.StatusNoContent || out == nil {
		return nil
	}
	if raw, ok := out.(*[]byte); ok {
		*raw = respBody
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse response (status %d): %w", resp.StatusCode, err)
	}
	return nil
}

func (c *Client) observe(endpoint string, status int, start time.Time) {
	if c.recorder != nil {
		c.recorder.ObserveRequest(endpoint, status, time.Since(start))
	}
}

// decodeError builds an APIError from a FastAPI-style error body. detail is
// either a string or a list of validation errors.
func decodeError(status int, body []byte) *model.APIError {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return model.NewAPIError(status, "")
	}

	var detail string
	if err := json.Unmarshal(payload.Detail, &detail); err == nil {
		return model.NewAPIError(status, detail)
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(payload.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return model.NewAPIError(status, strings.Join(msgs, "; "))
	}
	return model.NewAPIError(status, "")
}

// IsNotLiked reports whether err is the backend's "not liked" response to an
// unlike of an image the user never liked.
func IsNotLiked(err error) bool {
	var apiErr *model.APIError
	return errors.As(err, &apiErr) && strings.Contains(apiErr.Detail, model.NotLikedMessage)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
