// Package provider implements the forex and flight data vendors and the
// deterministic simulated generators used when every vendor is exhausted.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/tripfx/tripfx/internal/core/engine"
)

const maxBodyBytes = 4 << 20

// DefaultQuotaMarkers classify an error message as quota exhaustion.
var DefaultQuotaMarkers = []string{"quota", "limit exceeded", "credits"}

// Client holds the transport shared by every vendor implementation.
type Client struct {
	ID           string
	BaseURL      string
	APIKey       string
	HTTP         *http.Client
	Limiter      *rate.Limiter
	QuotaMarkers []string
	Clock        func() time.Time
}

// Name returns the provider identifier used for quota state and metrics.
func (c *Client) Name() string {
	if c == nil {
		return ""
	}
	return c.ID
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// get issues a GET and returns the raw response. A non-nil Outcome means the
// call failed before a response could be read.
func (c *Client) get(ctx context.Context, endpoint *url.URL, headers map[string]string) (*response, *engine.Outcome) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			out := engine.Transient(fmt.Errorf("rate limiter: %w", err))
			return nil, &out
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		out := engine.Malformed(fmt.Errorf("build request: %w", err))
		return nil, &out
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	client := c.HTTP
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		out := engine.Transient(err)
		return nil, &out
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		out := engine.Transient(fmt.Errorf("read body: %w", err)).WithStatus(resp.StatusCode)
		return nil, &out
	}

	return &response{status: resp.StatusCode, header: resp.Header, body: body}, nil
}

// classify maps a response to a terminal non-success outcome, or returns
// false when the payload should be parsed as data. errMessage is the vendor's
// error text extracted from the body, if any.
func (c *Client) classify(resp *response, errMessage string) (engine.Outcome, bool) {
	status := resp.status
	errMessage = strings.TrimSpace(errMessage)

	switch {
	case status == http.StatusTooManyRequests:
		return engine.QuotaExceeded(vendorError(status, errMessage)).
			WithStatus(status).
			WithRetryAfter(retryAfterHeader(resp.header)), true
	case status >= 500 || status == http.StatusRequestTimeout:
		if c.isQuotaMessage(errMessage) {
			return engine.QuotaExceeded(vendorError(status, errMessage)).
				WithStatus(status).
				WithRetryAfter(retryAfterHeader(resp.header)), true
		}
		return engine.Transient(vendorError(status, errMessage)).
			WithStatus(status).
			WithRetryAfter(retryAfterHeader(resp.header)), true
	case status >= 400:
		if c.isQuotaMessage(errMessage) {
			return engine.QuotaExceeded(vendorError(status, errMessage)).WithStatus(status), true
		}
		return engine.Malformed(vendorError(status, errMessage)).WithStatus(status), true
	}

	if errMessage != "" {
		if c.isQuotaMessage(errMessage) {
			return engine.QuotaExceeded(vendorError(status, errMessage)).WithStatus(status), true
		}
		return engine.Malformed(vendorError(status, errMessage)).WithStatus(status), true
	}

	if !gjson.ValidBytes(resp.body) {
		return engine.Malformed(errors.New("response is not valid JSON")).WithStatus(status), true
	}

	return engine.Outcome{}, false
}

func (c *Client) isQuotaMessage(message string) bool {
	message = strings.ToLower(strings.TrimSpace(message))
	if message == "" {
		return false
	}
	markers := c.QuotaMarkers
	if len(markers) == 0 {
		markers = DefaultQuotaMarkers
	}
	for _, marker := range markers {
		marker = strings.ToLower(strings.TrimSpace(marker))
		if marker != "" && strings.Contains(message, marker) {
			return true
		}
	}
	return false
}

func (c *Client) baseURL(fallback string) (*url.URL, error) {
	raw := strings.TrimSpace(c.BaseURL)
	if raw == "" {
		raw = fallback
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", raw, err)
	}
	return parsed, nil
}

func (c *Client) now() time.Time {
	if c != nil && c.Clock != nil {
		return c.Clock()
	}
	return time.Now().UTC()
}

func vendorError(status int, message string) error {
	if message == "" {
		return fmt.Errorf("http %d", status)
	}
	return fmt.Errorf("http %d: %s", status, message)
}

// firstString returns the first non-empty string found at any of the gjson paths.
func firstString(body []byte, paths ...string) string {
	for _, path := range paths {
		value := gjson.GetBytes(body, path)
		if value.Exists() && value.Type == gjson.String && strings.TrimSpace(value.String()) != "" {
			return value.String()
		}
	}
	return ""
}

func retryAfterHeader(header http.Header) time.Duration {
	if header == nil {
		return 0
	}

	retry := strings.TrimSpace(header.Get("Retry-After"))
	if retry == "" {
		return 0
	}

	if seconds, err := time.ParseDuration(retry + "s"); err == nil {
		return seconds
	}
	if parsed, err := http.ParseTime(retry); err == nil {
		if wait := time.Until(parsed); wait > 0 {
			return wait
		}
	}
	return 0
}
