// Package client is a small client for the firmd HTTP API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/fyrsmithlabs/firmd/internal/analytics"
	httpserver "github.com/fyrsmithlabs/firmd/internal/http"
	"github.com/fyrsmithlabs/firmd/internal/perf"
)

// DefaultTimeout bounds every request unless WithHTTPClient overrides it.
const DefaultTimeout = 10 * time.Second

// Identity is sent with every /api/v1 request.
type Identity struct {
	OrgID  string
	UserID string
	Roles  string
}

// APIError is a non-2xx reply from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("server returned status %d (%s): %s", e.Status, e.Code, e.Message)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// Client calls one firmd server.
type Client struct {
	baseURL  string
	identity Identity
	http     *http.Client
}

// New creates a client for the server at baseURL.
func New(baseURL string, id Identity, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		identity: id,
		http:     &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the server URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Health returns the server health. A degraded server still yields its
// response alongside an *APIError.
func (c *Client) Health(ctx context.Context) (httpserver.HealthResponse, error) {
	var h httpserver.HealthResponse
	body, status, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return h, err
	}
	if err := json.Unmarshal(body, &h); err != nil {
		return h, fmt.Errorf("failed to decode response: %w", err)
	}
	if status != http.StatusOK {
		return h, &APIError{Status: status, Code: h.Status, Message: describeChecks(h.Checks)}
	}
	return h, nil
}

// Dashboard fetches every analytics metric for the from/to range
// ("YYYY-MM", either may be empty).
func (c *Client) Dashboard(ctx context.Context, from, to string) (*analytics.Dashboard, error) {
	var d analytics.Dashboard
	if err := c.getJSON(ctx, "/api/v1/analytics/dashboard", rangeQuery(from, to), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Perf fetches per-route latency stats. Routes whose p95 exceeds slow are
// flagged; zero flags nothing.
func (c *Client) Perf(ctx context.Context, slow time.Duration) (perf.Report, error) {
	q := url.Values{}
	if slow > 0 {
		q.Set("slow", slow.String())
	}
	var r perf.Report
	err := c.getJSON(ctx, "/api/v1/perf", q, &r)
	r.Threshold = slow
	return r, err
}

// Report fetches the business report rendered by the server in format.
func (c *Client) Report(ctx context.Context, format, from, to string) ([]byte, error) {
	q := rangeQuery(from, to)
	if format != "" {
		q.Set("format", format)
	}
	body, status, err := c.do(ctx, http.MethodGet, "/api/v1/reports/business?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, apiError(status, body)
	}
	return body, nil
}

// InvalidateAnalytics drops the org's cached analytics.
func (c *Client) InvalidateAnalytics(ctx context.Context) (int, error) {
	body, status, err := c.do(ctx, http.MethodPost, "/api/v1/analytics/invalidate", nil)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, apiError(status, body)
	}
	var resp httpserver.InvalidateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.Invalidated, nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	body, status, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return apiError(status, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	if c.identity.OrgID != "" {
		req.Header.Set(httpserver.HeaderOrgID, c.identity.OrgID)
		req.Header.Set(httpserver.HeaderUserID, c.identity.UserID)
		req.Header.Set(httpserver.HeaderRoles, c.identity.Roles)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to send request to %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, resp.StatusCode, nil
}

// apiError decodes an error body, falling back to the raw text.
func apiError(status int, body []byte) error {
	var er httpserver.ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error.Code != "" {
		return &APIError{Status: status, Code: er.Error.Code, Message: er.Error.Message, Fields: er.Error.Fields}
	}
	return &APIError{Status: status, Message: strings.TrimSpace(string(body))}
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == status
}

func rangeQuery(from, to string) url.Values {
	q := url.Values{}
	if from != "" {
		q.Set("from", from)
	}
	if to != "" {
		q.Set("to", to)
	}
	return q
}

func describeChecks(checks map[string]string) string {
	var failed []string
	for name, state := range checks {
		if state != "ok" {
			failed = append(failed, name+": "+state)
		}
	}
	if len(failed) == 0 {
		return "unhealthy"
	}
	sort.Strings(failed)
	return strings.Join(failed, "; ")
}
