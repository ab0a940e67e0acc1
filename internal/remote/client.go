// Package remote provides a rate-limited HTTP client for a hosted registry
// API. It implements registry.Client.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/openaccesstools/oar/internal/registry"
)

const (
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 60 * time.Second

	// RateLimit is the default request budget per second.
	RateLimit = 10.0

	// maxAttempts bounds retries of rate-limited and server-error responses.
	maxAttempts = 3
)

// Client is a rate-limited HTTP client for the registry API.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	token      string
	baseURL    string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithToken sets the API token for authenticated requests.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRateLimit overrides the per-second request budget.
func WithRateLimit(rps float64) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// NewClient creates a registry API client for the given base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(RateLimit), 1),
		baseURL:    baseURL,
	}

	if token := os.Getenv("OAR_API_TOKEN"); token != "" {
		c.token = token
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// LookupByID returns the entity with the given id.
func (c *Client) LookupByID(ctx context.Context, id int64) (*registry.EntityRecord, error) {
	var rec registry.EntityRecord
	if err := c.call(ctx, http.MethodGet, fmt.Sprintf("/nodes/%d", id), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// LookupByISSN returns all entities carrying the given ISSN in either
// identifier field.
func (c *Client) LookupByISSN(ctx context.Context, issn string) ([]registry.EntityRecord, error) {
	var recs []registry.EntityRecord
	path := "/nodes?issn=" + url.QueryEscape(issn)
	if err := c.call(ctx, http.MethodGet, path, nil, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// LookupByName returns entities whose name contains the query,
// case-insensitively.
func (c *Client) LookupByName(ctx context.Context, name string) ([]registry.EntityRecord, error) {
	var recs []registry.EntityRecord
	path := "/nodes?name=" + url.QueryEscape(name)
	if err := c.call(ctx, http.MethodGet, path, nil, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// Synonyms returns the full name family of the entity.
func (c *Client) Synonyms(ctx context.Context, id int64) ([]registry.EntityRecord, error) {
	var recs []registry.EntityRecord
	if err := c.call(ctx, http.MethodGet, fmt.Sprintf("/nodes/%d/synonyms", id), nil, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// CreateEntity stores a new entity. A 409 response maps to
// *registry.DuplicateNameError; with force the server retries under a
// suffixed name instead.
func (c *Client) CreateEntity(ctx context.Context, e registry.EntityRecord, force bool) (*registry.EntityRecord, error) {
	path := "/nodes"
	if force {
		path += "?force=true"
	}
	var rec registry.EntityRecord
	err := c.call(ctx, http.MethodPost, path, e, &rec)
	if apiErr, ok := asAPIError(err); ok && apiErr.StatusCode == http.StatusConflict {
		return nil, &registry.DuplicateNameError{Name: e.Name}
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateEntity applies field updates to an entity.
func (c *Client) UpdateEntity(ctx context.Context, id int64, fields map[string]any) (*registry.EntityRecord, error) {
	var rec registry.EntityRecord
	if err := c.call(ctx, http.MethodPatch, fmt.Sprintf("/nodes/%d", id), fields, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// LookupPolicies returns all policies of the given kind attached to the
// entity.
func (c *Client) LookupPolicies(ctx context.Context, kind registry.PolicyKind, nodeID int64) ([]registry.PolicyRecord, error) {
	var recs []registry.PolicyRecord
	path := fmt.Sprintf("/policies/%s?node=%d", kind, nodeID)
	if err := c.call(ctx, http.MethodGet, path, nil, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// CreatePolicy stores a new policy.
func (c *Client) CreatePolicy(ctx context.Context, p registry.PolicyRecord) (*registry.PolicyRecord, error) {
	var rec registry.PolicyRecord
	if err := c.call(ctx, http.MethodPost, "/policies/"+string(p.Kind), p, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdatePolicy applies field updates to a policy of the given kind.
func (c *Client) UpdatePolicy(ctx context.Context, kind registry.PolicyKind, policyID int64, fields map[string]any) (*registry.PolicyRecord, error) {
	var rec registry.PolicyRecord
	path := fmt.Sprintf("/policies/%s/%d", kind, policyID)
	if err := c.call(ctx, http.MethodPatch, path, fields, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// call performs one API request with rate limiting and bounded retries on
// 429 and 5xx responses. A 404 maps to registry.ErrNotFound.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		retry, err := c.do(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			return err
		}
	}
	return lastErr
}

// do performs a single request. The bool result indicates whether the
// failure is retryable.
func (c *Client) do(ctx context.Context, method, path string, payload []byte, out any) (bool, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return false, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return true, fmt.Errorf("%w: %v", ErrNetworkError, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return retryable, err
	}

	if out == nil {
		return false, nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return true, fmt.Errorf("%w: %v", ErrNetworkError, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return false, nil
}

// checkStatus returns an error if the HTTP response indicates a problem.
func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return registry.ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrAuthError, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	case resp.StatusCode >= 400:
		msg := readErrorMessage(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	return nil
}

// readErrorMessage extracts a detail message from an error body, if any.
func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return ""
	}
	var payload struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Detail != "" {
		return payload.Detail
	}
	return ""
}

func asAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
