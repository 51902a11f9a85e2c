// Package registry is the HTTP client for the remote guest registry.
//
// The registry stores guest records per event and exposes four operations:
// list, create, update and delete. Every request carries a bearer token and
// every non-2xx response becomes a *RemoteError whose message is the response
// body text, unchanged.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JonMunkholm/guestlist/internal/metrics"
	"github.com/JonMunkholm/guestlist/internal/schema"
)

// DefaultTimeout bounds a single registry request.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 64 << 10

// Operation names, used in errors and metrics.
const (
	OpList   = "list"
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Registry is the set of operations the import pipeline needs.
type Registry interface {
	List(ctx context.Context, eventID string) ([]schema.GuestRecord, error)
	Create(ctx context.Context, eventID string, in schema.GuestInput) (schema.GuestRecord, error)
	Update(ctx context.Context, eventID, guestID string, in schema.GuestInput) (schema.GuestRecord, error)
	Delete(ctx context.Context, eventID, guestID string) error
}

// Client talks to the registry over HTTP.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	metrics    *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithMetrics records request latency per operation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New creates a Client for baseURL. A zero timeout uses DefaultTimeout.
func New(baseURL, token string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

var _ Registry = (*Client)(nil)

// List returns every guest of an event in registry order.
func (c *Client) List(ctx context.Context, eventID string) ([]schema.GuestRecord, error) {
	var records []schema.GuestRecord
	if err := c.do(ctx, OpList, http.MethodGet, guestListPath(eventID), nil, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []schema.GuestRecord{}
	}
	return records, nil
}

// Create adds one guest and returns the stored record.
func (c *Client) Create(ctx context.Context, eventID string, in schema.GuestInput) (schema.GuestRecord, error) {
	var rec schema.GuestRecord
	err := c.do(ctx, OpCreate, http.MethodPost, guestListPath(eventID), in, &rec)
	return rec, err
}

// Update replaces the editable fields of a guest.
func (c *Client) Update(ctx context.Context, eventID, guestID string, in schema.GuestInput) (schema.GuestRecord, error) {
	var rec schema.GuestRecord
	err := c.do(ctx, OpUpdate, http.MethodPatch, guestPath(eventID, guestID), in, &rec)
	return rec, err
}

// Delete removes a guest.
func (c *Client) Delete(ctx context.Context, eventID, guestID string) error {
	return c.do(ctx, OpDelete, http.MethodDelete, guestPath(eventID, guestID), nil, nil)
}

func guestListPath(eventID string) string {
	return "/events/" + url.PathEscape(eventID) + "/guest-list"
}

func guestPath(eventID, guestID string) string {
	return guestListPath(eventID) + "/" + url.PathEscape(guestID)
}

// do sends one request. body is JSON-encoded when non-nil; a 2xx response
// is decoded into out when out is non-nil and the body is not empty.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("registry %s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("registry %s: build request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveRegistry(op, 0, time.Since(start))
		return fmt.Errorf("registry %s: request failed: %w", op, err)
	}
	defer resp.Body.Close()
	c.metrics.ObserveRegistry(op, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &RemoteError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(text))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("registry %s: read response: %w", op, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("registry %s: decode response: %w", op, err)
	}
	return nil
}
