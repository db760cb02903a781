// Package recordstore is the HTTP client for the remote student collection.
//
// Every call is a single attempt. Failures are reported as one of
// ErrNetwork, ErrServer, ErrValidation or ErrNotFound (see errors.go).
package recordstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aanand-mishra/student-crud/internal/types"
)

// CollectionPath is the resource path of the student collection.
const CollectionPath = "/student"

const (
	opList   = "list"
	opCreate = "create"
	opUpdate = "update"
	opDelete = "delete"
)

// RequestIDHeader carries a per-request id for log correlation.
const RequestIDHeader = "X-Request-ID"

// Store is the contract satisfied by Client. The controller depends on
// this interface so tests can substitute a fake.
type Store interface {
	List(ctx context.Context) ([]types.Record, error)
	Create(ctx context.Context, fields types.Fields) (types.Record, error)
	Update(ctx context.Context, id string, fields types.Fields) (types.Record, error)
	Delete(ctx context.Context, id string) error
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithHeaders assigns default headers added to every request.
func WithHeaders(h http.Header) Option {
	return func(c *Client) {
		for k, values := range h {
			for _, v := range values {
				c.headers.Add(k, v)
			}
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// Client talks to the /student collection of a record store.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	headers    http.Header
	log        *slog.Logger
}

var _ Store = (*Client)(nil)

// New creates a Client for the provided base URL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("recordstore: base URL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("recordstore: invalid base URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("recordstore: base URL must be absolute: %q", baseURL)
	}

	c := &Client{
		baseURL: parsed,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		headers: make(http.Header),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// List returns every record in the collection.
func (c *Client) List(ctx context.Context) ([]types.Record, error) {
	var records []types.Record
	if err := c.do(ctx, opList, http.MethodGet, "", nil, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = make([]types.Record, 0)
	}
	return records, nil
}

// Create posts a new record. The server assigns ID and, when fields.CreatedAt
// is empty, CreatedAt.
func (c *Client) Create(ctx context.Context, fields types.Fields) (types.Record, error) {
	var rec types.Record
	if err := c.do(ctx, opCreate, http.MethodPost, "", fields, &rec); err != nil {
		return types.Record{}, err
	}
	return rec, nil
}

// Update replaces the editable fields of the record with the given id.
func (c *Client) Update(ctx context.Context, id string, fields types.Fields) (types.Record, error) {
	if strings.TrimSpace(id) == "" {
		return types.Record{}, errors.New("recordstore: update: id is required")
	}
	// createdAt is immutable once assigned.
	fields.CreatedAt = ""
	var rec types.Record
	if err := c.do(ctx, opUpdate, http.MethodPut, id, fields, &rec); err != nil {
		return types.Record{}, err
	}
	return rec, nil
}

// Delete removes the record with the given id. Deleting an id that is
// already gone reports ErrNotFound.
func (c *Client) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("recordstore: delete: id is required")
	}
	return c.do(ctx, opDelete, http.MethodDelete, id, nil, nil)
}

// do performs one request against the collection, or against the record
// with the given id when id is non-empty.
func (c *Client) do(ctx context.Context, op, method, id string, in, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("recordstore: %s: encode body: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(id), body)
	if err != nil {
		return fmt.Errorf("recordstore: %s: build request: %w", op, err)
	}
	req.Header = c.headers.Clone()
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	reqID := uuid.NewString()
	req.Header.Set(RequestIDHeader, reqID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug("record store request failed",
			slog.String("op", op),
			slog.String("request_id", reqID),
			slog.String("error", err.Error()))
		return &networkError{op: op, err: err}
	}
	defer resp.Body.Close()

	c.log.Debug("record store request",
		slog.String("op", op),
		slog.String("method", method),
		slog.String("id", id),
		slog.String("request_id", reqID),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &HTTPError{Op: op, StatusCode: resp.StatusCode, Body: data}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &networkError{op: op, err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("recordstore: %s: decode response: %w", op, err)
	}
	return nil
}

func (c *Client) buildURL(id string) string {
	u := *c.baseURL
	rawPath := strings.TrimRight(u.EscapedPath(), "/") + CollectionPath
	u.Path = strings.TrimRight(u.Path, "/") + CollectionPath
	if id != "" {
		u.Path += "/" + id
		rawPath += "/" + url.PathEscape(id)
	}
	u.RawPath = rawPath
	return u.String()
}
