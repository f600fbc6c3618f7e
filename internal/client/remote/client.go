// Package remote implements the stateless HTTP client for the Plateful
// sync API. Versions travel as If-Match preconditions; precondition
// failures come back as typed conflict results. No local state is mutated
// here.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/plateful/plateful/internal/common"
	"github.com/plateful/plateful/internal/model"
)

const (
	defaultMutationTimeout = 15 * time.Second
	defaultListTimeout     = 30 * time.Second
)

// TokenSource supplies the bearer token for authenticated calls.
type TokenSource func(ctx context.Context) (string, error)

// Client performs HTTP calls against the sync server.
type Client struct {
	baseURL string
	http    *http.Client
	token   TokenSource

	mutationTimeout time.Duration
	listTimeout     time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client (tests, proxies).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTimeouts overrides the per-call timeouts.
func WithTimeouts(mutation, list time.Duration) Option {
	return func(c *Client) {
		c.mutationTimeout = mutation
		c.listTimeout = list
	}
}

// New returns a Client for the API rooted at baseURL (e.g.
// "https://sync.plateful.app"). token may be nil for unauthenticated use.
func New(baseURL string, token TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:         baseURL,
		http:            &http.Client{},
		token:           token,
		mutationTimeout: defaultMutationTimeout,
		listTimeout:     defaultListTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Page is one page of a restartable listing.
type Page struct {
	Records    []*model.Record `json:"records"`
	NextCursor string          `json:"next_cursor"`
}

// ListFilter narrows a listing; zero value means no filtering.
type ListFilter struct {
	EntityID string
}

// Create submits a record for first sync. The server answers 201 with the
// stored record, or 200 when the same id already holds an identical payload
// (a retried create whose ack was lost). A differing payload under an
// existing id is a version conflict like any other.
func (c *Client) Create(ctx context.Context, rec *model.Record) (*model.Record, error) {
	op := "create " + string(rec.Collection)
	ctx, cancel := context.WithTimeout(ctx, c.mutationTimeout)
	defer cancel()

	resp, err := c.do(ctx, op, http.MethodPost, c.collectionURL(rec.Collection), rec, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK:
		return decodeRecord(resp.Body, rec.Collection)
	default:
		return nil, c.statusError(op, resp, rec.Collection)
	}
}

// Fetch returns the current server record.
func (c *Client) Fetch(ctx context.Context, col model.Collection, id string) (*model.Record, error) {
	op := "fetch " + string(col)
	ctx, cancel := context.WithTimeout(ctx, c.mutationTimeout)
	defer cancel()

	resp, err := c.do(ctx, op, http.MethodGet, c.recordURL(col, id), nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return decodeRecord(resp.Body, col)
	}
	return nil, c.statusError(op, resp, col)
}

// Update performs a conditional update asserting expectedVersion. The new
// server version is expectedVersion+1 on success.
func (c *Client) Update(ctx context.Context, rec *model.Record, expectedVersion int64) (*model.Record, error) {
	op := "update " + string(rec.Collection)
	ctx, cancel := context.WithTimeout(ctx, c.mutationTimeout)
	defer cancel()

	headers := map[string]string{"If-Match": strconv.FormatInt(expectedVersion, 10)}
	resp, err := c.do(ctx, op, http.MethodPatch, c.recordURL(rec.Collection, rec.ID), rec, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return decodeRecord(resp.Body, rec.Collection)
	}
	return nil, c.statusError(op, resp, rec.Collection)
}

// Delete performs a conditional delete (server-side tombstone) asserting
// expectedVersion, returning the tombstoned record.
func (c *Client) Delete(ctx context.Context, col model.Collection, id string, expectedVersion int64) (*model.Record, error) {
	op := "delete " + string(col)
	ctx, cancel := context.WithTimeout(ctx, c.mutationTimeout)
	defer cancel()

	headers := map[string]string{"If-Match": strconv.FormatInt(expectedVersion, 10)}
	resp, err := c.do(ctx, op, http.MethodDelete, c.recordURL(col, id), nil, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return decodeRecord(resp.Body, col)
	}
	return nil, c.statusError(op, resp, col)
}

// List returns one page of records changed after cursor, ordered by the
// server's opaque change cursor. An empty NextCursor ends the listing.
func (c *Client) List(ctx context.Context, col model.Collection, filter ListFilter, cursor string, limit int) (*Page, error) {
	op := "list " + string(col)
	ctx, cancel := context.WithTimeout(ctx, c.listTimeout)
	defer cancel()

	u, err := url.Parse(c.collectionURL(col))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	q := u.Query()
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if filter.EntityID != "" {
		q.Set("entity_id", filter.EntityID)
	}
	u.RawQuery = q.Encode()

	resp, err := c.do(ctx, op, http.MethodGet, u.String(), nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(op, resp, col)
	}

	var page Page
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("%s: failed to decode page: %w", op, err)
	}
	for _, rec := range page.Records {
		rec.Collection = col
	}
	return &page, nil
}

func (c *Client) collectionURL(col model.Collection) string {
	return fmt.Sprintf("%s/api/v1/%s", c.baseURL, col)
}

func (c *Client) recordURL(col model.Collection, id string) string {
	return fmt.Sprintf("%s/api/v1/%s/%s", c.baseURL, col, url.PathEscape(id))
}

func (c *Client) do(ctx context.Context, op, method, u string, body any, headers map[string]string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to encode body: %w", op, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		token, err := c.token(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to obtain token: %w", op, err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts, DNS failures, refused connections: all retryable.
		return nil, &TransientError{Op: op, Err: err}
	}
	return resp, nil
}

// statusError maps a non-success response into the closed result set.
func (c *Client) statusError(op string, resp *http.Response, col model.Collection) error {
	switch {
	case resp.StatusCode == http.StatusConflict:
		conflict := &VersionConflictError{}
		if rec, err := decodeRecord(resp.Body, col); err == nil {
			conflict.Server = rec
			conflict.ServerVersion = rec.Version
		}
		return conflict
	case resp.StatusCode == http.StatusNotFound:
		return common.ErrNotFound
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusTooManyRequests:
		return &TransientError{Op: op, Status: resp.StatusCode}
	default:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &PermanentError{Op: op, Status: resp.StatusCode, Detail: string(detail)}
	}
}

func decodeRecord(r io.Reader, col model.Collection) (*model.Record, error) {
	var rec model.Record
	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	rec.Collection = col
	return &rec, nil
}
