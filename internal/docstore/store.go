// Package docstore is the HTTP client for the remote document service
// that owns portfolio documents.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cvfolio/cvfolio-portal/internal/common"
	"github.com/cvfolio/cvfolio-portal/internal/models"
)

// ErrNotFound means the user has no stored document yet. Callers create
// one lazily; this is not a store failure.
var ErrNotFound = errors.New("document not found")

// StoreError wraps transport and server-side failures of the document
// service. Reads fall back to the local cache when they see one.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("document store %s: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

// Client talks to the document service REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *common.Logger
}

// New creates a client targeting the given document service URL.
func New(baseURL string, timeout time.Duration, logger *common.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Get fetches the full portfolio document for a user.
// GET /api/documents/{id} -> { status: "ok", data: PortfolioDocument }
func (c *Client) Get(ctx context.Context, userID string) (*models.PortfolioDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/documents/"+url.PathEscape(userID), nil)
	if err != nil {
		return nil, &StoreError{Op: "get", Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &StoreError{Op: "get", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &StoreError{Op: "get", Err: err}
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StoreError{Op: "get", Err: fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))}
	}

	var result struct {
		Status string                   `json:"status"`
		Data   models.PortfolioDocument `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &StoreError{Op: "get", Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	return &result.Data, nil
}

// Set writes a section-scoped patch for a user.
// PUT /api/documents/{id}/sections/{section} with the patch as JSON body.
func (c *Client) Set(ctx context.Context, userID string, section models.Section, patch json.RawMessage) error {
	path := c.baseURL + "/api/documents/" + url.PathEscape(userID) + "/sections/" + url.PathEscape(string(section))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, path, bytes.NewReader(patch))
	if err != nil {
		return &StoreError{Op: "set", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &StoreError{Op: "set", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return &StoreError{Op: "set", Err: fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))}
	}
	return nil
}

// Put replaces the whole document. Used when a document is created lazily
// on first profile load.
// POST /api/documents/{id} with the document as JSON body.
func (c *Client) Put(ctx context.Context, doc *models.PortfolioDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return &StoreError{Op: "put", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/documents/"+url.PathEscape(doc.UserID), bytes.NewReader(data))
	if err != nil {
		return &StoreError{Op: "put", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &StoreError{Op: "put", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return &StoreError{Op: "put", Err: fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))}
	}
	return nil
}

// GetField fetches a single field of a user's document without pulling the
// whole record. Returns ErrNotFound when the user has no document.
// GET /api/documents/{id}/field?path=api_key -> { status: "ok", data: <value> }
func (c *Client) GetField(ctx context.Context, userID, fieldPath string) (string, error) {
	u := c.baseURL + "/api/documents/" + url.PathEscape(userID) + "/field?path=" + url.QueryEscape(fieldPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", &StoreError{Op: "get_field", Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &StoreError{Op: "get_field", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &StoreError{Op: "get_field", Err: err}
	}

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return "", &StoreError{Op: "get_field", Err: fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))}
	}

	var result struct {
		Status string `json:"status"`
		Data   string `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", &StoreError{Op: "get_field", Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	return result.Data, nil
}
