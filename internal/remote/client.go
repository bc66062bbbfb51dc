// Package remote provides a client for the Remote List Service that stores
// shared blacklists.
package remote

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

	"github.com/JohanCodinha/blsync/internal/blacklist"
	"github.com/JohanCodinha/blsync/internal/logger"
	"github.com/JohanCodinha/blsync/internal/secret"
)

const (
	defaultTimeout = 30 * time.Second

	// WriteSecretHeader carries the digest of the write secret.
	WriteSecretHeader = "X-Write-Secret"
)

// List is a remote blacklist as served by the list service.
// Entries may arrive in the legacy bare-string form with AddedAt 0.
type List struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Subjects    []blacklist.Entry `json:"subjects"`
	Items       []blacklist.Entry `json:"items"`
	UpdatedAt   int64             `json:"updatedAt"` // ms since epoch, server assigned
}

// CreateRequest is the payload of a list creation.
type CreateRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Subjects    []blacklist.Entry `json:"subjects"`
	Items       []blacklist.Entry `json:"items"`
}

// Created holds the credentials of a newly created list.
// WriteSecret is returned only once and never stored by the server.
type Created struct {
	ID          string `json:"id"`
	WriteSecret string `json:"writeSecret"`
	UpdatedAt   int64  `json:"updatedAt"`
}

// ListUpdate is the payload of a write. Nil Name/Description are left unchanged.
type ListUpdate struct {
	Name        *string           `json:"name,omitempty"`
	Description *string           `json:"description,omitempty"`
	Subjects    []blacklist.Entry `json:"subjects"`
	Items       []blacklist.Entry `json:"items"`
}

// UpdateResult is the server's acknowledgement of a write.
type UpdateResult struct {
	Success   bool  `json:"success"`
	UpdatedAt int64 `json:"updatedAt"`
}

// Client is a Remote List Service client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the service at baseURL.
func New(baseURL string) *Client {
	return NewWithTimeout(baseURL, defaultTimeout)
}

// NewWithTimeout creates a client whose requests time out after timeout.
func NewWithTimeout(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the service root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// doRequest performs an HTTP request and returns the response.
// Network failures are reported as *TransportError.
func (c *Client) doRequest(ctx context.Context, op, method, target string, body io.Reader, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}

	logger.Debug("remote: %s %s", method, target)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}

	return resp, nil
}

// Create publishes a new list and returns its id and plaintext write secret.
func (c *Client) Create(ctx context.Context, r CreateRequest) (Created, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return Created{}, fmt.Errorf("failed to marshal payload: %w", err)
	}

	resp, err := c.doRequest(ctx, "create", http.MethodPost, c.baseURL+"/api/lists", bytes.NewReader(payload), nil)
	if err != nil {
		return Created{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return Created{}, statusError("create", "", resp)
	}

	var created Created
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return Created{}, &DecodeError{Op: "create", Err: err}
	}
	if created.ID == "" || created.WriteSecret == "" {
		return Created{}, &DecodeError{Op: "create", Err: fmt.Errorf("response missing id or write secret")}
	}

	return created, nil
}

// Fetch retrieves a list by id. No credentials are required.
func (c *Client) Fetch(ctx context.Context, id string) (*List, error) {
	resp, err := c.doRequest(ctx, "fetch", http.MethodGet, c.listURL(id), nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("fetch", id, resp)
	}

	var list List
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, &DecodeError{Op: "fetch", Err: err}
	}
	if list.ID == "" {
		list.ID = id
	}
	if list.Subjects == nil {
		list.Subjects = []blacklist.Entry{}
	}
	if list.Items == nil {
		list.Items = []blacklist.Entry{}
	}

	return &list, nil
}

// Update overwrites the content of list id. The write secret is digested
// before it leaves the process.
func (c *Client) Update(ctx context.Context, id, writeSecret string, u ListUpdate) (UpdateResult, error) {
	if u.Subjects == nil {
		u.Subjects = []blacklist.Entry{}
	}
	if u.Items == nil {
		u.Items = []blacklist.Entry{}
	}
	payload, err := json.Marshal(u)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("failed to marshal payload: %w", err)
	}

	header := http.Header{}
	header.Set(WriteSecretHeader, secret.Digest(id, writeSecret))

	resp, err := c.doRequest(ctx, "update", http.MethodPut, c.listURL(id), bytes.NewReader(payload), header)
	if err != nil {
		return UpdateResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return UpdateResult{}, statusError("update", id, resp)
	}

	var result UpdateResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return UpdateResult{}, &DecodeError{Op: "update", Err: err}
	}
	if !result.Success {
		return UpdateResult{}, &TransportError{Op: "update", Status: resp.StatusCode, Err: fmt.Errorf("server reported failure")}
	}

	return result, nil
}

func (c *Client) listURL(id string) string {
	return fmt.Sprintf("%s/api/lists/%s", c.baseURL, url.PathEscape(id))
}
