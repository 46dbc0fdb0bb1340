// Package directory provides an HTTP client for the recorded session history API.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xiaot623/gogo/negotiator/internal/protocol"
)

// DefaultTimeout bounds a single directory request.
const DefaultTimeout = 30 * time.Second

// ErrDirectoryUnavailable wraps every network, status and decode failure.
var ErrDirectoryUnavailable = errors.New("session directory unavailable")

// Client is an HTTP client for the session history endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new directory client. A non-positive timeout falls back
// to DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ErrorResponse represents an error response from the history API.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ListSessions calls GET /api/sessions. The order is the server's, newest first.
func (c *Client) ListSessions(ctx context.Context) ([]protocol.SessionSummary, error) {
	var sessions []protocol.SessionSummary
	if err := c.getJSON(ctx, "/api/sessions", &sessions); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	if sessions == nil {
		sessions = []protocol.SessionSummary{}
	}
	return sessions, nil
}

// FetchSession calls GET /api/sessions/:id.
func (c *Client) FetchSession(ctx context.Context, id string) (*protocol.SessionRecord, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrDirectoryUnavailable)
	}

	var record protocol.SessionRecord
	if err := c.getJSON(ctx, "/api/sessions/"+url.PathEscape(id), &record); err != nil {
		return nil, fmt.Errorf("failed to fetch session %s: %w", id, err)
	}
	if record.ID == "" {
		record.ID = id
	}
	return &record, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %v", ErrDirectoryUnavailable, err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		var errResp ErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("%w: server error: %s", ErrDirectoryUnavailable, errResp.Error)
		}
		return fmt.Errorf("%w: server returned status %d: %s", ErrDirectoryUnavailable, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", ErrDirectoryUnavailable, err)
	}
	return nil
}
