// Package client provides a Go client library for the pharmabot API server.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pharmesol/pharmabot/pkg/api"
)

// Client communicates with the pharmabot API server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new API client pointing at the given base URL
// (e.g. "http://localhost:7272").
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		// Message turns wait on the LLM; allow for slow completions.
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// ---------------------------------------------------------------------------
// Internal helpers
// ---------------------------------------------------------------------------

// doRequest builds and executes an HTTP request.
// If body is non-nil it is JSON-encoded and sent as the request body.
func (c *Client) doRequest(method, path string, body interface{}) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	return resp, nil
}

// doJSON executes a request, checks for a 2xx status, and JSON-decodes
// the response body into target (when target is non-nil).
func (c *Client) doJSON(method, path string, body interface{}, target interface{}) error {
	resp, err := c.doRequest(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("api error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if target != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, target); err != nil {
			return fmt.Errorf("decode response body: %w", err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

// Healthz checks whether the API server is healthy.
func (c *Client) Healthz() error {
	resp, err := c.doRequest(http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("healthz failed (status %d): %s", resp.StatusCode, string(body))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

// StartSession opens a conversation session for the given caller number. The
// returned session's transcript already contains the agent's greeting.
func (c *Client) StartSession(phone string) (*api.Session, error) {
	var out api.Session
	req := api.StartSessionRequest{Phone: phone}
	if err := c.doJSON(http.MethodPost, "/api/v1/sessions", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSession retrieves a session by ID.
func (c *Client) GetSession(id string) (*api.Session, error) {
	var out api.Session
	if err := c.doJSON(http.MethodGet, fmt.Sprintf("/api/v1/sessions/%s", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSessions returns all active sessions.
func (c *Client) ListSessions() ([]api.Session, error) {
	var out []api.Session
	if err := c.doJSON(http.MethodGet, "/api/v1/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// EndSession removes a session by ID.
func (c *Client) EndSession(id string) error {
	return c.doJSON(http.MethodDelete, fmt.Sprintf("/api/v1/sessions/%s", id), nil, nil)
}

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

// SendMessage posts one caller message to a session and returns the agent's
// reply.
func (c *Client) SendMessage(id, text string) (string, error) {
	var out api.MessageReply
	path := fmt.Sprintf("/api/v1/sessions/%s/messages", id)
	if err := c.doJSON(http.MethodPost, path, api.MessageRequest{Text: text}, &out); err != nil {
		return "", err
	}
	return out.Reply, nil
}
