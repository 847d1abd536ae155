// Package client is a thin HTTP client for the taskflow API, used by the
// CLI subcommands.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/alfredjeanlab/taskflow/internal/model"
	"github.com/alfredjeanlab/taskflow/internal/server"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to the taskflow HTTP API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a client targeting the given base URL (e.g.
// "http://localhost:8080"). When token is non-empty, an Authorization header
// is set on every request.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// SubmitMessage submits raw message text and returns the assigned message ID.
func (c *Client) SubmitMessage(ctx context.Context, req *server.SubmitMessageRequest) (string, error) {
	var resp server.SubmitMessageResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/messages", req, &resp); err != nil {
		return "", err
	}
	return resp.MessageID, nil
}

// GetMessage fetches one message by ID.
func (c *Client) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	var msg model.Message
	if err := c.doJSON(ctx, http.MethodGet, "/v1/messages/"+url.PathEscape(id), nil, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListMessages fetches accepted messages, oldest first.
func (c *Client) ListMessages(ctx context.Context, limit int) ([]*model.Message, error) {
	var resp struct {
		Messages []*model.Message `json:"messages"`
	}
	if err := c.doJSON(ctx, http.MethodGet, listPath("/v1/messages", limit), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// ListTasks fetches extracted tasks, oldest first.
func (c *Client) ListTasks(ctx context.Context, limit int) ([]*model.ExtractedTask, error) {
	var resp struct {
		Tasks []*model.ExtractedTask `json:"tasks"`
	}
	if err := c.doJSON(ctx, http.MethodGet, listPath("/v1/tasks", limit), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// ListPlatformTasks fetches recorded platform task outcomes, oldest first.
func (c *Client) ListPlatformTasks(ctx context.Context, limit int) ([]*model.PlatformTask, error) {
	var resp struct {
		PlatformTasks []*model.PlatformTask `json:"platform_tasks"`
	}
	if err := c.doJSON(ctx, http.MethodGet, listPath("/v1/platform-tasks", limit), nil, &resp); err != nil {
		return nil, err
	}
	return resp.PlatformTasks, nil
}

// Health checks the server's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return err
	}
	if resp.Status != "ok" {
		return fmt.Errorf("unexpected health status %q", resp.Status)
	}
	return nil
}

func listPath(path string, limit int) string {
	if limit > 0 {
		return fmt.Sprintf("%s?limit=%d", path, limit)
	}
	return path
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
