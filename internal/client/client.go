// ABOUTME: HTTP client for the genie-gateway API with JWT bearer auth.
// ABOUTME: Wraps thread management, history, and audit-trail endpoints.

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Client talks to a genie-gateway server. A zero token disables the
// Authorization header.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// ThreadInfo is one thread as reported by the server.
type ThreadInfo struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Active bool   `json:"active"`
}

// Message is one transcript entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	HTML    string `json:"html,omitempty"`
}

// ThreadHistory is the transcript of one thread.
type ThreadHistory struct {
	ThreadID string    `json:"thread_id"`
	Title    string    `json:"title"`
	Messages []Message `json:"messages"`
}

// LedgerEvent is one audit-trail entry.
type LedgerEvent struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Direction string `json:"direction"`
	Author    string `json:"author"`
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
}

// New validates the server URL and builds a client.
func New(baseURL, token string) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errors.New("server url is required")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.New("server url must use http or https scheme")
	}

	return &Client{
		baseURL:    trimmed,
		token:      strings.TrimSpace(token),
		httpClient: http.DefaultClient,
	}, nil
}

// CreateThread creates a fresh thread and returns it. The server makes the
// new thread active.
func (c *Client) CreateThread(ctx context.Context) (*ThreadInfo, error) {
	var info ThreadInfo
	if err := c.doJSON(ctx, http.MethodPost, "/api/threads", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ListThreads returns all threads in creation order plus the active id.
func (c *Client) ListThreads(ctx context.Context) ([]ThreadInfo, string, error) {
	var resp struct {
		Threads        []ThreadInfo `json:"threads"`
		ActiveThreadID string       `json:"active_thread_id"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/threads", nil, &resp); err != nil {
		return nil, "", err
	}
	return resp.Threads, resp.ActiveThreadID, nil
}

// SelectThread makes the given thread the server's active thread.
func (c *Client) SelectThread(ctx context.Context, threadID string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/threads/"+threadID+"/select", nil, nil)
}

// History fetches the transcript of a thread.
func (c *Client) History(ctx context.Context, threadID string) (*ThreadHistory, error) {
	var history ThreadHistory
	if err := c.doJSON(ctx, http.MethodGet, "/api/threads/"+threadID+"/messages", nil, &history); err != nil {
		return nil, err
	}
	return &history, nil
}

// Events fetches the audit trail of a thread, oldest first.
func (c *Client) Events(ctx context.Context, threadID string, limit int) ([]LedgerEvent, error) {
	path := fmt.Sprintf("/api/threads/%s/events?limit=%d", threadID, limit)
	var events []LedgerEvent
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// Health checks the server's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	return nil
}

// doJSON executes one request and decodes the JSON response into out. Error
// responses carrying a JSON {"error": ...} body surface that message.
func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return decodeAPIError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
	}
	return nil
}

func (c *Client) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// decodeAPIError extracts the server's error message when present.
func decodeAPIError(resp *http.Response) error {
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var errResp map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil {
			if msg, ok := errResp["error"]; ok && msg != "" {
				return fmt.Errorf("%s", msg)
			}
		}
	}
	return fmt.Errorf("server returned status %d", resp.StatusCode)
}
