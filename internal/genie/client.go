// ABOUTME: REST client for a Databricks Genie data-query space.
// ABOUTME: Starts a conversation, polls the message, and returns the answer text.

package genie

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
)

// ErrBackendQuery wraps any failure reported by a Genie backend. Callers can
// match it with errors.Is and surface the upstream detail to the user.
var ErrBackendQuery = errors.New("backend query failed")

const (
	defaultTimeout      = 60 * time.Second
	defaultPollInterval = 1 * time.Second
	maxResponseBytes    = 4 << 20
)

// Config describes one Genie space endpoint.
type Config struct {
	BaseURL      string        `yaml:"base_url"`
	SpaceID      string        `yaml:"space_id"`
	Token        string        `yaml:"token"`
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Client queries a single Genie space. It holds no per-call state beyond the
// shared HTTP client, so concurrent Ask calls are safe.
type Client struct {
	baseURL      string
	spaceID      string
	token        string
	pollInterval time.Duration
	httpClient   *http.Client
	logger       *slog.Logger
}

// NewClient validates the config and builds a client for one space.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("genie base url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid genie base url: %w", err)
	}
	if strings.TrimSpace(cfg.SpaceID) == "" {
		return nil, errors.New("genie space id is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:      baseURL,
		spaceID:      strings.TrimSpace(cfg.SpaceID),
		token:        strings.TrimSpace(cfg.Token),
		pollInterval: pollInterval,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger.With("component", "genie", "space_id", cfg.SpaceID),
	}, nil
}

type startConversationResponse struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

type messageResponse struct {
	Status      string       `json:"status"`
	Error       string       `json:"error,omitempty"`
	Attachments []attachment `json:"attachments,omitempty"`
}

type attachment struct {
	Text *textAttachment `json:"text,omitempty"`
}

type textAttachment struct {
	Content string `json:"content"`
}

// Ask submits a natural-language question to the space and blocks until the
// backend produces an answer or ctx is cancelled. Backend failures are
// wrapped in ErrBackendQuery with the upstream detail preserved; there is no
// internal retry.
func (c *Client) Ask(ctx context.Context, question string) (string, error) {
	start, err := c.startConversation(ctx, question)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendQuery, err)
	}

	c.logger.Debug("genie conversation started",
		"conversation_id", start.ConversationID,
		"message_id", start.MessageID,
	)

	answer, err := c.awaitAnswer(ctx, start.ConversationID, start.MessageID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendQuery, err)
	}
	return answer, nil
}

func (c *Client) startConversation(ctx context.Context, question string) (*startConversationResponse, error) {
	path := fmt.Sprintf("/api/2.0/genie/spaces/%s/start-conversation", c.spaceID)
	body, err := json.Marshal(map[string]string{"content": question})
	if err != nil {
		return nil, fmt.Errorf("marshal question: %w", err)
	}

	var resp startConversationResponse
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}
	if resp.ConversationID == "" || resp.MessageID == "" {
		return nil, errors.New("start-conversation response missing ids")
	}
	return &resp, nil
}

// awaitAnswer polls the message until it reaches a terminal status.
func (c *Client) awaitAnswer(ctx context.Context, conversationID, messageID string) (string, error) {
	path := fmt.Sprintf("/api/2.0/genie/spaces/%s/conversations/%s/messages/%s",
		c.spaceID, conversationID, messageID)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var msg messageResponse
		if err := c.do(ctx, http.MethodGet, path, nil, &msg); err != nil {
			return "", err
		}

		switch msg.Status {
		case "COMPLETED":
			return extractAnswer(&msg)
		case "FAILED", "CANCELLED", "QUERY_RESULT_EXPIRED":
			detail := msg.Error
			if detail == "" {
				detail = "no detail provided"
			}
			return "", fmt.Errorf("message status %s: %s", msg.Status, detail)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// extractAnswer concatenates the text attachments of a completed message.
func extractAnswer(msg *messageResponse) (string, error) {
	var parts []string
	for _, att := range msg.Attachments {
		if att.Text != nil && att.Text.Content != "" {
			parts = append(parts, att.Text.Content)
		}
	}
	if len(parts) == 0 {
		return "", errors.New("completed message has no text attachment")
	}
	return strings.Join(parts, "\n\n"), nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("http status=%d body=%s", resp.StatusCode, string(raw))
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
