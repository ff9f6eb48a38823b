// ABOUTME: SSE consumer for the gateway's streaming send endpoint.
// ABOUTME: Parses event/data blocks into typed stream events on a channel.

package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Stream event types, mirroring the wire protocol of POST /api/send.
const (
	EventStarted   = "started"
	EventToken     = "token"
	EventToolStart = "tool_start"
	EventToolEnd   = "tool_end"
	EventDone      = "done"
	EventError     = "error"
)

// StreamEvent is one event from a streaming send.
type StreamEvent struct {
	Type         string
	ThreadID     string         // started, done
	Text         string         // token
	Tool         string         // tool_start, tool_end
	Args         map[string]any // tool_start
	FullResponse string         // done
	Err          string         // error
}

// sendPayload is the JSON body for POST /api/send.
type sendPayload struct {
	ThreadID       string `json:"thread_id,omitempty"`
	Content        string `json:"content"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// Send submits one question and returns a channel of stream events. The
// channel closes when the turn ends or the stream breaks; the final event is
// always done or error on a healthy stream. HTTP-level rejections (unknown
// thread, busy thread, duplicates) are returned as an error instead.
func (c *Client) Send(ctx context.Context, threadID, content, idempotencyKey string) (<-chan *StreamEvent, error) {
	raw, err := json.Marshal(sendPayload{
		ThreadID:       threadID,
		Content:        content,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/send", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}

	events := make(chan *StreamEvent, 16)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		var eventType string
		var dataLines []string

		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line := scanner.Text()

			// Empty line signals end of event
			if line == "" {
				if eventType != "" && len(dataLines) > 0 {
					if ev := parseStreamEvent(eventType, strings.Join(dataLines, "\n")); ev != nil {
						events <- ev
					}
				}
				eventType = ""
				dataLines = nil
				continue
			}

			if strings.HasPrefix(line, "event:") {
				eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
				continue
			}
			if strings.HasPrefix(line, "data:") {
				dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
				continue
			}
		}

		if err := scanner.Err(); err != nil {
			events <- &StreamEvent{Type: EventError, Err: fmt.Sprintf("stream read: %v", err)}
		}
	}()
	return events, nil
}

// parseStreamEvent converts one SSE block into a typed event. Unknown event
// types are dropped so protocol additions never break old clients.
func parseStreamEvent(eventType, data string) *StreamEvent {
	var payload map[string]any
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return &StreamEvent{Type: EventError, Err: fmt.Sprintf("malformed event data: %v", err)}
	}

	str := func(key string) string {
		s, _ := payload[key].(string)
		return s
	}

	switch eventType {
	case EventStarted:
		return &StreamEvent{Type: EventStarted, ThreadID: str("thread_id")}
	case EventToken:
		return &StreamEvent{Type: EventToken, Text: str("text")}
	case EventToolStart:
		args, _ := payload["args"].(map[string]any)
		return &StreamEvent{Type: EventToolStart, Tool: str("tool"), Args: args}
	case EventToolEnd:
		return &StreamEvent{Type: EventToolEnd, Tool: str("tool")}
	case EventDone:
		return &StreamEvent{Type: EventDone, ThreadID: str("thread_id"), FullResponse: str("full_response")}
	case EventError:
		return &StreamEvent{Type: EventError, Err: str("error")}
	default:
		return nil
	}
}
