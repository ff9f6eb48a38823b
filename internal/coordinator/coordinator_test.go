// ABOUTME: Tests for the OpenAI-backed coordinator runtime.
// ABOUTME: Uses fake chat-completion and Genie servers to exercise the tool loop.

package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/genie-gateway/internal/agent"
	"github.com/2389/genie-gateway/internal/genie"
	"github.com/2389/genie-gateway/internal/tools"
)

// fakeModel serves the chat completions streaming endpoint. Scripted phases
// are consumed one request at a time; each phase is a list of SSE chunks.
type fakeModel struct {
	t        *testing.T
	phases   [][]string
	requests []string
}

func (f *fakeModel) handler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	require.NoError(f.t, err)
	f.requests = append(f.requests, string(body))

	require.NotEmpty(f.t, f.phases, "model called more times than scripted")
	chunks := f.phases[0]
	f.phases = f.phases[1:]

	w.Header().Set("Content-Type", "text/event-stream")
	for _, chunk := range chunks {
		fmt.Fprintf(w, "data: %s\n\n", chunk)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func contentChunk(text, finish string) string {
	chunk := map[string]any{
		"id":     "chatcmpl-test",
		"object": "chat.completion.chunk",
		"model":  "test-model",
		"choices": []map[string]any{{
			"index":         0,
			"delta":         map[string]any{"role": "assistant", "content": text},
			"finish_reason": nil,
		}},
	}
	if finish != "" {
		chunk["choices"].([]map[string]any)[0]["finish_reason"] = finish
	}
	raw, _ := json.Marshal(chunk)
	return string(raw)
}

func toolCallChunks(callID, name, arguments string) []string {
	open, _ := json.Marshal(map[string]any{
		"id":     "chatcmpl-test",
		"object": "chat.completion.chunk",
		"model":  "test-model",
		"choices": []map[string]any{{
			"index": 0,
			"delta": map[string]any{
				"role": "assistant",
				"tool_calls": []map[string]any{{
					"index": 0,
					"id":    callID,
					"type":  "function",
					"function": map[string]any{
						"name":      name,
						"arguments": arguments,
					},
				}},
			},
			"finish_reason": nil,
		}},
	})
	closing, _ := json.Marshal(map[string]any{
		"id":     "chatcmpl-test",
		"object": "chat.completion.chunk",
		"model":  "test-model",
		"choices": []map[string]any{{
			"index":         0,
			"delta":         map[string]any{},
			"finish_reason": "tool_calls",
		}},
	})
	return []string{string(open), string(closing)}
}

// newTestRegistry wires the tool registry against a fake Genie backend that
// answers every question with "answer from {space}".
func newTestRegistry(t *testing.T) *tools.Registry {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		space := parts[5]

		if strings.HasSuffix(r.URL.Path, "start-conversation") {
			json.NewEncoder(w).Encode(map[string]string{
				"conversation_id": "conv",
				"message_id":      "msg",
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": "COMPLETED",
			"attachments": []map[string]any{
				{"text": map[string]string{"content": "answer from " + space}},
			},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := func(space string) genie.Config {
		return genie.Config{
			BaseURL:      srv.URL,
			SpaceID:      space,
			PollInterval: time.Millisecond,
		}
	}
	return tools.NewRegistry(genie.NewClients(cfg("sales-space"), cfg("customer-space"), nil))
}

func newTestCoordinator(t *testing.T, model *fakeModel) *Coordinator {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(model.handler))
	t.Cleanup(srv.Close)

	c, err := New(Config{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "test-model",
	}, newTestRegistry(t), nil)
	require.NoError(t, err)
	return c
}

func collect(t *testing.T, ch <-chan *agent.Event) []*agent.Event {
	t.Helper()

	var events []*agent.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("timed out waiting for stream to close")
		}
	}
}

func TestCoordinator_StreamTurn_PlainAnswer(t *testing.T) {
	model := &fakeModel{t: t, phases: [][]string{
		{contentChunk("Hello", ""), contentChunk(" there.", "stop")},
	}}
	c := newTestCoordinator(t, model)

	ch, err := c.StreamTurn(context.Background(), []agent.Message{
		{Role: agent.RoleUser, Content: "Hi"},
	}, "thread-1")
	require.NoError(t, err)

	events := collect(t, ch)
	require.Len(t, events, 2)
	assert.Equal(t, agent.EventToken, events[0].Kind)
	assert.Equal(t, "Hello", events[0].Text)
	assert.Equal(t, " there.", events[1].Text)

	// Transcript plus system prompt went to the model, keyed by the thread.
	require.Len(t, model.requests, 1)
	assert.Contains(t, model.requests[0], "Databricks Query Agent")
	assert.Contains(t, model.requests[0], `"user":"thread-1"`)
}

func TestCoordinator_StreamTurn_ToolLoop(t *testing.T) {
	args := fmt.Sprintf(`{"%s":"What was Q1 revenue by region?"}`, tools.QuestionParam)
	model := &fakeModel{t: t, phases: [][]string{
		toolCallChunks("call_1", tools.ToolQuerySalesData, args),
		{contentChunk("Revenue was", ""), contentChunk(" $5M.", "stop")},
	}}
	c := newTestCoordinator(t, model)

	ch, err := c.StreamTurn(context.Background(), []agent.Message{
		{Role: agent.RoleUser, Content: "What was Q1 revenue by region?"},
	}, "thread-1")
	require.NoError(t, err)

	events := collect(t, ch)
	require.Len(t, events, 4)

	assert.Equal(t, agent.EventToolStart, events[0].Kind)
	assert.Equal(t, tools.ToolQuerySalesData, events[0].ToolName)
	assert.Equal(t, "What was Q1 revenue by region?", events[0].ToolArgs[tools.QuestionParam])
	assert.Equal(t, agent.EventToolEnd, events[1].Kind)
	assert.Equal(t, "Revenue was", events[2].Text)
	assert.Equal(t, " $5M.", events[3].Text)

	// Both tools were declared to the model as function tools with the
	// question parameter marked required.
	require.Len(t, model.requests, 2)
	assert.Contains(t, model.requests[0], `"type":"function"`)
	assert.Contains(t, model.requests[0], tools.ToolQuerySalesData)
	assert.Contains(t, model.requests[0], tools.ToolQueryCustomerData)
	assert.Contains(t, model.requests[0], fmt.Sprintf(`"required":["%s"]`, tools.QuestionParam))

	// Second model round carried the tool result back.
	assert.Contains(t, model.requests[1], `"role":"tool"`)
	assert.Contains(t, model.requests[1], "answer from sales-space")
	assert.Contains(t, model.requests[1], "call_1")
}

func TestCoordinator_StreamTurn_ToolFailureIsTerminal(t *testing.T) {
	args := fmt.Sprintf(`{"%s":"churn?"}`, tools.QuestionParam)
	model := &fakeModel{t: t, phases: [][]string{
		toolCallChunks("call_1", "query_weather_data", args),
	}}
	c := newTestCoordinator(t, model)

	ch, err := c.StreamTurn(context.Background(), []agent.Message{
		{Role: agent.RoleUser, Content: "weather?"},
	}, "thread-1")
	require.NoError(t, err)

	events := collect(t, ch)
	require.NotEmpty(t, events)
	// Tool start may precede the failure; the stream must end with an error.
	last := events[len(events)-1]
	assert.Equal(t, agent.EventError, last.Kind)
	assert.Contains(t, last.Error, "query_weather_data")
}

func TestCoordinator_StreamTurn_MissingQuestionArgument(t *testing.T) {
	model := &fakeModel{t: t, phases: [][]string{
		toolCallChunks("call_1", tools.ToolQuerySalesData, `{}`),
	}}
	c := newTestCoordinator(t, model)

	ch, err := c.StreamTurn(context.Background(), []agent.Message{
		{Role: agent.RoleUser, Content: "revenue?"},
	}, "thread-1")
	require.NoError(t, err)

	events := collect(t, ch)
	require.Len(t, events, 1)
	assert.Equal(t, agent.EventError, events[0].Kind)
	assert.Contains(t, events[0].Error, tools.QuestionParam)
}

func TestCoordinator_StreamTurn_ModelFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad api key", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, APIKey: "k", Model: "m"}, newTestRegistry(t), nil)
	require.NoError(t, err)

	ch, err := c.StreamTurn(context.Background(), []agent.Message{
		{Role: agent.RoleUser, Content: "Hi"},
	}, "thread-1")
	require.NoError(t, err)

	events := collect(t, ch)
	require.Len(t, events, 1)
	assert.Equal(t, agent.EventError, events[0].Kind)
}

func TestCoordinator_StreamTurn_EmptyTranscript(t *testing.T) {
	c := newTestCoordinator(t, &fakeModel{t: t})

	_, err := c.StreamTurn(context.Background(), nil, "thread-1")
	require.Error(t, err)
}

func TestNew_Validation(t *testing.T) {
	registry := newTestRegistry(t)

	_, err := New(Config{Model: "m"}, registry, nil)
	require.Error(t, err)

	_, err = New(Config{APIKey: "k"}, registry, nil)
	require.Error(t, err)

	_, err = New(Config{APIKey: "k", Model: "m"}, nil, nil)
	require.Error(t, err)
}
