// ABOUTME: HTTP API handlers for thread management and SSE answer streaming.
// ABOUTME: Provides POST /api/send plus the thread CRUD and history endpoints.

package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/yuin/goldmark"

	"github.com/2389/genie-gateway/internal/orchestrator"
	"github.com/2389/genie-gateway/internal/store"
)

// SendRequest is the JSON request body for POST /api/send.
type SendRequest struct {
	ThreadID       string `json:"thread_id,omitempty"`
	Content        string `json:"content"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// ThreadResponse is the JSON shape for one thread in list/create responses.
type ThreadResponse struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Active bool   `json:"active"`
}

// ListThreadsResponse is the JSON response for GET /api/threads.
type ListThreadsResponse struct {
	Threads        []ThreadResponse `json:"threads"`
	ActiveThreadID string           `json:"active_thread_id,omitempty"`
}

// MessageResponse is one transcript entry. HTML is populated only when the
// caller asks for ?format=html.
type MessageResponse struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	HTML    string `json:"html,omitempty"`
}

// ThreadMessagesResponse is the JSON response for GET /api/threads/{id}/messages.
type ThreadMessagesResponse struct {
	ThreadID string            `json:"thread_id"`
	Title    string            `json:"title"`
	Messages []MessageResponse `json:"messages"`
}

// LedgerEventResponse is one audit-trail entry.
type LedgerEventResponse struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Direction string `json:"direction"`
	Author    string `json:"author"`
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
}

// handleCreateThread handles POST /api/threads. The new thread becomes the
// active thread, mirroring what a user clicking "new chat" expects.
func (g *Gateway) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	id := g.threads.CreateThread()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(ThreadResponse{ID: id, Title: store.DefaultTitle, Active: true})
}

// handleListThreads handles GET /api/threads, returning threads in creation
// order with the active one flagged.
func (g *Gateway) handleListThreads(w http.ResponseWriter, r *http.Request) {
	activeID, _ := g.threads.ActiveThread()

	infos := g.threads.ListThreads()
	response := ListThreadsResponse{
		Threads:        make([]ThreadResponse, len(infos)),
		ActiveThreadID: activeID,
	}
	for i, info := range infos {
		response.Threads[i] = ThreadResponse{
			ID:     info.ID,
			Title:  info.Title,
			Active: info.ID == activeID,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleSelectThread handles POST /api/threads/{id}/select.
func (g *Gateway) handleSelectThread(w http.ResponseWriter, r *http.Request) {
	if err := g.threads.SelectThread(r.PathValue("id")); err != nil {
		g.sendJSONError(w, http.StatusNotFound, "thread not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleThreadMessages handles GET /api/threads/{id}/messages. With
// ?format=html each message additionally carries its markdown rendered to
// HTML, so thin clients can show transcripts without a markdown engine.
func (g *Gateway) handleThreadMessages(w http.ResponseWriter, r *http.Request) {
	thread, err := g.threads.GetThread(r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "thread not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to get thread", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	renderHTML := r.URL.Query().Get("format") == "html"

	response := ThreadMessagesResponse{
		ThreadID: thread.ID,
		Title:    thread.Title,
		Messages: make([]MessageResponse, len(thread.Messages)),
	}
	for i, msg := range thread.Messages {
		out := MessageResponse{Role: msg.Role, Content: msg.Content}
		if renderHTML {
			var buf bytes.Buffer
			if err := goldmark.Convert([]byte(msg.Content), &buf); err != nil {
				g.logger.Error("markdown render failed", "thread_id", thread.ID, "error", err)
			} else {
				out.HTML = buf.String()
			}
		}
		response.Messages[i] = out
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleThreadEvents handles GET /api/threads/{id}/events, returning the
// audit trail oldest-first. Optional ?limit=N (default 50, max 1000).
func (g *Gateway) handleThreadEvents(w http.ResponseWriter, r *http.Request) {
	if g.events == nil {
		g.sendJSONError(w, http.StatusNotFound, "audit trail disabled")
		return
	}

	threadID := r.PathValue("id")
	if _, err := g.threads.GetThread(threadID); err != nil {
		g.sendJSONError(w, http.StatusNotFound, "thread not found")
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			g.sendJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
		if limit > 1000 {
			limit = 1000
		}
	}

	events, err := g.events.EventsByThread(r.Context(), threadID, limit)
	if err != nil {
		g.logger.Error("failed to list ledger events", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := make([]LedgerEventResponse, len(events))
	for i, evt := range events {
		response[i] = LedgerEventResponse{
			ID:        evt.ID,
			Timestamp: evt.Timestamp.Format(time.RFC3339),
			Direction: string(evt.Direction),
			Author:    evt.Author,
			Type:      string(evt.Type),
			Text:      evt.Text,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleSend handles POST /api/send. It runs one turn and streams progress
// as SSE events: started, token, tool_start, tool_end, then done or error.
//
// Responsibilities:
//  1. Parse and validate the JSON body.
//  2. Resolve the target thread: explicit id, else the active thread, else
//     a fresh one.
//  3. Reject duplicates (idempotency key) and busy threads before streaming.
//  4. Subscribe to live updates, then run the turn.
//  5. Convert snapshot updates into incremental SSE events.
func (g *Gateway) handleSend(w http.ResponseWriter, r *http.Request) {
	req, err := parseSendRequest(r.Body)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	threadID := req.ThreadID
	if threadID == "" {
		var ok bool
		if threadID, ok = g.threads.ActiveThread(); !ok {
			threadID = g.threads.CreateThread()
		}
	} else if _, err := g.threads.GetThread(threadID); err != nil {
		g.sendJSONError(w, http.StatusNotFound, "thread not found")
		return
	}

	if req.IdempotencyKey != "" && g.dedupe.SeenAndMark(req.IdempotencyKey) {
		g.sendJSONError(w, http.StatusConflict, "duplicate message")
		return
	}

	// Advisory check so the common case gets a clean 409 instead of an SSE
	// stream that immediately errors. A losing race still surfaces as an
	// error event below.
	if g.orch.Busy(threadID) {
		g.sendJSONError(w, http.StatusConflict, "turn already in progress")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctx := r.Context()
	updates, subID := g.orch.Broadcaster().Subscribe(ctx, threadID)
	defer g.orch.Broadcaster().Unsubscribe(threadID, subID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	g.writeSSEEvent(w, "started", map[string]string{"thread_id": threadID})
	flusher.Flush()

	errCh := make(chan error, 1)
	go func() {
		_, err := g.orch.RunTurn(ctx, threadID, req.Content)
		errCh <- err
	}()

	g.streamUpdates(r, w, flusher, threadID, updates, errCh)
}

// streamUpdates converts full-state turn updates into incremental SSE
// events. Updates carry the whole answer prefix and tool log, so a dropped
// intermediate snapshot only coarsens granularity, never loses text.
func (g *Gateway) streamUpdates(r *http.Request, w http.ResponseWriter, flusher http.Flusher, threadID string, updates <-chan *orchestrator.TurnUpdate, errCh <-chan error) {
	var (
		sentBytes int
		emitted   []orchestrator.ToolStatus
	)

	for {
		select {
		case <-r.Context().Done():
			g.writeSSEEvent(w, "error", map[string]string{"error": "request cancelled"})
			flusher.Flush()
			return

		case err := <-errCh:
			if err == nil {
				// The final update is already queued; keep draining.
				errCh = nil
				continue
			}
			// Turn failures that publish a final update (stream errors) are
			// handled via that update; anything else is reported here.
			g.writeSSEEvent(w, "error", map[string]string{"error": err.Error()})
			flusher.Flush()
			return

		case upd, ok := <-updates:
			if !ok {
				return
			}

			if delta := upd.Answer[sentBytes:]; delta != "" {
				g.writeSSEEvent(w, "token", map[string]string{"text": delta})
				sentBytes = len(upd.Answer)
			}

			for i, entry := range upd.ToolLog {
				if i >= len(emitted) {
					g.writeSSEEvent(w, "tool_start", map[string]any{
						"tool": entry.Tool,
						"args": entry.Args,
					})
					emitted = append(emitted, orchestrator.ToolStatusStarted)
				}
				if entry.Status == orchestrator.ToolStatusFinished && emitted[i] == orchestrator.ToolStatusStarted {
					g.writeSSEEvent(w, "tool_end", map[string]string{"tool": entry.Tool})
					emitted[i] = orchestrator.ToolStatusFinished
				}
			}

			if upd.Done {
				if upd.Err != "" {
					g.writeSSEEvent(w, "error", map[string]string{"error": upd.Err})
				} else {
					g.writeSSEEvent(w, "done", map[string]string{
						"thread_id":     threadID,
						"full_response": upd.Answer,
					})
				}
				flusher.Flush()
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes a single SSE event to the response writer.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// parseSendRequest parses and validates a SendRequest from the given reader.
func parseSendRequest(r io.Reader) (*SendRequest, error) {
	var req SendRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, errors.New("invalid JSON body")
	}
	if req.Content == "" {
		return nil, errors.New("content is required")
	}
	return &req, nil
}
