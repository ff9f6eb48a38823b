// ABOUTME: StreamOrchestrator runs one user turn against the agent runtime.
// ABOUTME: Demultiplexes the event stream, maintains live state, and finalizes the answer.

package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/genie-gateway/internal/agent"
	"github.com/2389/genie-gateway/internal/store"
)

var (
	// ErrStreamFailure indicates the event stream terminated abnormally.
	// The user message is already in the thread; no assistant message was
	// appended. The caller decides whether to retry or show an error.
	ErrStreamFailure = errors.New("agent stream failed")

	// ErrTurnInProgress is returned when a turn is submitted for a thread
	// that already has one streaming. Concurrent turns on the same thread
	// are rejected rather than cancelled, so a thread can never show
	// interleaved partial answers.
	ErrTurnInProgress = errors.New("turn already in progress for thread")
)

// ToolStatus tracks the lifecycle of one tool invocation.
type ToolStatus string

const (
	ToolStatusStarted  ToolStatus = "started"
	ToolStatusFinished ToolStatus = "finished"
)

// ToolActivityEntry is one entry in a turn's ephemeral tool log. It lives
// only for the duration of the stream; the thread transcript keeps just the
// final answer.
type ToolActivityEntry struct {
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args,omitempty"`
	Status ToolStatus     `json:"status"`
}

// Ledger is the audit-trail sink. Writes are best-effort; nil disables them.
type Ledger interface {
	SaveEvent(ctx context.Context, event *store.LedgerEvent) error
}

// Orchestrator runs turns: it appends the user message, opens the runtime's
// event stream, publishes live snapshots, and appends the finalized answer.
type Orchestrator struct {
	store       *store.ThreadStore
	runtime     agent.Runtime
	ledger      Ledger
	broadcaster *Broadcaster
	logger      *slog.Logger

	mu       sync.Mutex
	inflight map[string]struct{} // thread ids with a streaming turn
}

// New wires an orchestrator. ledger may be nil.
func New(threads *store.ThreadStore, runtime agent.Runtime, ledger Ledger, broadcaster *Broadcaster, logger *slog.Logger) (*Orchestrator, error) {
	if threads == nil {
		return nil, errors.New("thread store is required")
	}
	if runtime == nil {
		return nil, errors.New("agent runtime is required")
	}
	if broadcaster == nil {
		broadcaster = NewBroadcaster(logger)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:       threads,
		runtime:     runtime,
		ledger:      ledger,
		broadcaster: broadcaster,
		logger:      logger.With("component", "orchestrator"),
		inflight:    make(map[string]struct{}),
	}, nil
}

// Broadcaster exposes the live-update fan-out for the presentation layer.
func (o *Orchestrator) Broadcaster() *Broadcaster {
	return o.broadcaster
}

// RunTurn executes one user turn on a thread and returns the finalized
// answer.
//
// The user message is appended before streaming begins, so the transcript
// shows the turn immediately. The assistant message is appended only after
// the stream ends normally; an abnormal termination surfaces ErrStreamFailure
// and leaves the transcript with the user message as the last entry.
func (o *Orchestrator) RunTurn(ctx context.Context, threadID, query string) (string, error) {
	// Reject before any side effects: unknown thread, then busy thread.
	if _, err := o.store.GetThread(threadID); err != nil {
		return "", err
	}
	if !o.acquire(threadID) {
		return "", fmt.Errorf("%w: %s", ErrTurnInProgress, threadID)
	}
	defer o.release(threadID)

	if err := o.store.AppendMessage(threadID, agent.Message{Role: agent.RoleUser, Content: query}); err != nil {
		return "", err
	}
	o.recordEvent(&store.LedgerEvent{
		ThreadID:  threadID,
		Direction: store.EventDirectionInbound,
		Author:    agent.RoleUser,
		Type:      store.EventTypeMessage,
		Text:      query,
	})

	messages, err := o.store.Messages(threadID)
	if err != nil {
		return "", err
	}

	// The thread id doubles as the session-correlation key so any memory
	// inside the runtime stays scoped to this thread.
	events, err := o.runtime.StreamTurn(ctx, messages, threadID)
	if err != nil {
		o.logger.Error("opening event stream failed", "thread_id", threadID, "error", err)
		return "", fmt.Errorf("%w: %v", ErrStreamFailure, err)
	}

	answer, toolLog, streamErr := o.consume(threadID, events)
	if streamErr != nil {
		o.recordEvent(&store.LedgerEvent{
			ThreadID:  threadID,
			Direction: store.EventDirectionOutbound,
			Author:    "agent",
			Type:      store.EventTypeError,
			Text:      streamErr.Error(),
		})
		o.broadcaster.Publish(&TurnUpdate{
			ThreadID: threadID,
			Answer:   answer,
			ToolLog:  toolLog,
			Done:     true,
			Err:      streamErr.Error(),
		})
		return "", fmt.Errorf("%w: %v", ErrStreamFailure, streamErr)
	}

	if err := o.store.AppendMessage(threadID, agent.Message{Role: agent.RoleAssistant, Content: answer}); err != nil {
		return "", err
	}
	if err := o.store.MaybeRetitle(threadID, query); err != nil {
		return "", err
	}
	o.recordEvent(&store.LedgerEvent{
		ThreadID:  threadID,
		Direction: store.EventDirectionOutbound,
		Author:    "agent",
		Type:      store.EventTypeMessage,
		Text:      answer,
	})

	o.broadcaster.Publish(&TurnUpdate{
		ThreadID: threadID,
		Answer:   answer,
		ToolLog:  toolLog,
		Done:     true,
	})

	o.logger.Debug("turn finalized",
		"thread_id", threadID,
		"answer_len", len(answer),
		"tool_calls", len(toolLog),
	)
	return answer, nil
}

// consume drains the event stream in arrival order, growing the answer and
// tool log and publishing a snapshot after every recognized event. Unknown
// event kinds are ignored so new kinds never abort a stream.
func (o *Orchestrator) consume(threadID string, events <-chan *agent.Event) (string, []ToolActivityEntry, error) {
	var (
		answer    string
		toolLog   []ToolActivityEntry
		streamErr error
	)

	for ev := range events {
		switch ev.Kind {
		case agent.EventToken:
			answer += ev.Text

		case agent.EventToolStart:
			toolLog = append(toolLog, ToolActivityEntry{
				Tool:   ev.ToolName,
				Args:   ev.ToolArgs,
				Status: ToolStatusStarted,
			})
			o.recordEvent(&store.LedgerEvent{
				ThreadID:  threadID,
				Direction: store.EventDirectionOutbound,
				Author:    "agent",
				Type:      store.EventTypeToolCall,
				Text:      toolCallText(ev.ToolName, ev.ToolArgs),
			})

		case agent.EventToolEnd:
			for i := len(toolLog) - 1; i >= 0; i-- {
				if toolLog[i].Status == ToolStatusStarted {
					toolLog[i].Status = ToolStatusFinished
					o.recordEvent(&store.LedgerEvent{
						ThreadID:  threadID,
						Direction: store.EventDirectionOutbound,
						Author:    "agent",
						Type:      store.EventTypeToolResult,
						Text:      toolLog[i].Tool,
					})
					break
				}
			}

		case agent.EventError:
			// Terminal; the channel closes after this. Keep draining in
			// case the runtime emits trailing events anyway.
			streamErr = errors.New(ev.Error)
			continue

		default:
			continue
		}

		o.broadcaster.Publish(&TurnUpdate{
			ThreadID: threadID,
			Answer:   answer,
			ToolLog:  cloneToolLog(toolLog),
		})
	}

	return answer, toolLog, streamErr
}

// Busy reports whether a turn is currently streaming on the thread. It is
// advisory: a turn may start or finish between the check and any follow-up
// call, which then sees ErrTurnInProgress itself.
func (o *Orchestrator) Busy(threadID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, busy := o.inflight[threadID]
	return busy
}

func (o *Orchestrator) acquire(threadID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, busy := o.inflight[threadID]; busy {
		return false
	}
	o.inflight[threadID] = struct{}{}
	return true
}

func (o *Orchestrator) release(threadID string) {
	o.mu.Lock()
	delete(o.inflight, threadID)
	o.mu.Unlock()
}

// recordEvent writes to the audit ledger with a detached timeout context so
// persistence outlives a cancelled request. Failures are logged, not fatal.
func (o *Orchestrator) recordEvent(event *store.LedgerEvent) {
	if o.ledger == nil {
		return
	}
	event.ID = uuid.New().String()
	event.Timestamp = time.Now()

	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := o.ledger.SaveEvent(saveCtx, event); err != nil {
		o.logger.Error("failed to save ledger event",
			"error", err,
			"thread_id", event.ThreadID,
			"type", event.Type,
		)
	}
}

// cloneToolLog copies the log so published snapshots stay immutable while
// the orchestrator keeps mutating its working copy.
func cloneToolLog(log []ToolActivityEntry) []ToolActivityEntry {
	if len(log) == 0 {
		return nil
	}
	out := make([]ToolActivityEntry, len(log))
	copy(out, log)
	return out
}

func toolCallText(name string, args map[string]any) string {
	raw, err := json.Marshal(map[string]any{"tool": name, "args": args})
	if err != nil {
		return name
	}
	return string(raw)
}
