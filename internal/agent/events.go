// ABOUTME: Event types and the Runtime interface for the agent event stream.
// ABOUTME: Defines the tagged union of streaming events consumed by the orchestrator.

package agent

import "context"

// Message roles within a conversation transcript.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn entry in a conversation transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// EventKind indicates the type of streaming event.
type EventKind int

const (
	// EventToken carries an incremental text fragment of the answer.
	EventToken EventKind = iota
	// EventToolStart signals that the runtime began a tool invocation.
	EventToolStart
	// EventToolEnd signals that the most recent tool invocation finished.
	EventToolEnd
	// EventError is terminal: the stream failed before completing.
	EventError
)

// Event is one element of a turn's event stream.
//
// The stream channel is closed to signal normal completion. An abnormal
// termination is delivered as a terminal EventError followed by close;
// consumers must treat any kind they do not recognize as a no-op so new
// event kinds can be added without breaking them.
type Event struct {
	Kind EventKind

	// Text is set for EventToken.
	Text string

	// ToolName and ToolArgs are set for EventToolStart.
	ToolName string
	ToolArgs map[string]any

	// Error is set for EventError.
	Error string
}

// Runtime is the agent runtime boundary: an externally-supplied engine that
// executes one conversational turn and streams its progress.
//
// StreamTurn receives the full transcript (ending with the new user message)
// and a session-correlation key so the runtime can scope any internal state
// to one thread. The returned channel is single-consumer and finite; it is
// closed when the turn completes or fails.
type Runtime interface {
	StreamTurn(ctx context.Context, messages []Message, sessionKey string) (<-chan *Event, error)
}
