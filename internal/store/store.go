// ABOUTME: Shared types and errors for conversation thread storage.
// ABOUTME: Defines Thread, ThreadInfo and the sentinel errors used across the gateway.

package store

import (
	"errors"
	"time"

	"github.com/2389/genie-gateway/internal/agent"
)

// ErrNotFound is returned when a requested thread does not exist.
var ErrNotFound = errors.New("thread not found")

// DefaultTitle is the title given to freshly created threads. A thread is
// retitled exactly once, after its first completed exchange.
const DefaultTitle = "New chat"

// titleMaxLen is the number of characters of the first user query kept as
// the thread title before the ellipsis marker is appended.
const titleMaxLen = 30

// Thread is one independent conversation: an ordered message log plus a
// display title. Messages alternate user/assistant in strict turn order.
type Thread struct {
	ID        string
	Title     string
	Messages  []agent.Message
	CreatedAt time.Time
}

// ThreadInfo is the read-only listing view of a thread.
type ThreadInfo struct {
	ID    string
	Title string
}
