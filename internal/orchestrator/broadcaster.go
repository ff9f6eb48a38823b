// ABOUTME: In-memory fan-out of live turn updates to presentation-layer observers.
// ABOUTME: Publishes answer/tool-log snapshots per thread as a stream progresses.

package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// TurnUpdate is one live snapshot of an in-flight turn. Answer is always the
// full accumulated text so far, so every delivered snapshot is a prefix of
// the final answer even if intermediate snapshots were dropped for a slow
// subscriber.
type TurnUpdate struct {
	ThreadID string
	Answer   string
	ToolLog  []ToolActivityEntry
	Done     bool
	Err      string
}

// subscription pairs a channel with a closed flag. Sends and close are
// serialized on the subscription's own mutex so a publisher racing an
// unsubscribe can never send on a closed channel.
type subscription struct {
	mu     sync.Mutex
	ch     chan *TurnUpdate
	closed bool
}

// deliver sends the update without blocking. A full channel drops the
// snapshot; a closed subscription ignores it.
func (s *subscription) deliver(update *TurnUpdate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- update:
		return true
	default:
		return false
	}
}

func (s *subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Broadcaster provides per-thread pub/sub for TurnUpdates. The presentation
// layer subscribes to a thread and re-renders on every snapshot.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]*subscription // threadID -> subID
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for the default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]*subscription),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers an observer for a thread's live updates. The
// subscription is removed and its channel closed when ctx is cancelled or
// Unsubscribe is called with the returned id.
func (b *Broadcaster) Subscribe(ctx context.Context, threadID string) (<-chan *TurnUpdate, string) {
	subID := uuid.New().String()
	sub := &subscription{ch: make(chan *TurnUpdate, subscriberBufferSize)}

	b.mu.Lock()
	if _, ok := b.subscribers[threadID]; !ok {
		b.subscribers[threadID] = make(map[string]*subscription)
	}
	b.subscribers[threadID][subID] = sub
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "thread_id", threadID, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(threadID, subID)
	}()

	return sub.ch, subID
}

// Publish delivers an update to every subscriber of the thread. Sends are
// non-blocking: a full subscriber channel drops the snapshot (the next one
// carries a superset of the answer anyway).
func (b *Broadcaster) Publish(update *TurnUpdate) {
	b.mu.RLock()
	subs, ok := b.subscribers[update.ThreadID]
	if !ok || len(subs) == 0 {
		b.mu.RUnlock()
		return
	}
	targets := make([]*subscription, 0, len(subs))
	for _, sub := range subs {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		if !sub.deliver(update) {
			b.logger.Debug("dropped update", "thread_id", update.ThreadID)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(threadID, subID string) {
	b.mu.Lock()
	subs, ok := b.subscribers[threadID]
	if !ok {
		b.mu.Unlock()
		return
	}
	sub, exists := subs[subID]
	if !exists {
		b.mu.Unlock()
		return
	}

	delete(subs, subID)
	if len(subs) == 0 {
		delete(b.subscribers, threadID)
	}
	b.mu.Unlock()

	sub.close()

	b.logger.Debug("subscriber removed", "thread_id", threadID, "sub_id", subID)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	remaining := make([]*subscription, 0)
	for threadID, subs := range b.subscribers {
		for subID, sub := range subs {
			remaining = append(remaining, sub)
			delete(subs, subID)
		}
		delete(b.subscribers, threadID)
	}
	b.mu.Unlock()

	for _, sub := range remaining {
		sub.close()
	}
}
