// ABOUTME: In-memory thread store, the source of truth for conversation state.
// ABOUTME: Serializes appends per thread so concurrent turns cannot interleave a log.

package store

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/genie-gateway/internal/agent"
)

// ThreadStore holds all conversation threads for the lifetime of the
// process. Threads are never deleted. The store-level lock guards the
// thread map and listing order; each thread carries its own mutex so
// appends to different threads proceed in parallel while appends to the
// same thread are serialized.
type ThreadStore struct {
	mu       sync.RWMutex
	threads  map[string]*memThread
	order    []string // insertion order for stable listing
	activeID string
	logger   *slog.Logger
}

type memThread struct {
	mu       sync.Mutex
	id       string
	title    string
	messages []agent.Message
	created  time.Time
}

// NewThreadStore creates an empty store. Pass nil logger for the default.
func NewThreadStore(logger *slog.Logger) *ThreadStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ThreadStore{
		threads: make(map[string]*memThread),
		logger:  logger.With("component", "store"),
	}
}

// CreateThread inserts a fresh thread with the default title and an empty
// message log, makes it the active thread, and returns its id.
func (s *ThreadStore) CreateThread() string {
	id := uuid.New().String()

	s.mu.Lock()
	s.threads[id] = &memThread{
		id:      id,
		title:   DefaultTitle,
		created: time.Now(),
	}
	s.order = append(s.order, id)
	s.activeID = id
	s.mu.Unlock()

	s.logger.Debug("thread created", "thread_id", id)
	return id
}

// SelectThread makes the given thread the active one. The active pointer is
// left untouched when the id is unknown.
func (s *ThreadStore) SelectThread(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.threads[id]; !ok {
		return ErrNotFound
	}
	s.activeID = id
	return nil
}

// ActiveThread returns the currently selected thread id, if any.
func (s *ThreadStore) ActiveThread() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID, s.activeID != ""
}

// AppendMessage appends a message to the thread's log. Appends to the same
// thread are serialized; appends to different threads are independent.
func (s *ThreadStore) AppendMessage(threadID string, msg agent.Message) error {
	t, err := s.lookup(threadID)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.messages = append(t.messages, msg)
	t.mu.Unlock()
	return nil
}

// MaybeRetitle sets the thread title to a truncated prefix of candidateText,
// but only while the title is still the default. Subsequent calls are no-ops,
// so the title reflects the first user query forever after.
func (s *ThreadStore) MaybeRetitle(threadID, candidateText string) error {
	t, err := s.lookup(threadID)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.title != DefaultTitle {
		return nil
	}
	t.title = truncateTitle(candidateText)
	s.logger.Debug("thread retitled", "thread_id", threadID, "title", t.title)
	return nil
}

// ListThreads returns an (id, title) snapshot of every thread in insertion
// order.
func (s *ThreadStore) ListThreads() []ThreadInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]ThreadInfo, 0, len(s.order))
	for _, id := range s.order {
		t := s.threads[id]
		t.mu.Lock()
		infos = append(infos, ThreadInfo{ID: t.id, Title: t.title})
		t.mu.Unlock()
	}
	return infos
}

// GetThread returns a point-in-time copy of the thread. The returned message
// slice is owned by the caller.
func (s *ThreadStore) GetThread(id string) (*Thread, error) {
	t, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	msgs := make([]agent.Message, len(t.messages))
	copy(msgs, t.messages)
	return &Thread{
		ID:        t.id,
		Title:     t.title,
		Messages:  msgs,
		CreatedAt: t.created,
	}, nil
}

// Messages returns a snapshot of a thread's message log.
func (s *ThreadStore) Messages(id string) ([]agent.Message, error) {
	t, err := s.GetThread(id)
	if err != nil {
		return nil, err
	}
	return t.Messages, nil
}

func (s *ThreadStore) lookup(id string) (*memThread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.threads[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

// truncateTitle keeps the first titleMaxLen characters of text, appending an
// ellipsis marker only when something was cut off.
func truncateTitle(text string) string {
	runes := []rune(text)
	if len(runes) <= titleMaxLen {
		return text
	}
	return string(runes[:titleMaxLen]) + "..."
}
