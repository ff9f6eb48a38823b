// ABOUTME: Tests for the in-memory ThreadStore.
// ABOUTME: Covers creation, selection, append ordering, retitling, and concurrency.

package store

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/genie-gateway/internal/agent"
)

func TestThreadStore_CreateThread(t *testing.T) {
	s := NewThreadStore(nil)

	id := s.CreateThread()
	require.NotEmpty(t, id)

	thread, err := s.GetThread(id)
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, thread.Title)
	assert.Empty(t, thread.Messages)

	active, ok := s.ActiveThread()
	require.True(t, ok)
	assert.Equal(t, id, active, "new thread becomes active")
}

func TestThreadStore_CreateThread_UniqueIDs(t *testing.T) {
	s := NewThreadStore(nil)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := s.CreateThread()
		require.False(t, seen[id], "thread ids must be unique")
		seen[id] = true
	}
}

func TestThreadStore_SelectThread(t *testing.T) {
	s := NewThreadStore(nil)
	first := s.CreateThread()
	second := s.CreateThread()

	require.NoError(t, s.SelectThread(first))
	active, _ := s.ActiveThread()
	assert.Equal(t, first, active)

	require.NoError(t, s.SelectThread(second))
	active, _ = s.ActiveThread()
	assert.Equal(t, second, active)
}

func TestThreadStore_SelectThread_NotFound(t *testing.T) {
	s := NewThreadStore(nil)
	id := s.CreateThread()

	err := s.SelectThread("no-such-thread")
	require.ErrorIs(t, err, ErrNotFound)

	// The active pointer is untouched by a failed select
	active, ok := s.ActiveThread()
	require.True(t, ok)
	assert.Equal(t, id, active)
}

func TestThreadStore_AppendMessage_Order(t *testing.T) {
	s := NewThreadStore(nil)
	id := s.CreateThread()

	require.NoError(t, s.AppendMessage(id, agent.Message{Role: agent.RoleUser, Content: "q1"}))
	require.NoError(t, s.AppendMessage(id, agent.Message{Role: agent.RoleAssistant, Content: "a1"}))
	require.NoError(t, s.AppendMessage(id, agent.Message{Role: agent.RoleUser, Content: "q2"}))
	require.NoError(t, s.AppendMessage(id, agent.Message{Role: agent.RoleAssistant, Content: "a2"}))

	msgs, err := s.Messages(id)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, []agent.Message{
		{Role: agent.RoleUser, Content: "q1"},
		{Role: agent.RoleAssistant, Content: "a1"},
		{Role: agent.RoleUser, Content: "q2"},
		{Role: agent.RoleAssistant, Content: "a2"},
	}, msgs)
}

func TestThreadStore_AppendMessage_NotFound(t *testing.T) {
	s := NewThreadStore(nil)
	err := s.AppendMessage("missing", agent.Message{Role: agent.RoleUser, Content: "hi"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestThreadStore_MaybeRetitle(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "short query unchanged",
			input: "Hi",
			want:  "Hi",
		},
		{
			name:  "exactly thirty characters unchanged",
			input: "123456789012345678901234567890",
			want:  "123456789012345678901234567890",
		},
		{
			name:  "long query truncated with ellipsis",
			input: "What was Q1 revenue by region for the sales team?",
			want:  "What was Q1 revenue by region ...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewThreadStore(nil)
			id := s.CreateThread()

			require.NoError(t, s.MaybeRetitle(id, tt.input))

			thread, err := s.GetThread(id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, thread.Title)
		})
	}
}

func TestThreadStore_MaybeRetitle_Idempotent(t *testing.T) {
	s := NewThreadStore(nil)
	id := s.CreateThread()

	require.NoError(t, s.MaybeRetitle(id, "first question"))
	require.NoError(t, s.MaybeRetitle(id, "second question"))

	thread, err := s.GetThread(id)
	require.NoError(t, err)
	assert.Equal(t, "first question", thread.Title, "only the first retitle takes effect")
}

func TestThreadStore_MaybeRetitle_NotFound(t *testing.T) {
	s := NewThreadStore(nil)
	require.ErrorIs(t, s.MaybeRetitle("missing", "text"), ErrNotFound)
}

func TestThreadStore_ListThreads_InsertionOrder(t *testing.T) {
	s := NewThreadStore(nil)

	var want []string
	for i := 0; i < 5; i++ {
		want = append(want, s.CreateThread())
	}

	infos := s.ListThreads()
	require.Len(t, infos, 5)
	for i, info := range infos {
		assert.Equal(t, want[i], info.ID)
		assert.Equal(t, DefaultTitle, info.Title)
	}
}

func TestThreadStore_ConcurrentAppends_DifferentThreads(t *testing.T) {
	s := NewThreadStore(nil)
	a := s.CreateThread()
	b := s.CreateThread()

	const perThread = 200

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < perThread; i++ {
			_ = s.AppendMessage(a, agent.Message{Role: agent.RoleUser, Content: fmt.Sprintf("a-%d", i)})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < perThread; i++ {
			_ = s.AppendMessage(b, agent.Message{Role: agent.RoleUser, Content: fmt.Sprintf("b-%d", i)})
		}
	}()
	wg.Wait()

	msgsA, err := s.Messages(a)
	require.NoError(t, err)
	msgsB, err := s.Messages(b)
	require.NoError(t, err)

	require.Len(t, msgsA, perThread)
	require.Len(t, msgsB, perThread)

	// Each thread's log preserves its own append order with no cross-talk
	for i := 0; i < perThread; i++ {
		assert.Equal(t, fmt.Sprintf("a-%d", i), msgsA[i].Content)
		assert.Equal(t, fmt.Sprintf("b-%d", i), msgsB[i].Content)
	}
}

func TestThreadStore_GetThread_ReturnsCopy(t *testing.T) {
	s := NewThreadStore(nil)
	id := s.CreateThread()
	require.NoError(t, s.AppendMessage(id, agent.Message{Role: agent.RoleUser, Content: "original"}))

	thread, err := s.GetThread(id)
	require.NoError(t, err)
	thread.Messages[0].Content = "mutated"

	fresh, err := s.GetThread(id)
	require.NoError(t, err)
	assert.Equal(t, "original", fresh.Messages[0].Content)
}
