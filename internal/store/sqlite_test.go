// ABOUTME: Tests for the SQLite audit ledger.
// ABOUTME: Verifies schema creation, event persistence, and ordered retrieval.

package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestLedger(t *testing.T) *SQLiteLedger {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	l, err := NewSQLiteLedger(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLedger_SaveAndRetrieve(t *testing.T) {
	l := createTestLedger(t)
	ctx := context.Background()

	base := time.Now()
	events := []*LedgerEvent{
		{
			ID:        "evt-1",
			ThreadID:  "thread-1",
			Direction: EventDirectionInbound,
			Author:    "user",
			Timestamp: base,
			Type:      EventTypeMessage,
			Text:      "what was revenue last quarter?",
		},
		{
			ID:        "evt-2",
			ThreadID:  "thread-1",
			Direction: EventDirectionOutbound,
			Author:    "agent",
			Timestamp: base.Add(time.Second),
			Type:      EventTypeToolCall,
			Text:      `{"tool":"query_sales_data"}`,
		},
		{
			ID:        "evt-3",
			ThreadID:  "thread-1",
			Direction: EventDirectionOutbound,
			Author:    "agent",
			Timestamp: base.Add(2 * time.Second),
			Type:      EventTypeMessage,
			Text:      "Revenue was $5M.",
		},
	}
	for _, ev := range events {
		require.NoError(t, l.SaveEvent(ctx, ev))
	}

	got, err := l.EventsByThread(ctx, "thread-1", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "evt-1", got[0].ID)
	assert.Equal(t, EventTypeMessage, got[0].Type)
	assert.Equal(t, EventDirectionInbound, got[0].Direction)
	assert.Equal(t, "evt-2", got[1].ID)
	assert.Equal(t, EventTypeToolCall, got[1].Type)
	assert.Equal(t, "evt-3", got[2].ID)
	assert.Equal(t, "Revenue was $5M.", got[2].Text)
}

func TestLedger_EventsByThread_FiltersByThread(t *testing.T) {
	l := createTestLedger(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		threadID := "thread-a"
		if i%2 == 1 {
			threadID = "thread-b"
		}
		require.NoError(t, l.SaveEvent(ctx, &LedgerEvent{
			ID:        fmt.Sprintf("evt-%d", i),
			ThreadID:  threadID,
			Direction: EventDirectionInbound,
			Author:    "user",
			Timestamp: time.Now().Add(time.Duration(i) * time.Millisecond),
			Type:      EventTypeMessage,
			Text:      "hello",
		}))
	}

	got, err := l.EventsByThread(ctx, "thread-a", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, ev := range got {
		assert.Equal(t, "thread-a", ev.ThreadID)
	}
}

func TestLedger_EventsByThread_Limit(t *testing.T) {
	l := createTestLedger(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, l.SaveEvent(ctx, &LedgerEvent{
			ID:        fmt.Sprintf("evt-%d", i),
			ThreadID:  "thread-1",
			Direction: EventDirectionOutbound,
			Author:    "agent",
			Timestamp: time.Now().Add(time.Duration(i) * time.Millisecond),
			Type:      EventTypeMessage,
			Text:      "chunk",
		}))
	}

	got, err := l.EventsByThread(ctx, "thread-1", 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestLedger_EventsByThread_Empty(t *testing.T) {
	l := createTestLedger(t)

	got, err := l.EventsByThread(context.Background(), "nope", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}
