// ABOUTME: SQLite audit ledger using modernc.org/sqlite.
// ABOUTME: Best-effort history trail; the in-memory ThreadStore stays the source of truth.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// EventDirection indicates whether a ledger event flowed into or out of the
// agent runtime.
type EventDirection string

const (
	EventDirectionInbound  EventDirection = "inbound_to_agent"
	EventDirectionOutbound EventDirection = "outbound_from_agent"
)

// EventType categorizes the kind of ledger event.
type EventType string

const (
	EventTypeMessage    EventType = "message"
	EventTypeToolCall   EventType = "tool_call"
	EventTypeToolResult EventType = "tool_result"
	EventTypeError      EventType = "error"
)

// LedgerEvent is one normalized entry in the audit trail. Every user query,
// assistant answer, tool boundary, and stream failure is recorded here.
type LedgerEvent struct {
	ID        string
	ThreadID  string
	Direction EventDirection
	Author    string
	Timestamp time.Time
	Type      EventType
	Text      string
}

// SQLiteLedger persists LedgerEvents. Writes are best-effort: callers log
// failures instead of failing the turn.
type SQLiteLedger struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteLedger opens (creating if needed) a ledger database at path.
// Parent directories are created, WAL mode is enabled, and the schema is
// applied on first use.
func NewSQLiteLedger(path string) (*SQLiteLedger, error) {
	logger := slog.Default().With("component", "ledger")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL lets readers proceed while a turn is being recorded
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	l := &SQLiteLedger{db: db, logger: logger}
	if err := l.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("ledger initialized", "path", path)
	return l, nil
}

func (l *SQLiteLedger) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS ledger_events (
			event_id   TEXT PRIMARY KEY,
			thread_id  TEXT NOT NULL,
			direction  TEXT NOT NULL,
			author     TEXT NOT NULL,
			timestamp  TEXT NOT NULL,
			type       TEXT NOT NULL,
			text       TEXT NOT NULL,

			CHECK (direction IN ('inbound_to_agent', 'outbound_from_agent')),
			CHECK (type IN ('message', 'tool_call', 'tool_result', 'error'))
		);

		CREATE INDEX IF NOT EXISTS idx_ledger_thread_ts
			ON ledger_events(thread_id, timestamp);
	`
	_, err := l.db.Exec(schema)
	return err
}

// SaveEvent persists one ledger event.
func (l *SQLiteLedger) SaveEvent(ctx context.Context, event *LedgerEvent) error {
	query := `
		INSERT INTO ledger_events (event_id, thread_id, direction, author, timestamp, type, text)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := l.db.ExecContext(ctx, query,
		event.ID,
		event.ThreadID,
		string(event.Direction),
		event.Author,
		event.Timestamp.UTC().Format(time.RFC3339Nano),
		string(event.Type),
		event.Text,
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	l.logger.Debug("saved ledger event",
		"event_id", event.ID,
		"thread_id", event.ThreadID,
		"type", event.Type,
	)
	return nil
}

// EventsByThread returns the oldest-first events for a thread, capped at
// limit (50 when limit <= 0).
func (l *SQLiteLedger) EventsByThread(ctx context.Context, threadID string, limit int) ([]*LedgerEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT event_id, thread_id, direction, author, timestamp, type, text
		FROM ledger_events
		WHERE thread_id = ?
		ORDER BY timestamp ASC, event_id ASC
		LIMIT ?
	`
	rows, err := l.db.QueryContext(ctx, query, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []*LedgerEvent
	for rows.Next() {
		var (
			ev           LedgerEvent
			direction    string
			eventType    string
			timestampStr string
		)
		if err := rows.Scan(&ev.ID, &ev.ThreadID, &direction, &ev.Author, &timestampStr, &eventType, &ev.Text); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, timestampStr)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		ev.Direction = EventDirection(direction)
		ev.Type = EventType(eventType)
		ev.Timestamp = ts
		events = append(events, &ev)
	}
	return events, rows.Err()
}

// Close closes the underlying database.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
