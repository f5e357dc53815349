package history

import (
	"database/sql"
	"fmt"
	"time"
)

// TurnRow is one persisted transcript turn.
type TurnRow struct {
	ContextID uint64
	SessionID int32
	Role      string
	Text      string
}

// RequestRow is one persisted request outcome.
type RequestRow struct {
	RequestID    string
	ContextID    uint64
	SessionID    int32
	Backend      string
	Status       string
	Latency      time.Duration
	PromptTokens int
	ReplyTokens  int
	ErrorMsg     string
}

// Request status values.
const (
	RequestStatusSuccess = "success"
	RequestStatusError   = "error"
)

// Store persists sessions, turns, and request outcomes to SQLite.
//
// All Record* methods are non-blocking: rows go through the async writer
// and reach disk shortly after. Close drains the queue before returning.
type Store struct {
	db     *sql.DB
	writer *asyncWriter
}

// Config holds store settings.
type Config struct {
	// Path is the SQLite database file path.
	Path string

	// QueueCapacity is the async write queue size (0 = default).
	QueueCapacity int

	// OnWriteError is called for every failed background write; nil means
	// failures are dropped silently.
	OnWriteError func(error)
}

// Open opens (creating if needed) the database at cfg.Path, applies
// pending schema migrations, and starts the background writer.
func Open(cfg Config) (*Store, error) {
	db, err := newSQLiteConnection(DefaultConnectionConfig(cfg.Path))
	if err != nil {
		return nil, err
	}

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	store := &Store{
		db:     db,
		writer: newAsyncWriter(cfg.QueueCapacity, cfg.OnWriteError),
	}
	store.writer.start()
	return store, nil
}

// RecordSession persists a session creation. Non-blocking.
func (s *Store) RecordSession(contextID uint64, sessionID int32) {
	s.writer.enqueue(func() error {
		_, err := s.db.Exec(
			`INSERT INTO sessions (context_id, session_id) VALUES (?, ?)`,
			contextID, sessionID,
		)
		if err != nil {
			return fmt.Errorf("failed to record session: %w", err)
		}
		return nil
	})
}

// RecordTurn persists one transcript turn. Non-blocking.
func (s *Store) RecordTurn(row TurnRow) {
	s.writer.enqueue(func() error {
		_, err := s.db.Exec(
			`INSERT INTO turns (context_id, session_id, role, text) VALUES (?, ?, ?, ?)`,
			row.ContextID, row.SessionID, row.Role, row.Text,
		)
		if err != nil {
			return fmt.Errorf("failed to record turn: %w", err)
		}
		return nil
	})
}

// RecordRequest persists one request outcome. Non-blocking.
func (s *Store) RecordRequest(row RequestRow) {
	s.writer.enqueue(func() error {
		_, err := s.db.Exec(
			`INSERT INTO requests
			 (request_id, context_id, session_id, backend, status, latency_ms, prompt_tokens, reply_tokens, error_msg)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			row.RequestID, row.ContextID, row.SessionID, row.Backend, row.Status,
			row.Latency.Milliseconds(), row.PromptTokens, row.ReplyTokens, row.ErrorMsg,
		)
		if err != nil {
			return fmt.Errorf("failed to record request: %w", err)
		}
		return nil
	})
}

// SessionTurns reads back the persisted turns of one session in insertion
// order. Used by diagnostics and tests; the runtime keeps its own
// transcript in memory.
func (s *Store) SessionTurns(contextID uint64, sessionID int32) ([]TurnRow, error) {
	rows, err := s.db.Query(
		`SELECT context_id, session_id, role, text
		 FROM turns WHERE context_id = ? AND session_id = ? ORDER BY id`,
		contextID, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var result []TurnRow
	for rows.Next() {
		var row TurnRow
		if err := rows.Scan(&row.ContextID, &row.SessionID, &row.Role, &row.Text); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// RequestCount returns the number of persisted request rows with the
// given status ("" counts all).
func (s *Store) RequestCount(status string) (int64, error) {
	var count int64
	var err error
	if status == "" {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM requests`).Scan(&count)
	} else {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM requests WHERE status = ?`, status).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count requests: %w", err)
	}
	return count, nil
}

// SchemaVersion returns the applied migration version and dirty flag.
func (s *Store) SchemaVersion() (uint, bool, error) {
	return schemaVersion(s.db)
}

// Pending returns the number of writes waiting in the queue.
func (s *Store) Pending() int {
	return s.writer.pending()
}

// Flush blocks until the write queue is empty or the timeout elapses.
// Returns false on timeout.
func (s *Store) Flush(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for s.writer.pending() > 0 {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
	return true
}

// Close drains the write queue and closes the database.
func (s *Store) Close() error {
	s.writer.stop(DefaultDrainTimeout)
	return s.db.Close()
}
