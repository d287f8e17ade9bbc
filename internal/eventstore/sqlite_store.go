package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"symbiogen/internal/logging"
)

// SQLiteStore is the on-disk Store implementation, backed by a single
// `events` table with the indexes required by spec §4.1.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.Mutex // serializes writers per the single-writer-per-process model
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	consensus_id TEXT
);
CREATE INDEX IF NOT EXISTS idx_events_aggregate_type ON events(aggregate_type);
CREATE INDEX IF NOT EXISTS idx_events_aggregate_id ON events(aggregate_id);
CREATE INDEX IF NOT EXISTS idx_events_aggregate_composite ON events(aggregate_type, aggregate_id);
CREATE INDEX IF NOT EXISTS idx_events_event_type ON events(event_type);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
`

// OpenSQLiteStore opens (creating if needed) the event log at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	timer := logging.StartTimer(logging.CategoryEventStore, "OpenSQLiteStore")
	defer timer.Stop()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("eventstore: failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("eventstore: failed to open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("eventstore: failed to initialize schema: %w", err)
	}
	logging.Get(logging.CategoryEventStore).Info("event store opened at %s", path)
	return &SQLiteStore{db: db, path: path}, nil
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, ev Event) error {
	if err := ValidateEventType(ev.EventType); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.insert(ctx, s.db, ev); err != nil {
		return &PersistenceError{Op: "append", Err: err}
	}
	return nil
}

func (s *SQLiteStore) insert(ctx context.Context, execer interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
}, ev Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	_, err = execer.ExecContext(ctx,
		`INSERT INTO events (id, aggregate_type, aggregate_id, event_type, payload, timestamp, consensus_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.AggregateType), ev.AggregateID, ev.EventType, string(payload),
		ev.Timestamp.UTC().Format(time.RFC3339Nano), ev.ConsensusID)
	return err
}

// Replay implements Store.
func (s *SQLiteStore) Replay(ctx context.Context, aggregateID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, aggregate_type, aggregate_id, event_type, payload, timestamp, consensus_id
		 FROM events WHERE aggregate_id = ? ORDER BY timestamp ASC, id ASC`, aggregateID)
	if err != nil {
		return nil, &PersistenceError{Op: "replay", Err: err}
	}
	defer rows.Close()
	return scanEvents(rows)
}

// Query implements Store.
func (s *SQLiteStore) Query(ctx context.Context, aggType AggregateType, aggregateID string, since *time.Time) ([]Event, error) {
	q := `SELECT id, aggregate_type, aggregate_id, event_type, payload, timestamp, consensus_id FROM events WHERE 1=1`
	var args []interface{}
	if aggType != "" {
		q += " AND aggregate_type = ?"
		args = append(args, string(aggType))
	}
	if aggregateID != "" {
		q += " AND aggregate_id = ?"
		args = append(args, aggregateID)
	}
	if since != nil {
		q += " AND timestamp >= ?"
		args = append(args, since.UTC().Format(time.RFC3339Nano))
	}
	q += " ORDER BY timestamp ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, &PersistenceError{Op: "query", Err: err}
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var out []Event
	for rows.Next() {
		var (
			ev        Event
			aggType   string
			payload   string
			timestamp string
			consensus sql.NullString
		)
		if err := rows.Scan(&ev.ID, &aggType, &ev.AggregateID, &ev.EventType, &payload, &timestamp, &consensus); err != nil {
			return nil, err
		}
		ev.AggregateType = AggregateType(aggType)
		if consensus.Valid {
			ev.ConsensusID = consensus.String
		}
		ts, err := time.Parse(time.RFC3339Nano, timestamp)
		if err != nil {
			return nil, fmt.Errorf("eventstore: corrupt timestamp %q: %w", timestamp, err)
		}
		ev.Timestamp = ts
		if err := json.Unmarshal([]byte(payload), &ev.Payload); err != nil {
			return nil, fmt.Errorf("eventstore: corrupt payload for event %s: %w", ev.ID, err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Begin implements Store.
func (s *SQLiteStore) Begin(ctx context.Context) (*UnitOfWork, error) {
	return &UnitOfWork{ctx: ctx, target: s}, nil
}

// commitBatch implements batchCommitter: every event is inserted within one
// SQL transaction, so either all of the phase's events become visible or
// none do.
func (s *SQLiteStore) commitBatch(ctx context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &PersistenceError{Op: "commit:begin", Err: err}
	}
	for _, ev := range events {
		if err := s.insert(ctx, tx, ev); err != nil {
			_ = tx.Rollback()
			return &PersistenceError{Op: "commit:insert", Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &PersistenceError{Op: "commit:commit", Err: err}
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error { return s.db.Close() }
