package drift

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store persists drift measurements and retrospectives in SQLite, grounded
// on the teacher's internal/northstar/store.go Vision/DriftEvent schema,
// generalized from per-project vision alignment to per-lineage Seed drift.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// NewStore opens or creates the drift knowledge database under dir.
func NewStore(dir string) (*Store, error) {
	dbPath := filepath.Join(dir, "drift.db")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("drift: failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("drift: failed to open database: %w", err)
	}

	s := &Store{db: db, dbPath: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("drift: failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS drift_measurements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		lineage_id TEXT NOT NULL,
		iteration INTEGER NOT NULL,
		score REAL NOT NULL,
		goal_drift REAL NOT NULL,
		constraint_drift REAL NOT NULL,
		ontology_drift REAL NOT NULL,
		healthy INTEGER NOT NULL,
		recorded_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_drift_lineage ON drift_measurements(lineage_id);

	CREATE TABLE IF NOT EXISTS drift_retrospectives (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		lineage_id TEXT NOT NULL,
		iteration INTEGER NOT NULL,
		score REAL NOT NULL,
		recommendations_json TEXT,
		notify_human INTEGER NOT NULL,
		recorded_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_retro_lineage ON drift_retrospectives(lineage_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// SaveMeasurement appends one drift measurement row for lineageID.
func (s *Store) SaveMeasurement(lineageID string, m Measurement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO drift_measurements (lineage_id, iteration, score, goal_drift, constraint_drift, ontology_drift, healthy, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		lineageID, m.Iteration, m.Score, m.Components.Goal, m.Components.Constraint, m.Components.Ontology, boolToInt(m.Healthy), time.Now().UTC())
	return err
}

// SaveRetrospective appends one retrospective row for lineageID.
func (s *Store) SaveRetrospective(lineageID string, r Retrospective) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	recJSON, err := json.Marshal(r.Recommendations)
	if err != nil {
		return fmt.Errorf("drift: failed to marshal recommendations: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO drift_retrospectives (lineage_id, iteration, score, recommendations_json, notify_human, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		lineageID, r.Iteration, r.Measurement.Score, string(recJSON), boolToInt(r.NotifyHuman), time.Now().UTC())
	return err
}

// History returns every persisted measurement for lineageID in recorded
// order.
func (s *Store) History(lineageID string) ([]Measurement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(`
		SELECT iteration, score, goal_drift, constraint_drift, ontology_drift, healthy
		FROM drift_measurements WHERE lineage_id = ? ORDER BY id ASC`, lineageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Measurement
	for rows.Next() {
		var m Measurement
		var healthy int
		if err := rows.Scan(&m.Iteration, &m.Score, &m.Components.Goal, &m.Components.Constraint, &m.Components.Ontology, &healthy); err != nil {
			return nil, err
		}
		m.Healthy = healthy != 0
		out = append(out, m)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
