// ABOUTME: SQLite persistence for pipeline runs: full state as JSON plus queryable
// ABOUTME: approval and error rows denormalized for inspection without deserializing.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/2389-research/longform/pipeline"
)

// ErrNotFound is returned when a run ID has no stored record.
var ErrNotFound = errors.New("run not found")

const timeLayout = "2006-01-02T15:04:05Z07:00"

// RunSummary is a run row for list queries, without the state blob.
type RunSummary struct {
	RunID     string
	Topic     string
	Status    pipeline.Status
	CreatedAt string
	UpdatedAt string
}

// RunStore persists RunState snapshots to SQLite. The runs.state column
// is the source of truth; the approvals and run_errors tables mirror it
// for ad-hoc querying.
type RunStore struct {
	db *sql.DB
}

// Open opens or creates the run database at the given path and runs
// migrations to ensure the schema is up to date.
func Open(path string) (*RunStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			topic TEXT NOT NULL,
			status TEXT NOT NULL,
			state TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS approvals (
			approval_id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			checkpoint TEXT NOT NULL,
			approved INTEGER NOT NULL,
			decided_at TEXT NOT NULL,
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		);

		CREATE TABLE IF NOT EXISTS run_errors (
			error_id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			stage TEXT NOT NULL,
			category TEXT NOT NULL,
			message TEXT NOT NULL,
			occurred_at TEXT NOT NULL,
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		);`

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &RunStore{db: db}, nil
}

// Close closes the database connection.
func (s *RunStore) Close() error {
	return s.db.Close()
}

// Create inserts a new run record. Fails if the run ID already exists.
func (s *RunStore) Create(state *pipeline.RunState) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal run state: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO runs (run_id, topic, status, state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		state.RunID,
		state.Topic,
		string(state.Status),
		string(blob),
		state.CreatedAt.Format(timeLayout),
		state.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Update replaces the run's state blob and re-mirrors its approvals and
// errors. Returns ErrNotFound for an unknown run ID.
func (s *RunStore) Update(state *pipeline.RunState) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal run state: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(
		`UPDATE runs SET status = ?, state = ?, updated_at = datetime('now') WHERE run_id = ?`,
		string(state.Status), string(blob), state.RunID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	for _, a := range state.Approvals {
		approved := 0
		if a.Approved {
			approved = 1
		}
		if _, err := tx.Exec(
			`INSERT INTO approvals (approval_id, run_id, checkpoint, approved, decided_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(approval_id) DO UPDATE SET
				checkpoint = excluded.checkpoint,
				approved = excluded.approved,
				decided_at = excluded.decided_at`,
			a.ID, state.RunID, a.Checkpoint, approved, a.Timestamp.Format(timeLayout)); err != nil {
			return fmt.Errorf("upsert approval: %w", err)
		}
	}

	// Error entries are append-only on the run, so replacing the mirror
	// rows wholesale keeps them in sync without tracking identity.
	if _, err := tx.Exec("DELETE FROM run_errors WHERE run_id = ?", state.RunID); err != nil {
		return fmt.Errorf("clear error rows: %w", err)
	}
	for _, e := range state.Errors {
		if _, err := tx.Exec(
			`INSERT INTO run_errors (run_id, stage, category, message, occurred_at)
			 VALUES (?, ?, ?, ?, ?)`,
			state.RunID, e.Stage, string(e.Category), e.Message, e.Timestamp.Format(timeLayout)); err != nil {
			return fmt.Errorf("insert error row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}
	return nil
}

// Get loads a run's full state by ID.
func (s *RunStore) Get(runID string) (*pipeline.RunState, error) {
	var blob string
	err := s.db.QueryRow("SELECT state FROM runs WHERE run_id = ?", runID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	var state pipeline.RunState
	if err := json.Unmarshal([]byte(blob), &state); err != nil {
		return nil, fmt.Errorf("unmarshal run state: %w", err)
	}
	return &state, nil
}

// List returns summaries of all runs, newest first.
func (s *RunStore) List() ([]RunSummary, error) {
	rows, err := s.db.Query(
		"SELECT run_id, topic, status, created_at, updated_at FROM runs ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		var status string
		if err := rows.Scan(&r.RunID, &r.Topic, &status, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		r.Status = pipeline.Status(status)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
