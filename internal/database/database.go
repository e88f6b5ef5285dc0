package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Step actions recorded in the events table
const (
	ActionNotFound = "NOT_FOUND"
	ActionRefused  = "REFUSED"
	ActionRename   = "RENAME"
	ActionDelete   = "DELETE"
)

// Step statuses
const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// HistoryDB manages the SQLite database of cleanup runs
type HistoryDB struct {
	db *sql.DB
}

// RunRecord represents one cleanup run
type RunRecord struct {
	ID           int64
	StartedAt    time.Time
	TargetPath   string
	TrashPath    string
	Outcome      string
	TargetFound  bool
	Renamed      bool
	Deleted      bool
	BytesRemoved int64
	FilesRemoved int64
	DurationMs   int64
	CreatedAt    time.Time
}

// EventRecord represents one step of a run
type EventRecord struct {
	ID           int64
	RunID        int64
	Timestamp    time.Time
	Action       string
	Path         string
	Status       string
	ErrorMessage string
}

// RunSummary is the final state of a run written by FinishRun
type RunSummary struct {
	Outcome      string
	TargetFound  bool
	Renamed      bool
	Deleted      bool
	BytesRemoved int64
	FilesRemoved int64
	Duration     time.Duration
}

// NewHistoryDB creates a new database connection and initializes schema
func NewHistoryDB(dbPath string) (*HistoryDB, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	// _loc=auto enables automatic DATETIME parsing, _foreign_keys applies
	// to every pooled connection so run deletes cascade to events
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_loc=auto&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()

	// Ping does not create the file, a query does
	if _, err = db.Exec("SELECT 1"); err != nil {
		return nil, fmt.Errorf("failed to initialize database (check permissions on %s): %w", dbPath, err)
	}

	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if _, err = db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	hdb := &HistoryDB{db: db}
	if err = hdb.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return hdb, nil
}

// initSchema creates tables and indexes if they don't exist
func (d *HistoryDB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at DATETIME NOT NULL,
		target_path TEXT NOT NULL,
		trash_path TEXT NOT NULL,
		outcome TEXT NOT NULL DEFAULT 'running',
		target_found INTEGER NOT NULL DEFAULT 0,
		renamed INTEGER NOT NULL DEFAULT 0,
		deleted INTEGER NOT NULL DEFAULT 0,
		bytes_removed INTEGER NOT NULL DEFAULT 0,
		files_removed INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		timestamp DATETIME NOT NULL,
		action TEXT NOT NULL,
		path TEXT NOT NULL,
		status TEXT NOT NULL,
		error_message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_outcome ON runs(outcome);
	CREATE INDEX IF NOT EXISTS idx_events_run_id ON events(run_id);
	CREATE INDEX IF NOT EXISTS idx_events_action ON events(action);

	-- Metadata table for schema versioning
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := d.db.Exec(schema)
	return err
}

// BeginRun inserts a run row and returns its id
func (d *HistoryDB) BeginRun(startedAt time.Time, target, trash string) (int64, error) {
	result, err := d.db.Exec(
		`INSERT INTO runs (started_at, target_path, trash_path) VALUES (?, ?, ?)`,
		startedAt.UTC(), target, trash,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// RecordEvent inserts one step of a run
func (d *HistoryDB) RecordEvent(runID int64, action, path, status, errorMsg string) error {
	var errMsg sql.NullString
	if errorMsg != "" {
		errMsg = sql.NullString{String: errorMsg, Valid: true}
	}

	_, err := d.db.Exec(
		`INSERT INTO events (run_id, timestamp, action, path, status, error_message)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, time.Now().UTC(), action, path, status, errMsg,
	)
	return err
}

// FinishRun stores the final state of a run
func (d *HistoryDB) FinishRun(runID int64, s RunSummary) error {
	result, err := d.db.Exec(`
		UPDATE runs SET
			outcome = ?, target_found = ?, renamed = ?, deleted = ?,
			bytes_removed = ?, files_removed = ?, duration_ms = ?
		WHERE id = ?`,
		s.Outcome, s.TargetFound, s.Renamed, s.Deleted,
		s.BytesRemoved, s.FilesRemoved, s.Duration.Milliseconds(),
		runID,
	)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %d: %w", runID, sql.ErrNoRows)
	}
	return nil
}

// Close closes the database connection
func (d *HistoryDB) Close() error {
	return d.db.Close()
}

// Vacuum optimizes the database (run periodically)
func (d *HistoryDB) Vacuum() error {
	_, err := d.db.Exec("VACUUM")
	return err
}
