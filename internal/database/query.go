package database

import (
	"database/sql"
	"time"
)

const runColumns = `id, started_at, target_path, trash_path, outcome,
	target_found, renamed, deleted, bytes_removed, files_removed,
	duration_ms, created_at`

// GetRecentRuns returns the N most recent runs
func (d *HistoryDB) GetRecentRuns(limit int) ([]RunRecord, error) {
	query := `SELECT ` + runColumns + `
	FROM runs
	ORDER BY started_at DESC, id DESC
	LIMIT ?
	`
	return d.queryRuns(query, limit)
}

// GetRunsByOutcome returns runs with the given outcome
func (d *HistoryDB) GetRunsByOutcome(outcome string) ([]RunRecord, error) {
	query := `SELECT ` + runColumns + `
	FROM runs
	WHERE outcome = ?
	ORDER BY started_at DESC, id DESC
	`
	return d.queryRuns(query, outcome)
}

// GetRun returns a single run, sql.ErrNoRows when it does not exist
func (d *HistoryDB) GetRun(id int64) (*RunRecord, error) {
	runs, err := d.queryRuns(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, sql.ErrNoRows
	}
	return &runs[0], nil
}

// GetRunEvents returns the steps of a run in the order they happened
func (d *HistoryDB) GetRunEvents(runID int64) ([]EventRecord, error) {
	query := `
	SELECT id, run_id, timestamp, action, path, status, error_message
	FROM events
	WHERE run_id = ?
	ORDER BY id ASC
	`
	return d.queryEvents(query, runID)
}

// GetEventsByAction returns events filtered by action type, newest first
func (d *HistoryDB) GetEventsByAction(action string) ([]EventRecord, error) {
	query := `
	SELECT id, run_id, timestamp, action, path, status, error_message
	FROM events
	WHERE action = ?
	ORDER BY id DESC
	`
	return d.queryEvents(query, action)
}

// RunStats holds aggregated statistics
type RunStats struct {
	TotalRuns         int
	TotalRemoved      int
	TotalNotFound     int
	RenameFailures    int
	DeleteFailures    int
	TotalBytesRemoved int64
	TotalFilesRemoved int64
	ByOutcome         map[string]int
	StartDate         time.Time
	EndDate           time.Time
}

// GetRunStats returns statistics for runs started in the last N days
func (d *HistoryDB) GetRunStats(days int) (*RunStats, error) {
	now := time.Now().UTC()
	since := now.AddDate(0, 0, -days)

	stats := &RunStats{
		StartDate: since,
		EndDate:   now,
		ByOutcome: make(map[string]int),
	}

	err := d.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(bytes_removed), 0),
			COALESCE(SUM(files_removed), 0)
		FROM runs
		WHERE started_at >= ?
	`, since).Scan(&stats.TotalRuns, &stats.TotalBytesRemoved, &stats.TotalFilesRemoved)
	if err != nil {
		return nil, err
	}

	err = d.db.QueryRow(`
		SELECT
			COUNT(CASE WHEN e.action = 'RENAME' AND e.status = 'ERROR' THEN 1 END),
			COUNT(CASE WHEN e.action = 'DELETE' AND e.status = 'ERROR' THEN 1 END)
		FROM events e
		JOIN runs r ON r.id = e.run_id
		WHERE r.started_at >= ?
	`, since).Scan(&stats.RenameFailures, &stats.DeleteFailures)
	if err != nil {
		return nil, err
	}

	rows, err := d.db.Query(`
		SELECT outcome, COUNT(*)
		FROM runs
		WHERE started_at >= ?
		GROUP BY outcome
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, err
		}
		stats.ByOutcome[outcome] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stats.TotalRemoved = stats.ByOutcome["removed"]
	stats.TotalNotFound = stats.ByOutcome["not_found"]

	return stats, nil
}

// DeleteOldRuns removes runs (and their events) older than specified days
func (d *HistoryDB) DeleteOldRuns(olderThanDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)

	result, err := d.db.Exec(`DELETE FROM runs WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

func (d *HistoryDB) queryRuns(query string, args ...interface{}) ([]RunRecord, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var r RunRecord
		var createdAt sql.NullTime

		err := rows.Scan(
			&r.ID, &r.StartedAt, &r.TargetPath, &r.TrashPath, &r.Outcome,
			&r.TargetFound, &r.Renamed, &r.Deleted, &r.BytesRemoved, &r.FilesRemoved,
			&r.DurationMs, &createdAt,
		)
		if err != nil {
			return nil, err
		}
		if createdAt.Valid {
			r.CreatedAt = createdAt.Time
		}

		records = append(records, r)
	}

	return records, rows.Err()
}

func (d *HistoryDB) queryEvents(query string, args ...interface{}) ([]EventRecord, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []EventRecord
	for rows.Next() {
		var e EventRecord
		var errMsg sql.NullString

		if err := rows.Scan(&e.ID, &e.RunID, &e.Timestamp, &e.Action, &e.Path, &e.Status, &errMsg); err != nil {
			return nil, err
		}
		if errMsg.Valid {
			e.ErrorMessage = errMsg.String
		}

		records = append(records, e)
	}

	return records, rows.Err()
}
