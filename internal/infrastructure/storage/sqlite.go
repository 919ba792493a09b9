package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Storage provides SQLite database access for runs and adjustments.
// It implements the Repository interface.
type Storage struct {
	db *sql.DB
}

// Compile-time check that Storage implements Repository
var _ Repository = (*Storage)(nil)

// NewStorage opens the SQLite database at dbPath and applies migrations
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign key constraints (SQLite-specific)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Storage{db: db}

	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// StartRun records the start of a run
func (s *Storage) StartRun(kind, sessionID string, dryRun bool) (int64, error) {
	query := `
		INSERT INTO runs (kind, session_id, dry_run, status)
		VALUES (?, ?, ?, ?)
	`

	result, err := s.db.Exec(query, kind, sessionID, dryRun, RunStatusRunning)
	if err != nil {
		return 0, err
	}

	return result.LastInsertId()
}

// CompleteRun records the completion of a run
func (s *Storage) CompleteRun(runID int64, stats RunStats) error {
	query := `
		UPDATE runs
		SET completed_at = CURRENT_TIMESTAMP,
		    found = ?,
		    balanced = ?,
		    skipped = ?,
		    errored = ?,
		    status = CASE WHEN ? > 0 THEN ? ELSE ? END
		WHERE id = ?
	`

	result, err := s.db.Exec(query,
		stats.Found,
		stats.Balanced,
		stats.Skipped,
		stats.Errored,
		stats.Errored, RunStatusCompletedWithErrors, RunStatusCompleted,
		runID,
	)
	if err != nil {
		return err
	}
	return requireRow(result, runID)
}

// FailRun marks a run as failed
func (s *Storage) FailRun(runID int64, message string) error {
	query := `
		UPDATE runs
		SET completed_at = CURRENT_TIMESTAMP,
		    status = ?,
		    error_message = ?
		WHERE id = ?
	`

	result, err := s.db.Exec(query, RunStatusFailed, message, runID)
	if err != nil {
		return err
	}
	return requireRow(result, runID)
}

const runColumns = `
	id, kind, session_id, dry_run, status, started_at, completed_at,
	found, balanced, skipped, errored, error_message
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	run := &Run{}
	var completedAt sql.NullTime
	err := row.Scan(
		&run.ID,
		&run.Kind,
		&run.SessionID,
		&run.DryRun,
		&run.Status,
		&run.StartedAt,
		&completedAt,
		&run.Found,
		&run.Balanced,
		&run.Skipped,
		&run.Errored,
		&run.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	return run, nil
}

// GetRun retrieves a run by ID
func (s *Storage) GetRun(runID int64) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %d: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns recent runs, newest first
func (s *Storage) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	runs := make([]Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// SaveAdjustment stores an adjustment and sets its ID
func (s *Storage) SaveAdjustment(adj *Adjustment) error {
	linesJSON, err := json.Marshal(adj.Lines)
	if err != nil {
		return fmt.Errorf("failed to encode lines: %w", err)
	}

	query := `
		INSERT INTO adjustments
		(run_id, invoice, status, skip_reason, base_total, lines_json, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(query,
		adj.RunID,
		adj.Invoice,
		adj.Status,
		adj.SkipReason,
		adj.BaseTotal,
		string(linesJSON),
		adj.Error,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	adj.ID = id
	return nil
}

// ListAdjustments returns a run's adjustments in insertion order
func (s *Storage) ListAdjustments(runID int64) ([]Adjustment, error) {
	query := `
		SELECT id, run_id, invoice, status, skip_reason, base_total, lines_json, error, created_at
		FROM adjustments
		WHERE run_id = ?
		ORDER BY id
	`

	rows, err := s.db.Query(query, runID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	adjustments := make([]Adjustment, 0)
	for rows.Next() {
		var adj Adjustment
		var linesJSON string
		if err := rows.Scan(
			&adj.ID,
			&adj.RunID,
			&adj.Invoice,
			&adj.Status,
			&adj.SkipReason,
			&adj.BaseTotal,
			&linesJSON,
			&adj.Error,
			&adj.CreatedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(linesJSON), &adj.Lines); err != nil {
			return nil, fmt.Errorf("adjustment %d: decode lines: %w", adj.ID, err)
		}
		adjustments = append(adjustments, adj)
	}
	return adjustments, rows.Err()
}

func requireRow(result sql.Result, runID int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %d: %w", runID, ErrNotFound)
	}
	return nil
}
