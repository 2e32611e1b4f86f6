package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Entry statuses
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusWarning = "warning"
	StatusError   = "error"
)

// Run origins recorded with each entry
const (
	OriginManual   = "manual"
	OriginSchedule = "schedule"
	OriginWatchdog = "watchdog"
	OriginLicense  = "license"
)

// maxEntries caps the history; the oldest entries are pruned on append
const maxEntries = 100

// Stats are the per-run counters
type Stats struct {
	TotalRows     int `db:"total_rows" json:"total_rows"`
	Processed     int `db:"processed" json:"processed"`
	Updated       int `db:"updated" json:"updated"`
	Skipped       int `db:"skipped" json:"skipped"`
	NotFound      int `db:"not_found" json:"not_found"`
	MissingZeroed int `db:"missing_zeroed" json:"missing_zeroed"`
	MissingHidden int `db:"missing_hidden" json:"missing_hidden"`
	Restored      int `db:"restored" json:"restored"`
	Errors        int `db:"errors" json:"errors"`
}

// Entry is one run log record
type Entry struct {
	ID         int64     `db:"id" json:"id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	Origin     string    `db:"origin" json:"origin"`
	Status     string    `db:"status" json:"status"`
	Message    string    `db:"message" json:"message"`
	DurationMS int64     `db:"duration_ms" json:"duration_ms"`
	Stats
}

const schema = `
CREATE TABLE IF NOT EXISTS run_log (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at     TIMESTAMP NOT NULL,
	origin         TEXT NOT NULL,
	status         TEXT NOT NULL,
	message        TEXT NOT NULL DEFAULT '',
	duration_ms    INTEGER NOT NULL DEFAULT 0,
	total_rows     INTEGER NOT NULL DEFAULT 0,
	processed      INTEGER NOT NULL DEFAULT 0,
	updated        INTEGER NOT NULL DEFAULT 0,
	skipped        INTEGER NOT NULL DEFAULT 0,
	not_found      INTEGER NOT NULL DEFAULT 0,
	missing_zeroed INTEGER NOT NULL DEFAULT 0,
	missing_hidden INTEGER NOT NULL DEFAULT 0,
	restored       INTEGER NOT NULL DEFAULT 0,
	errors         INTEGER NOT NULL DEFAULT 0
);`

// Store is the capped, database-backed run history
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates the run log table if needed
func NewStore(db *sqlx.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create run log table: %w", err)
	}
	return &Store{db: db, logger: logger.With(slog.String("component", "run_log"))}, nil
}

// Append records one entry and prunes history beyond the cap
func (s *Store) Append(ctx context.Context, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin run log append: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx,
		`INSERT INTO run_log
			(created_at, origin, status, message, duration_ms,
			 total_rows, processed, updated, skipped, not_found, missing_zeroed, missing_hidden, restored, errors)
		 VALUES
			(:created_at, :origin, :status, :message, :duration_ms,
			 :total_rows, :processed, :updated, :skipped, :not_found, :missing_zeroed, :missing_hidden, :restored, :errors)`,
		entry); err != nil {
		return fmt.Errorf("failed to append run log entry: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM run_log WHERE id NOT IN (SELECT id FROM run_log ORDER BY id DESC LIMIT ?)`,
		maxEntries); err != nil {
		return fmt.Errorf("failed to prune run log: %w", err)
	}

	return tx.Commit()
}

// Recent returns the newest entries, newest first. A status filter of
// "" returns all statuses. limit <= 0 means the full capped history.
func (s *Store) Recent(ctx context.Context, limit int, status string) ([]Entry, error) {
	if limit <= 0 || limit > maxEntries {
		limit = maxEntries
	}

	entries := []Entry{}
	var err error
	if status == "" {
		err = s.db.SelectContext(ctx, &entries,
			`SELECT * FROM run_log ORDER BY id DESC LIMIT ?`, limit)
	} else {
		err = s.db.SelectContext(ctx, &entries,
			`SELECT * FROM run_log WHERE status = ? ORDER BY id DESC LIMIT ?`, status, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run log: %w", err)
	}
	return entries, nil
}

// Aggregate summarizes the retained history for reporting
type Aggregate struct {
	Total           int        `json:"total"`
	Success         int        `json:"success"`
	Partial         int        `json:"partial"`
	Errors          int        `json:"errors"`
	ProductsUpdated int        `json:"products_updated"`
	LastSuccessAt   *time.Time `json:"last_success_at,omitempty"`
}

// Aggregate computes totals over the retained entries
func (s *Store) Aggregate(ctx context.Context) (*Aggregate, error) {
	var row struct {
		Total           int `db:"total"`
		Success         int `db:"success"`
		Partial         int `db:"partial"`
		Errors          int `db:"errors"`
		ProductsUpdated int `db:"products_updated"`
	}
	err := s.db.GetContext(ctx, &row,
		`SELECT
			COUNT(*) AS total,
			COALESCE(SUM(status = 'success'), 0) AS success,
			COALESCE(SUM(status = 'partial'), 0) AS partial,
			COALESCE(SUM(status = 'error'), 0) AS errors,
			COALESCE(SUM(updated), 0) AS products_updated
		 FROM run_log`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate run log: %w", err)
	}

	agg := &Aggregate{
		Total:           row.Total,
		Success:         row.Success,
		Partial:         row.Partial,
		Errors:          row.Errors,
		ProductsUpdated: row.ProductsUpdated,
	}

	var lastSuccess time.Time
	err = s.db.GetContext(ctx, &lastSuccess,
		`SELECT created_at FROM run_log WHERE status = ? ORDER BY id DESC LIMIT 1`,
		StatusSuccess)
	switch {
	case err == nil:
		agg.LastSuccessAt = &lastSuccess
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, fmt.Errorf("failed to find last successful run: %w", err)
	}
	return agg, nil
}

// Latest returns the newest entry, or nil when the log is empty
func (s *Store) Latest(ctx context.Context) (*Entry, error) {
	entries, err := s.Recent(ctx, 1, "")
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// Clear empties the history
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM run_log`); err != nil {
		return fmt.Errorf("failed to clear run log: %w", err)
	}
	return nil
}
