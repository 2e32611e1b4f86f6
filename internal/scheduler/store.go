package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Trigger is one scheduled firing of a named handler. Recurring
// triggers carry an interval key; one-shot triggers leave it empty and
// are deleted once claimed.
type Trigger struct {
	Name        string    `db:"name" json:"name"`
	IntervalKey string    `db:"interval_key" json:"interval_key,omitempty"`
	NextRunAt   time.Time `db:"next_run_at" json:"next_run_at"`
}

const triggerSchema = `
CREATE TABLE IF NOT EXISTS triggers (
	name         TEXT PRIMARY KEY,
	interval_key TEXT NOT NULL DEFAULT '',
	next_run_at  TIMESTAMP NOT NULL
);`

// TriggerStore persists triggers so schedules survive restarts
type TriggerStore struct {
	db *sqlx.DB
}

// NewTriggerStore creates the triggers table if needed
func NewTriggerStore(db *sqlx.DB) (*TriggerStore, error) {
	if _, err := db.Exec(triggerSchema); err != nil {
		return nil, fmt.Errorf("failed to create triggers table: %w", err)
	}
	return &TriggerStore{db: db}, nil
}

// Upsert schedules or re-schedules a trigger
func (s *TriggerStore) Upsert(ctx context.Context, trigger Trigger) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO triggers (name, interval_key, next_run_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET interval_key = excluded.interval_key, next_run_at = excluded.next_run_at`,
		trigger.Name, trigger.IntervalKey, trigger.NextRunAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to store trigger %s: %w", trigger.Name, err)
	}
	return nil
}

// Delete removes a trigger. Deleting an absent trigger is not an error.
func (s *TriggerStore) Delete(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM triggers WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete trigger %s: %w", name, err)
	}
	return nil
}

// Get loads one trigger, nil when not scheduled
func (s *TriggerStore) Get(ctx context.Context, name string) (*Trigger, error) {
	var trigger Trigger
	err := s.db.GetContext(ctx, &trigger,
		`SELECT name, interval_key, next_run_at FROM triggers WHERE name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load trigger %s: %w", name, err)
	}
	return &trigger, nil
}

// ClaimDue atomically takes every trigger due at now. Recurring
// triggers are advanced one interval from now; one-shot triggers are
// removed. The claimed triggers are returned for dispatch.
func (s *TriggerStore) ClaimDue(ctx context.Context, now time.Time) ([]Trigger, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin trigger claim: %w", err)
	}
	defer tx.Rollback()

	due := []Trigger{}
	if err := tx.SelectContext(ctx, &due,
		`SELECT name, interval_key, next_run_at FROM triggers WHERE next_run_at <= ? ORDER BY next_run_at`,
		now.UTC()); err != nil {
		return nil, fmt.Errorf("failed to select due triggers: %w", err)
	}

	for _, trigger := range due {
		every, recurring := IntervalDuration(trigger.IntervalKey)
		if recurring {
			if _, err := tx.ExecContext(ctx,
				`UPDATE triggers SET next_run_at = ? WHERE name = ?`,
				now.Add(every).UTC(), trigger.Name); err != nil {
				return nil, fmt.Errorf("failed to advance trigger %s: %w", trigger.Name, err)
			}
		} else {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM triggers WHERE name = ?`, trigger.Name); err != nil {
				return nil, fmt.Errorf("failed to consume trigger %s: %w", trigger.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit trigger claim: %w", err)
	}
	return due, nil
}
