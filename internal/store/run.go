package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/duesbot/internal/model"
)

// RunStore records scheduled job executions so a window fires at most once,
// including across restarts.
type RunStore struct {
	db *sql.DB
}

func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

func (s *RunStore) WasRun(ctx context.Context, job, windowKey string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scheduler_runs WHERE job = ? AND window_key = ?`,
		job, windowKey,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check scheduler run: %w", err)
	}
	return count > 0, nil
}

// RecordRun marks the window as done. Recording the same window twice is a no-op.
func (s *RunStore) RecordRun(ctx context.Context, job, windowKey string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO scheduler_runs (job, window_key, ran_at) VALUES (?, ?, ?)`,
		job, windowKey, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record scheduler run: %w", err)
	}
	return nil
}

// LastRun returns the most recent run of job, or nil if it never ran.
func (s *RunStore) LastRun(ctx context.Context, job string) (*model.SchedulerRun, error) {
	var r model.SchedulerRun
	err := s.db.QueryRowContext(ctx,
		`SELECT id, job, window_key, ran_at FROM scheduler_runs WHERE job = ? ORDER BY ran_at DESC, id DESC LIMIT 1`,
		job,
	).Scan(&r.ID, &r.Job, &r.WindowKey, &r.RanAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query last scheduler run: %w", err)
	}
	return &r, nil
}

// CleanupRuns deletes run records older than before.
func (s *RunStore) CleanupRuns(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduler_runs WHERE ran_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup scheduler runs: %w", err)
	}
	return res.RowsAffected()
}
