package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/dukerupert/duesbot/internal/dispatch"
	"github.com/dukerupert/duesbot/internal/logging"
	"github.com/dukerupert/duesbot/internal/model"
)

// runRetention is how long scheduler_runs rows are kept.
const runRetention = 60 * 24 * time.Hour

// Engine is the part of ledger.Engine the scheduler drives.
type Engine interface {
	Reset(ctx context.Context) error
	RemindUnpaid(ctx context.Context) (int, error)
}

// Runs is the dedup record. *store.RunStore implements it.
type Runs interface {
	WasRun(ctx context.Context, job, windowKey string) (bool, error)
	RecordRun(ctx context.Context, job, windowKey string, at time.Time) error
	LastRun(ctx context.Context, job string) (*model.SchedulerRun, error)
	CleanupRuns(ctx context.Context, before time.Time) (int64, error)
}

// Submitter queues work. *dispatch.Loop implements it.
type Submitter interface {
	Submit(ctx context.Context, job dispatch.Job) error
}

type Config struct {
	ResetWeekday     time.Weekday
	ResetHour        int
	Location         *time.Location
	PollInterval     time.Duration
	ReminderInterval time.Duration
}

// Scheduler polls the clock and queues the weekly reset and the reminder
// sweep on the dispatch loop when they are due.
type Scheduler struct {
	mu     sync.RWMutex
	engine Engine
	runs   Runs
	loop   Submitter
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
	cancel context.CancelFunc
	done   chan struct{}
}

func New(engine Engine, runs Runs, loop Submitter, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Scheduler{
		engine: engine,
		runs:   runs,
		loop:   loop,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Start begins polling. The first poll happens immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.cfg.PollInterval)
		defer ticker.Stop()

		s.tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop stops polling and waits for the polling goroutine to exit.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	err := s.loop.Submit(ctx, dispatch.Job{
		Name: "scheduler_tick",
		Run:  func(ctx context.Context) error { return s.Evaluate(ctx, now) },
	})
	if err != nil && ctx.Err() == nil {
		s.logger.Error("queue scheduler tick", "error", err)
	}
}

// Evaluate runs whatever is due at now. It must be called from the dispatch loop.
func (s *Scheduler) Evaluate(ctx context.Context, now time.Time) error {
	return multierr.Append(
		s.checkWeeklyReset(ctx, now),
		s.checkReminder(ctx, now),
	)
}

// InResetWindow reports whether now falls in the configured reset hour.
func (s *Scheduler) InResetWindow(now time.Time) bool {
	local := now.In(s.cfg.Location)
	return local.Weekday() == s.cfg.ResetWeekday && local.Hour() == s.cfg.ResetHour
}

// WindowKey names the reset window now belongs to, e.g. "2026-W42".
func (s *Scheduler) WindowKey(now time.Time) string {
	year, week := now.In(s.cfg.Location).ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

func (s *Scheduler) checkWeeklyReset(ctx context.Context, now time.Time) error {
	if !s.InResetWindow(now) {
		return nil
	}
	logger := logging.FromContext(ctx, s.logger)

	key := s.WindowKey(now)
	done, err := s.runs.WasRun(ctx, model.JobWeeklyReset, key)
	if err != nil {
		return fmt.Errorf("check weekly reset: %w", err)
	}
	if done {
		return nil
	}

	if err := s.engine.Reset(ctx); err != nil {
		return fmt.Errorf("weekly reset %s: %w", key, err)
	}
	if err := s.runs.RecordRun(ctx, model.JobWeeklyReset, key, now); err != nil {
		return fmt.Errorf("record weekly reset: %w", err)
	}
	logger.Info("weekly reset done", "window", key)

	if n, err := s.runs.CleanupRuns(ctx, now.Add(-runRetention)); err != nil {
		logger.Warn("cleanup scheduler runs", "error", err)
	} else if n > 0 {
		logger.Debug("cleaned up scheduler runs", "count", n)
	}
	return nil
}

func (s *Scheduler) checkReminder(ctx context.Context, now time.Time) error {
	last, err := s.runs.LastRun(ctx, model.JobReminder)
	if err != nil {
		return fmt.Errorf("check reminder: %w", err)
	}
	if last != nil && now.Sub(last.RanAt) < s.cfg.ReminderInterval {
		return nil
	}

	sent, err := s.engine.RemindUnpaid(ctx)
	if err != nil {
		logging.FromContext(ctx, s.logger).Warn("some reminders not delivered",
			"sent", sent,
			"failed", len(multierr.Errors(err)),
			"error", err,
		)
	}
	if err := s.runs.RecordRun(ctx, model.JobReminder, now.UTC().Format(time.RFC3339), now); err != nil {
		return fmt.Errorf("record reminder: %w", err)
	}
	return nil
}
