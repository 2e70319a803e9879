// Package dispatch runs gateway events and timer jobs one at a time.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/duesbot/internal/logging"
)

// ErrStopped is returned by Submit once the loop has shut down.
var ErrStopped = errors.New("dispatch loop stopped")

// Job is a unit of work. Jobs never overlap.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Loop is a single-consumer job queue.
type Loop struct {
	queue  chan Job
	done   chan struct{}
	logger *slog.Logger
}

func New(buffer int, logger *slog.Logger) *Loop {
	return &Loop{
		queue:  make(chan Job, buffer),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Submit enqueues job, blocking while the queue is full.
func (l *Loop) Submit(ctx context.Context, job Job) error {
	select {
	case <-l.done:
		return ErrStopped
	default:
	}

	select {
	case l.queue <- job:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes jobs until ctx is cancelled. Jobs still queued at that point
// are dropped. Each job runs with a context carrying a logger tagged with a
// fresh transaction id.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)

	for {
		select {
		case <-ctx.Done():
			if n := len(l.queue); n > 0 {
				l.logger.Warn("dropping queued jobs on shutdown", "count", n)
			}
			return nil
		case job := <-l.queue:
			l.run(ctx, job)
		}
	}
}

func (l *Loop) run(ctx context.Context, job Job) {
	logger := l.logger.With("job", job.Name, "txn", uuid.NewString())
	ctx = logging.WithContext(ctx, logger)

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("job panicked", "panic", r)
		}
	}()

	if err := job.Run(ctx); err != nil {
		logger.Error("job failed", "error", err, "duration", time.Since(start))
		return
	}
	logger.Debug("job done", "duration", time.Since(start))
}
