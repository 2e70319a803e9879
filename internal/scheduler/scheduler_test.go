package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/duesbot/internal/chat"
	"github.com/dukerupert/duesbot/internal/database"
	"github.com/dukerupert/duesbot/internal/dispatch"
	"github.com/dukerupert/duesbot/internal/store"
)

type fakeEngine struct {
	mu        sync.Mutex
	resets    int
	reminders int
	resetErr  error
	remindErr error
}

func (f *fakeEngine) Reset(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resetErr != nil {
		return f.resetErr
	}
	f.resets++
	return nil
}

func (f *fakeEngine) RemindUnpaid(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reminders++
	return 1, f.remindErr
}

func (f *fakeEngine) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets, f.reminders
}

// inlineLoop runs submitted jobs immediately on the caller's goroutine.
type inlineLoop struct{}

func (inlineLoop) Submit(ctx context.Context, job dispatch.Job) error {
	return job.Run(ctx)
}

func newTestScheduler(t *testing.T, eng *fakeEngine) *Scheduler {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := Config{
		ResetWeekday:     time.Monday,
		ResetHour:        0,
		Location:         time.UTC,
		PollInterval:     5 * time.Minute,
		ReminderInterval: 12 * time.Hour,
	}
	return New(eng, store.NewRunStore(db), inlineLoop{}, cfg, slog.New(slog.DiscardHandler))
}

func TestInResetWindow(t *testing.T) {
	s := newTestScheduler(t, &fakeEngine{})

	tests := []struct {
		at   time.Time
		want bool
	}{
		{time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), true},   // Monday 00:00
		{time.Date(2026, 10, 19, 0, 59, 59, 0, time.UTC), true}, // Monday 00:59
		{time.Date(2026, 10, 19, 1, 0, 0, 0, time.UTC), false},  // Monday 01:00
		{time.Date(2026, 10, 18, 23, 59, 0, 0, time.UTC), false}, // Sunday
		{time.Date(2026, 10, 20, 0, 10, 0, 0, time.UTC), false},  // Tuesday
	}
	for _, tt := range tests {
		if got := s.InResetWindow(tt.at); got != tt.want {
			t.Errorf("InResetWindow(%v) = %v, want %v", tt.at, got, tt.want)
		}
	}
}

func TestInResetWindowUsesLocation(t *testing.T) {
	s := newTestScheduler(t, &fakeEngine{})
	s.cfg.Location = time.FixedZone("BRT", -3*60*60)

	// Monday 00:30 in UTC-3 is Monday 03:30 UTC.
	if !s.InResetWindow(time.Date(2026, 10, 19, 3, 30, 0, 0, time.UTC)) {
		t.Error("expected window in configured zone")
	}
	if s.InResetWindow(time.Date(2026, 10, 19, 0, 30, 0, 0, time.UTC)) {
		t.Error("UTC midnight is Sunday evening in UTC-3")
	}
}

func TestWeeklyResetFiresOncePerWindow(t *testing.T) {
	eng := &fakeEngine{}
	s := newTestScheduler(t, eng)
	ctx := context.Background()

	monday := time.Date(2026, 10, 19, 0, 2, 0, 0, time.UTC)
	for _, at := range []time.Time{monday, monday.Add(5 * time.Minute), monday.Add(50 * time.Minute)} {
		if err := s.Evaluate(ctx, at); err != nil {
			t.Fatalf("evaluate %v: %v", at, err)
		}
	}
	if resets, _ := eng.counts(); resets != 1 {
		t.Errorf("resets = %d, want 1", resets)
	}

	// A restarted scheduler sharing the same run records stays quiet.
	s2 := New(eng, s.runs, inlineLoop{}, s.cfg, s.logger)
	if err := s2.Evaluate(ctx, monday.Add(10*time.Minute)); err != nil {
		t.Fatalf("evaluate after restart: %v", err)
	}
	if resets, _ := eng.counts(); resets != 1 {
		t.Errorf("resets after restart = %d, want 1", resets)
	}

	// Next week's window fires again.
	if err := s.Evaluate(ctx, monday.AddDate(0, 0, 7)); err != nil {
		t.Fatalf("evaluate next week: %v", err)
	}
	if resets, _ := eng.counts(); resets != 2 {
		t.Errorf("resets = %d, want 2", resets)
	}
}

func TestWeeklyResetFailureIsNotRecorded(t *testing.T) {
	eng := &fakeEngine{resetErr: errors.New("disk full")}
	s := newTestScheduler(t, eng)
	ctx := context.Background()
	monday := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

	if err := s.Evaluate(ctx, monday); err == nil {
		t.Fatal("expected reset error")
	}
	done, err := s.runs.WasRun(ctx, "weekly_reset", s.WindowKey(monday))
	if err != nil {
		t.Fatalf("was run: %v", err)
	}
	if done {
		t.Error("failed reset recorded as done")
	}

	eng.mu.Lock()
	eng.resetErr = nil
	eng.mu.Unlock()
	if err := s.Evaluate(ctx, monday.Add(5*time.Minute)); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if resets, _ := eng.counts(); resets != 1 {
		t.Errorf("resets = %d, want 1", resets)
	}
}

func TestReminderInterval(t *testing.T) {
	eng := &fakeEngine{}
	s := newTestScheduler(t, eng)
	ctx := context.Background()
	start := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

	steps := []struct {
		at   time.Time
		want int
	}{
		{start, 1},
		{start.Add(5 * time.Minute), 1},
		{start.Add(11 * time.Hour), 1},
		{start.Add(12 * time.Hour), 2},
		{start.Add(13 * time.Hour), 2},
		{start.Add(24 * time.Hour), 3},
	}
	for _, st := range steps {
		if err := s.Evaluate(ctx, st.at); err != nil {
			t.Fatalf("evaluate %v: %v", st.at, err)
		}
		if _, got := eng.counts(); got != st.want {
			t.Errorf("after %v reminders = %d, want %d", st.at, got, st.want)
		}
	}
}

func TestReminderDeliveryFailuresAreNotFatal(t *testing.T) {
	eng := &fakeEngine{remindErr: &chat.DeliveryError{Op: "dm", Target: "1", Err: errors.New("blocked")}}
	s := newTestScheduler(t, eng)
	ctx := context.Background()
	at := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

	if err := s.Evaluate(ctx, at); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if err := s.Evaluate(ctx, at.Add(time.Hour)); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if _, got := eng.counts(); got != 1 {
		t.Errorf("reminders = %d, want 1 (sweep must still be recorded)", got)
	}
}

func TestStartStop(t *testing.T) {
	eng := &fakeEngine{}
	s := newTestScheduler(t, eng)
	s.cfg.PollInterval = 10 * time.Millisecond
	s.now = func() time.Time { return time.Date(2026, 10, 19, 0, 1, 0, 0, time.UTC) }

	s.Start(context.Background())
	deadline := time.After(time.Second)
	for {
		resets, reminders := eng.counts()
		if resets == 1 && reminders == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("resets/reminders = %d/%d, want 1/1", resets, reminders)
		case <-time.After(5 * time.Millisecond):
		}
	}
	s.Stop()

	if resets, reminders := eng.counts(); resets != 1 || reminders != 1 {
		t.Errorf("duplicate runs: resets/reminders = %d/%d", resets, reminders)
	}
}
