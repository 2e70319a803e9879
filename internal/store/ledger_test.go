package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dukerupert/duesbot/internal/database"
	"github.com/dukerupert/duesbot/internal/model"
)

func setupLedgerTestStore(t *testing.T) (*LedgerStore, *SQLiteKV) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	kv := NewSQLiteKV(db)
	return NewLedgerStore(kv, model.DefaultWeeklyTarget), kv
}

func TestLoadMissingReturnsDefault(t *testing.T) {
	ls, _ := setupLedgerTestStore(t)

	l, err := ls.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if l.WeeklyTarget != 350 {
		t.Errorf("weekly target = %d, want 350", l.WeeklyTarget)
	}
	if len(l.Members) != 0 || l.TotalCollected != 0 {
		t.Errorf("expected empty ledger, got %+v", l)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ls, _ := setupLedgerTestStore(t)
	ctx := context.Background()

	want := model.Ledger{
		WeeklyTarget: 400,
		Members: []model.Member{
			{ID: "10", DisplayName: "ana", Paid: true, AmountPaid: 400},
			{ID: "20", DisplayName: "bruno"},
		},
		TotalCollected: 400,
	}
	if err := ls.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := ls.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.WeeklyTarget != 400 || got.TotalCollected != 400 || len(got.Members) != 2 {
		t.Fatalf("got %+v", got)
	}
	if got.Members[0] != want.Members[0] || got.Members[1] != want.Members[1] {
		t.Errorf("members = %+v, want %+v", got.Members, want.Members)
	}

	// Overwrite, not append.
	want.Members = want.Members[:1]
	if err := ls.Save(ctx, want); err != nil {
		t.Fatalf("second save: %v", err)
	}
	got, err = ls.Load(ctx)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if len(got.Members) != 1 {
		t.Errorf("expected 1 member after overwrite, got %d", len(got.Members))
	}
}

func TestLoadCorruptIsPersistenceError(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "{not json"},
		{"wrong type", `{"weekly_target":"lots","members":[],"total_collected":0}`},
		{"total mismatch", `{"weekly_target":350,"members":[{"id":"1","paid":true,"amount_paid":350}],"total_collected":0}`},
		{"duplicate member", `{"weekly_target":350,"members":[{"id":"1"},{"id":"1"}],"total_collected":0}`},
		{"unknown field", `{"weekly_target":350,"members":[],"total_collected":0,"extra":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ls, kv := setupLedgerTestStore(t)
			ctx := context.Background()
			if err := kv.Write(ctx, LedgerKey, []byte(tt.data)); err != nil {
				t.Fatalf("write: %v", err)
			}

			_, err := ls.Load(ctx)
			var perr *PersistenceError
			if !errors.As(err, &perr) {
				t.Fatalf("expected PersistenceError, got %v", err)
			}
			if perr.Op != "load" {
				t.Errorf("op = %q, want load", perr.Op)
			}
		})
	}
}

func TestSaveRejectsInvalidLedger(t *testing.T) {
	ls, _ := setupLedgerTestStore(t)

	bad := model.Ledger{WeeklyTarget: 350, Members: []model.Member{{ID: "1", Paid: true, AmountPaid: 350}}}
	err := ls.Save(context.Background(), bad)
	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if !strings.Contains(err.Error(), "does not match") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSaveWriteFailure(t *testing.T) {
	kv := NewMemoryKV()
	kv.WriteErr = errors.New("disk full")
	ls := NewLedgerStore(kv, 350)

	err := ls.Save(context.Background(), model.DefaultLedger(350))
	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if !errors.Is(err, kv.WriteErr) {
		t.Errorf("expected wrapped write error, got %v", err)
	}
}
