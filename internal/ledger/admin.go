package ledger

import (
	"context"
	"strings"

	"go.uber.org/multierr"

	"github.com/dukerupert/duesbot/internal/model"
	"github.com/dukerupert/duesbot/internal/view"
)

// Candidate is a guild member to put on the ledger.
type Candidate struct {
	ID          string
	DisplayName string
}

// AddMembers appends candidates that are not on the ledger yet as unpaid.
// Members already present keep their record untouched. The unpaid roster is
// rebuilt afterwards either way.
func (e *Engine) AddMembers(ctx context.Context, candidates []Candidate) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	before := len(e.ledger.Members)
	for _, c := range candidates {
		id := strings.TrimSpace(c.ID)
		if id == "" || e.ledger.IndexOf(id) >= 0 {
			continue
		}
		e.ledger.Members = append(e.ledger.Members, model.Member{ID: id, DisplayName: c.DisplayName})
	}
	added := len(e.ledger.Members) - before

	if added > 0 {
		if err := e.store.Save(ctx, e.ledger); err != nil {
			e.ledger.Members = e.ledger.Members[:before]
			e.log(ctx).Error("persist new members, rolled back", "count", added, "error", err)
			return 0, err
		}
		e.published()
		e.log(ctx).Info("members registered", "added", added, "total", len(e.ledger.Members))
	}

	e.rebuildRoster(ctx, e.ledger)
	return added, nil
}

// Reset starts a new week: every member back to unpaid, total to zero, and
// all three channels rebuilt from scratch.
func (e *Engine) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	previous := e.ledger.Clone()
	for i := range e.ledger.Members {
		e.ledger.Members[i].Paid = false
		e.ledger.Members[i].AmountPaid = 0
	}
	e.ledger.TotalCollected = 0

	if err := e.store.Save(ctx, e.ledger); err != nil {
		e.ledger = previous
		e.log(ctx).Error("persist weekly reset, rolled back", "error", err)
		return err
	}
	e.published()
	e.log(ctx).Info("weekly reset", "members", len(e.ledger.Members), "previous_total", previous.TotalCollected)

	for _, ch := range []string{e.cfg.Channels.Paid, e.cfg.Channels.Unpaid, e.cfg.Channels.Summary} {
		if err := e.chat.PurgeRecent(ctx, ch, e.cfg.Limits.Purge); err != nil {
			e.log(ctx).Error("purge channel", "channel", ch, "error", err)
		}
	}
	for _, mention := range view.UnpaidMentions(e.ledger) {
		e.post(ctx, e.cfg.Channels.Unpaid, view.RosterLine(mention))
	}
	e.post(ctx, e.cfg.Channels.Summary, view.Summary(e.ledger, e.cfg.Unit))
	return nil
}

// RemindUnpaid sends a reminder DM to every unpaid member. A failed delivery
// does not stop the sweep; all failures come back combined.
func (e *Engine) RemindUnpaid(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var (
		sent int
		errs error
	)
	for _, m := range e.ledger.Members {
		if m.Paid {
			continue
		}
		if err := e.chat.SendDirectMessage(ctx, m.ID, view.ReminderDM()); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		sent++
	}

	e.log(ctx).Info("reminder sweep", "sent", sent, "failed", len(multierr.Errors(errs)))
	return sent, errs
}
