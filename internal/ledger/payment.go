package ledger

import (
	"context"

	"github.com/dukerupert/duesbot/internal/chat"
	"github.com/dukerupert/duesbot/internal/model"
	"github.com/dukerupert/duesbot/internal/override"
	"github.com/dukerupert/duesbot/internal/view"
)

// PaymentEvent is a message posted somewhere in the guild.
type PaymentEvent struct {
	ChannelID      string
	HasAttachments bool
	// Mentions are the mentioned user ids in message order.
	Mentions []string
	Text     string
}

// Credit is one member credited by a payment event.
type Credit struct {
	MemberID string
	Amount   int64
	// TopUp is set when the member had already paid this week.
	TopUp bool
}

type Outcome struct {
	Target   int64
	Credited []Credit
	// Unknown lists mentioned ids with no ledger record.
	Unknown []string
}

// Accepts reports whether ev is a proof of payment the engine acts on.
func (e *Engine) Accepts(ev PaymentEvent) bool {
	return ev.ChannelID == e.cfg.Channels.Proof && ev.HasAttachments && len(ev.Mentions) > 0
}

// HandlePayment credits every mentioned member that is on the ledger. Each
// credit is persisted before any channel output for it. A failed save rolls
// that credit back and stops the event; delivery failures never do.
func (e *Engine) HandlePayment(ctx context.Context, ev PaymentEvent) (Outcome, error) {
	if !e.Accepts(ev) {
		return Outcome{}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	out := Outcome{Target: override.Target(ev.Text, e.ledger.WeeklyTarget)}
	seen := make(map[string]struct{}, len(ev.Mentions))

	for _, id := range ev.Mentions {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		idx := e.ledger.IndexOf(id)
		if idx < 0 {
			out.Unknown = append(out.Unknown, id)
			continue
		}

		before := e.ledger.Members[idx]
		beforeTotal := e.ledger.TotalCollected
		credit := applyCredit(&e.ledger, idx, out.Target)

		if err := e.store.Save(ctx, e.ledger); err != nil {
			e.ledger.Members[idx] = before
			e.ledger.TotalCollected = beforeTotal
			e.log(ctx).Error("persist payment, credit rolled back", "member", id, "amount", out.Target, "error", err)
			return out, err
		}
		e.published()
		out.Credited = append(out.Credited, credit)

		e.log(ctx).Info("payment credited",
			"member", id,
			"amount", credit.Amount,
			"top_up", credit.TopUp,
			"member_total", e.ledger.Members[idx].AmountPaid,
			"total_collected", e.ledger.TotalCollected,
		)

		e.announceCredit(ctx, credit)
	}

	if len(out.Credited) == 0 {
		e.log(ctx).Debug("payment proof matched no registered member", "mentions", ev.Mentions)
	}
	return out, nil
}

// applyCredit moves the member at idx to PAID, or tops up an existing payment.
func applyCredit(l *model.Ledger, idx int, amount int64) Credit {
	m := &l.Members[idx]
	c := Credit{MemberID: m.ID, Amount: amount, TopUp: m.Paid}
	if m.Paid {
		m.AmountPaid += amount
	} else {
		m.Paid = true
		m.AmountPaid = amount
	}
	l.TotalCollected += amount
	return c
}

// announceCredit runs the channel side of one credit, in order: paid-channel
// confirmation, roster cleanup, summary replacement, then the member's DM.
func (e *Engine) announceCredit(ctx context.Context, c Credit) {
	mention := chat.Mention(c.MemberID)
	e.post(ctx, e.cfg.Channels.Paid, view.PaidConfirmation(mention, c.Amount, e.cfg.Unit))
	e.removeRosterEntries(ctx, c.MemberID)
	e.replaceSummary(ctx, e.ledger)
	e.dm(ctx, c.MemberID, view.PaymentDM(c.Amount, e.cfg.Unit))
}
