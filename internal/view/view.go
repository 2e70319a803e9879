// Package view renders the ledger into the texts posted to the paid, unpaid
// and summary channels and sent as direct messages.
package view

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dukerupert/duesbot/internal/chat"
	"github.com/dukerupert/duesbot/internal/model"
)

// RankingSize is how many members the summary ranks.
const RankingSize = 3

// NoPaymentsText replaces the ranking while nobody has paid this week.
const NoPaymentsText = "No payments recorded yet."

// UnpaidMentions returns a mention per unpaid member, in member order.
func UnpaidMentions(l model.Ledger) []string {
	var out []string
	for _, m := range l.Members {
		if !m.Paid {
			out = append(out, chat.Mention(m.ID))
		}
	}
	return out
}

// RosterLine is the unpaid-roster message for one member.
func RosterLine(mention string) string {
	return fmt.Sprintf("❌ %s has not paid this week's dues yet.", mention)
}

// Ranking orders members by amount paid, highest first, keeping member order
// among equal amounts, and keeps the first n.
func Ranking(l model.Ledger, n int) []model.Member {
	ranked := slices.Clone(l.Members)
	slices.SortStableFunc(ranked, func(a, b model.Member) int {
		switch {
		case a.AmountPaid > b.AmountPaid:
			return -1
		case a.AmountPaid < b.AmountPaid:
			return 1
		}
		return 0
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// Summary renders the aggregate counts and the top contributors.
func Summary(l model.Ledger, unit string) string {
	var b strings.Builder
	b.WriteString("📊 **Weekly Summary**\n\n")
	fmt.Fprintf(&b, "👥 Members: %d\n", len(l.Members))
	fmt.Fprintf(&b, "💰 Paid: %d\n", l.PaidCount())
	fmt.Fprintf(&b, "⏳ Unpaid: %d\n", l.UnpaidCount())
	fmt.Fprintf(&b, "🧾 Collected: %d %s\n\n", l.TotalCollected, unit)
	b.WriteString("🏆 **Top 3 contributors:**\n")

	if l.PaidCount() == 0 {
		b.WriteString(NoPaymentsText)
		return b.String()
	}

	lines := make([]string, 0, RankingSize)
	for i, m := range Ranking(l, RankingSize) {
		lines = append(lines, fmt.Sprintf("#%d %s - %d %s", i+1, displayName(m), m.AmountPaid, unit))
	}
	b.WriteString(strings.Join(lines, "\n"))
	return b.String()
}

// PaidConfirmation is posted to the paid channel for each credited member.
func PaidConfirmation(mention string, amount int64, unit string) string {
	return fmt.Sprintf("✅ %s paid %d %s!", mention, amount, unit)
}

func PaymentDM(amount int64, unit string) string {
	return fmt.Sprintf("✅ Thank you! Your payment of %d %s was confirmed.", amount, unit)
}

func ReminderDM() string {
	return "🚨 Reminder: you have not paid this week's dues yet. Please post your proof of payment in the proof channel!"
}

// RegisterReply answers the register command.
func RegisterReply(added, total int) string {
	if added == 0 {
		return fmt.Sprintf("✅ No new members. %d members registered.", total)
	}
	return fmt.Sprintf("✅ Added %d member(s) and listed them in the unpaid channel. %d members registered.", added, total)
}

func displayName(m model.Member) string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return chat.Mention(m.ID)
}
