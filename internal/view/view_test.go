package view

import (
	"strings"
	"testing"

	"github.com/dukerupert/duesbot/internal/model"
)

func ledgerOf(members ...model.Member) model.Ledger {
	l := model.DefaultLedger(350)
	l.Members = members
	l.TotalCollected = l.PaidSum()
	return l
}

func TestRankingStableOnTies(t *testing.T) {
	l := ledgerOf(
		model.Member{ID: "A", Paid: true, AmountPaid: 100},
		model.Member{ID: "B", Paid: true, AmountPaid: 200},
		model.Member{ID: "C", Paid: true, AmountPaid: 100},
	)

	got := Ranking(l, RankingSize)
	want := []string{"B", "A", "C"}
	if len(got) != len(want) {
		t.Fatalf("got %d members, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("rank %d = %s, want %s", i+1, got[i].ID, want[i])
		}
	}
}

func TestRankingTruncatesAndDoesNotMutate(t *testing.T) {
	l := ledgerOf(
		model.Member{ID: "A", Paid: true, AmountPaid: 100},
		model.Member{ID: "B", Paid: true, AmountPaid: 400},
		model.Member{ID: "C", Paid: true, AmountPaid: 300},
		model.Member{ID: "D", Paid: true, AmountPaid: 200},
	)

	got := Ranking(l, 3)
	if len(got) != 3 || got[0].ID != "B" || got[1].ID != "C" || got[2].ID != "D" {
		t.Errorf("ranking = %+v", got)
	}
	if l.Members[0].ID != "A" {
		t.Error("ranking reordered the ledger's members")
	}
}

func TestUnpaidMentions(t *testing.T) {
	l := ledgerOf(
		model.Member{ID: "1"},
		model.Member{ID: "2", Paid: true, AmountPaid: 350},
		model.Member{ID: "3"},
	)

	got := UnpaidMentions(l)
	if len(got) != 2 || got[0] != "<@1>" || got[1] != "<@3>" {
		t.Errorf("unpaid mentions = %v", got)
	}
}

func TestSummaryCounts(t *testing.T) {
	l := ledgerOf(
		model.Member{ID: "1", DisplayName: "ana", Paid: true, AmountPaid: 350},
		model.Member{ID: "2", DisplayName: "bruno"},
	)

	s := Summary(l, "folhas")
	for _, want := range []string{
		"👥 Members: 2",
		"💰 Paid: 1",
		"⏳ Unpaid: 1",
		"🧾 Collected: 350 folhas",
		"#1 ana - 350 folhas",
		"#2 bruno - 0 folhas",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("summary missing %q:\n%s", want, s)
		}
	}
	if strings.Contains(s, NoPaymentsText) {
		t.Error("placeholder shown although someone paid")
	}
}

func TestSummaryPlaceholder(t *testing.T) {
	l := ledgerOf(model.Member{ID: "1"}, model.Member{ID: "2"})

	s := Summary(l, "folhas")
	if !strings.HasSuffix(s, NoPaymentsText) {
		t.Errorf("expected placeholder, got:\n%s", s)
	}
	if strings.Contains(s, "#1") {
		t.Error("ranking rendered with no payments")
	}
	if !strings.Contains(s, "⏳ Unpaid: 2") {
		t.Errorf("unpaid count wrong:\n%s", s)
	}
}

func TestSummaryFallsBackToMention(t *testing.T) {
	l := ledgerOf(model.Member{ID: "9", Paid: true, AmountPaid: 350})

	if s := Summary(l, "folhas"); !strings.Contains(s, "#1 <@9> - 350 folhas") {
		t.Errorf("expected mention fallback:\n%s", s)
	}
}
