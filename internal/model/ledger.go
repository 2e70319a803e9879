package model

import (
	"errors"
	"fmt"
)

// DefaultWeeklyTarget is the dues amount credited per proof when no override is given.
const DefaultWeeklyTarget int64 = 350

type Member struct {
	ID          string `json:"id" yaml:"id"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	Paid        bool   `json:"paid" yaml:"paid"`
	AmountPaid  int64  `json:"amount_paid" yaml:"amount_paid"`
}

// Ledger is the current week's dues state. Members keep insertion order.
type Ledger struct {
	WeeklyTarget   int64    `json:"weekly_target" yaml:"weekly_target"`
	Members        []Member `json:"members" yaml:"members"`
	TotalCollected int64    `json:"total_collected" yaml:"total_collected"`
}

// DefaultLedger returns an empty ledger. A non-positive target falls back to DefaultWeeklyTarget.
func DefaultLedger(target int64) Ledger {
	if target <= 0 {
		target = DefaultWeeklyTarget
	}
	return Ledger{WeeklyTarget: target, Members: []Member{}}
}

// Clone returns a deep copy safe to hand to readers outside the engine.
func (l Ledger) Clone() Ledger {
	members := make([]Member, len(l.Members))
	copy(members, l.Members)
	l.Members = members
	return l
}

// IndexOf returns the position of the member with the given id, or -1.
func (l *Ledger) IndexOf(id string) int {
	for i := range l.Members {
		if l.Members[i].ID == id {
			return i
		}
	}
	return -1
}

func (l Ledger) PaidCount() int {
	n := 0
	for _, m := range l.Members {
		if m.Paid {
			n++
		}
	}
	return n
}

func (l Ledger) UnpaidCount() int {
	return len(l.Members) - l.PaidCount()
}

// PaidSum recomputes the total from member records.
func (l Ledger) PaidSum() int64 {
	var sum int64
	for _, m := range l.Members {
		if m.Paid {
			sum += m.AmountPaid
		}
	}
	return sum
}

// Validate checks the invariants a persisted ledger must satisfy.
func (l Ledger) Validate() error {
	if l.WeeklyTarget <= 0 {
		return fmt.Errorf("weekly target must be positive, got %d", l.WeeklyTarget)
	}
	if l.TotalCollected < 0 {
		return fmt.Errorf("total collected must not be negative, got %d", l.TotalCollected)
	}
	seen := make(map[string]struct{}, len(l.Members))
	for _, m := range l.Members {
		if m.ID == "" {
			return errors.New("member with empty id")
		}
		if _, ok := seen[m.ID]; ok {
			return fmt.Errorf("duplicate member %s", m.ID)
		}
		seen[m.ID] = struct{}{}
		if m.AmountPaid < 0 {
			return fmt.Errorf("member %s has negative amount %d", m.ID, m.AmountPaid)
		}
		if !m.Paid && m.AmountPaid != 0 {
			return fmt.Errorf("unpaid member %s has amount %d", m.ID, m.AmountPaid)
		}
	}
	if sum := l.PaidSum(); sum != l.TotalCollected {
		return fmt.Errorf("total collected %d does not match paid sum %d", l.TotalCollected, sum)
	}
	return nil
}
