package store

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/dukerupert/duesbot/internal/model"
)

// legacyDocument is the meta_data.json layout written by the first version of the bot.
type legacyDocument struct {
	WeeklyTarget *int64         `json:"meta_semanal"`
	Members      []legacyMember `json:"membros"`
	Total        int64          `json:"valor_total"`
}

type legacyMember struct {
	ID     json.Number `json:"id"`
	Name   string      `json:"nome"`
	Paid   bool        `json:"pagou"`
	Amount int64       `json:"valor_pago"`
}

// ImportLegacy converts a legacy meta_data.json document into a ledger.
// Duplicate ids keep their first record; the total is taken from the document
// and must agree with the member records.
func ImportLegacy(r io.Reader) (model.Ledger, error) {
	var doc legacyDocument
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return model.Ledger{}, fmt.Errorf("decode legacy document: %w", err)
	}

	var target int64
	if doc.WeeklyTarget != nil {
		target = *doc.WeeklyTarget
	}
	l := model.DefaultLedger(target)
	l.TotalCollected = doc.Total

	for _, m := range doc.Members {
		id := m.ID.String()
		if _, err := strconv.ParseUint(id, 10, 64); err != nil {
			return model.Ledger{}, fmt.Errorf("legacy member id %q: not a snowflake", id)
		}
		if l.IndexOf(id) >= 0 {
			continue
		}
		member := model.Member{ID: id, DisplayName: m.Name, Paid: m.Paid}
		if m.Paid {
			member.AmountPaid = m.Amount
		}
		l.Members = append(l.Members, member)
	}

	if err := l.Validate(); err != nil {
		return model.Ledger{}, fmt.Errorf("validate imported ledger: %w", err)
	}
	return l, nil
}
