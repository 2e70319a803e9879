package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/dukerupert/duesbot/internal/chat/chattest"
	"github.com/dukerupert/duesbot/internal/dispatch"
	"github.com/dukerupert/duesbot/internal/ledger"
	"github.com/dukerupert/duesbot/internal/model"
	"github.com/dukerupert/duesbot/internal/store"
)

const guild = "g1"

type inlineLoop struct {
	jobs []string
}

func (l *inlineLoop) Submit(ctx context.Context, job dispatch.Job) error {
	l.jobs = append(l.jobs, job.Name)
	return job.Run(ctx)
}

type fakeNames map[string]string

func (f fakeNames) DisplayName(_ context.Context, _, userID string) (string, error) {
	if name, ok := f[userID]; ok {
		return name, nil
	}
	return "", errors.New("unknown member")
}

type fixture struct {
	handler *Handler
	engine  *ledger.Engine
	loop    *inlineLoop
	chat    *chattest.Recorder
}

func newFixture(t *testing.T, initial model.Ledger) *fixture {
	t.Helper()
	rec := chattest.New()
	ls := store.NewLedgerStore(store.NewMemoryKV(), model.DefaultWeeklyTarget)
	engine := ledger.NewEngine(initial, ls, rec, ledger.Config{
		Channels: ledger.Channels{Proof: "proof", Paid: "paid", Unpaid: "unpaid", Summary: "summary"},
		Limits:   ledger.Limits{UnpaidScan: 100, SummaryScan: 5, Purge: 100},
		Unit:     "folhas",
	}, slog.New(slog.DiscardHandler))

	loop := &inlineLoop{}
	names := fakeNames{"1": "Ana", "2": "Bruno"}
	h := NewHandler(guild, engine, loop, rec, names, slog.New(slog.DiscardHandler))
	return &fixture{handler: h, engine: engine, loop: loop, chat: rec}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want Command
	}{
		{"!register <@1> <@2>", CommandRegister},
		{"!REGISTER", CommandRegister},
		{"  !registrar_membros <@1>", CommandRegister},
		{"!registered", CommandNone},
		{"paid meta: 400 <@1>", CommandNone},
		{"", CommandNone},
	}
	for _, tt := range tests {
		if got := ParseCommand(tt.in); got != tt.want {
			t.Errorf("ParseCommand(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDisplayName(t *testing.T) {
	if got := DisplayName("Nick", "Global", "user"); got != "Nick" {
		t.Errorf("got %q, want Nick", got)
	}
	if got := DisplayName("", "Global", "user"); got != "Global" {
		t.Errorf("got %q, want Global", got)
	}
	if got := DisplayName(" ", "", "user"); got != "user" {
		t.Errorf("got %q, want user", got)
	}
}

func TestHandleRegister(t *testing.T) {
	f := newFixture(t, model.DefaultLedger(350))
	ctx := context.Background()

	msg := Message{
		GuildID:   guild,
		ChannelID: "admin",
		AuthorID:  "9",
		Content:   "!register <@1> <@2> <@99>",
		Mentions: []User{
			{ID: "1", Username: "ana_"},
			{ID: "2", Username: "bruno_"},
			{ID: "99", Username: "ghost"},
			{ID: "bot2", Username: "otherbot", Bot: true},
		},
	}
	if err := f.handler.Handle(ctx, msg); err != nil {
		t.Fatalf("handle: %v", err)
	}

	l := f.engine.Snapshot()
	if len(l.Members) != 3 {
		t.Fatalf("members = %d, want 3", len(l.Members))
	}
	if l.Members[0].DisplayName != "Ana" || l.Members[1].DisplayName != "Bruno" {
		t.Errorf("display names = %q, %q", l.Members[0].DisplayName, l.Members[1].DisplayName)
	}
	if l.Members[2].DisplayName != "ghost" {
		t.Errorf("unresolved name should fall back to username, got %q", l.Members[2].DisplayName)
	}

	replies := f.chat.Messages("admin")
	if len(replies) != 1 || !strings.Contains(replies[0], "3 members registered") {
		t.Errorf("replies = %q", replies)
	}
	if got := len(f.chat.Messages("unpaid")); got != 3 {
		t.Errorf("roster lines = %d, want 3", got)
	}
}

func TestHandlePayment(t *testing.T) {
	initial := model.DefaultLedger(350)
	initial.Members = []model.Member{{ID: "1", DisplayName: "Ana"}}
	f := newFixture(t, initial)

	msg := Message{
		GuildID:     guild,
		ChannelID:   "proof",
		AuthorID:    "1",
		Content:     "here you go meta:400",
		Attachments: 1,
		Mentions:    []User{{ID: "1"}},
	}
	if err := f.handler.Handle(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}

	l := f.engine.Snapshot()
	if !l.Members[0].Paid || l.Members[0].AmountPaid != 400 || l.TotalCollected != 400 {
		t.Errorf("ledger after payment = %+v", l)
	}
	if len(f.loop.jobs) != 1 || f.loop.jobs[0] != "payment" {
		t.Errorf("jobs = %v", f.loop.jobs)
	}
}

func TestHandleIgnores(t *testing.T) {
	initial := model.DefaultLedger(350)
	initial.Members = []model.Member{{ID: "1"}}

	tests := []struct {
		name string
		msg  Message
	}{
		{"bot author", Message{GuildID: guild, ChannelID: "proof", AuthorID: "x", AuthorBot: true, Attachments: 1, Mentions: []User{{ID: "1"}}}},
		{"own message", Message{GuildID: guild, ChannelID: "proof", AuthorID: chattest.BotID, Attachments: 1, Mentions: []User{{ID: "1"}}}},
		{"other guild", Message{GuildID: "g2", ChannelID: "proof", AuthorID: "1", Attachments: 1, Mentions: []User{{ID: "1"}}}},
		{"no attachment", Message{GuildID: guild, ChannelID: "proof", AuthorID: "1", Mentions: []User{{ID: "1"}}}},
		{"wrong channel", Message{GuildID: guild, ChannelID: "chatter", AuthorID: "1", Attachments: 1, Mentions: []User{{ID: "1"}}}},
		{"only bot mentioned", Message{GuildID: guild, ChannelID: "proof", AuthorID: "1", Attachments: 1, Mentions: []User{{ID: "b", Bot: true}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, initial)
			if err := f.handler.Handle(context.Background(), tt.msg); err != nil {
				t.Fatalf("handle: %v", err)
			}
			if len(f.loop.jobs) != 0 {
				t.Errorf("queued %v, want nothing", f.loop.jobs)
			}
			if f.engine.Snapshot().Members[0].Paid {
				t.Error("member credited")
			}
		})
	}
}

func TestPaymentEventDropsBots(t *testing.T) {
	ev := PaymentEvent(Message{
		ChannelID:   "proof",
		Attachments: 2,
		Content:     "meta: 500",
		Mentions:    []User{{ID: "1"}, {ID: "b", Bot: true}, {ID: "2"}},
	})
	if !ev.HasAttachments || ev.ChannelID != "proof" || ev.Text != "meta: 500" {
		t.Errorf("event = %+v", ev)
	}
	if len(ev.Mentions) != 2 || ev.Mentions[0] != "1" || ev.Mentions[1] != "2" {
		t.Errorf("mentions = %v", ev.Mentions)
	}
}
