// Package bot turns guild messages into ledger work on the dispatch loop.
package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukerupert/duesbot/internal/chat"
	"github.com/dukerupert/duesbot/internal/dispatch"
	"github.com/dukerupert/duesbot/internal/ledger"
	"github.com/dukerupert/duesbot/internal/logging"
	"github.com/dukerupert/duesbot/internal/model"
	"github.com/dukerupert/duesbot/internal/view"
)

// Engine is the part of ledger.Engine the bot drives.
type Engine interface {
	Accepts(ev ledger.PaymentEvent) bool
	HandlePayment(ctx context.Context, ev ledger.PaymentEvent) (ledger.Outcome, error)
	AddMembers(ctx context.Context, candidates []ledger.Candidate) (int, error)
	Snapshot() model.Ledger
}

type Submitter interface {
	Submit(ctx context.Context, job dispatch.Job) error
}

// Names resolves a user's display name inside the guild.
type Names interface {
	DisplayName(ctx context.Context, guildID, userID string) (string, error)
}

// User is a mentioned account as it arrived on the message.
type User struct {
	ID       string
	Username string
	Bot      bool
}

// Message is the gateway message the handler needs, decoupled from discordgo.
type Message struct {
	GuildID     string
	ChannelID   string
	AuthorID    string
	AuthorBot   bool
	Content     string
	Attachments int
	Mentions    []User
}

type Handler struct {
	guildID string
	engine  Engine
	loop    Submitter
	chat    chat.Messenger
	names   Names
	logger  *slog.Logger
}

func NewHandler(guildID string, engine Engine, loop Submitter, messenger chat.Messenger, names Names, logger *slog.Logger) *Handler {
	return &Handler{
		guildID: guildID,
		engine:  engine,
		loop:    loop,
		chat:    messenger,
		names:   names,
		logger:  logger,
	}
}

// Handle queues the work msg asks for. Messages from bots, from other guilds
// and anything that is neither a command nor a payment proof are dropped.
func (h *Handler) Handle(ctx context.Context, msg Message) error {
	if msg.AuthorBot || msg.AuthorID == h.chat.SelfID() {
		return nil
	}
	if h.guildID != "" && msg.GuildID != h.guildID {
		return nil
	}

	if ParseCommand(msg.Content) == CommandRegister {
		return h.loop.Submit(ctx, dispatch.Job{
			Name: "register",
			Run:  func(ctx context.Context) error { return h.register(ctx, msg) },
		})
	}

	ev := PaymentEvent(msg)
	if !h.engine.Accepts(ev) {
		return nil
	}
	return h.loop.Submit(ctx, dispatch.Job{
		Name: "payment",
		Run: func(ctx context.Context) error {
			out, err := h.engine.HandlePayment(ctx, ev)
			if err != nil {
				return fmt.Errorf("handle payment: %w", err)
			}
			if len(out.Unknown) > 0 {
				logging.FromContext(ctx, h.logger).Info("proof mentions unregistered users", "users", out.Unknown)
			}
			return nil
		},
	})
}

// PaymentEvent maps msg to the engine's payment input. Bot accounts are not
// members and are left out of the mentions.
func PaymentEvent(msg Message) ledger.PaymentEvent {
	ev := ledger.PaymentEvent{
		ChannelID:      msg.ChannelID,
		HasAttachments: msg.Attachments > 0,
		Text:           msg.Content,
	}
	for _, u := range msg.Mentions {
		if u.Bot {
			continue
		}
		ev.Mentions = append(ev.Mentions, u.ID)
	}
	return ev
}

func (h *Handler) register(ctx context.Context, msg Message) error {
	logger := logging.FromContext(ctx, h.logger)

	var candidates []ledger.Candidate
	for _, u := range msg.Mentions {
		if u.Bot {
			continue
		}
		name, err := h.names.DisplayName(ctx, msg.GuildID, u.ID)
		if err != nil {
			logger.Warn("resolve display name", "user", u.ID, "error", err)
			name = u.Username
		}
		candidates = append(candidates, ledger.Candidate{ID: u.ID, DisplayName: name})
	}

	added, err := h.engine.AddMembers(ctx, candidates)
	if err != nil {
		return fmt.Errorf("register members: %w", err)
	}

	total := len(h.engine.Snapshot().Members)
	if _, err := h.chat.SendMessage(ctx, msg.ChannelID, view.RegisterReply(added, total)); err != nil {
		logger.Error("reply to register", "channel", msg.ChannelID, "error", err)
	}
	return nil
}
