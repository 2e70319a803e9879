// Package ledger owns the weekly dues ledger. Every change goes through the
// Engine, which persists the new state and then brings the paid, unpaid and
// summary channels back in line with it.
package ledger

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dukerupert/duesbot/internal/chat"
	"github.com/dukerupert/duesbot/internal/logging"
	"github.com/dukerupert/duesbot/internal/model"
	"github.com/dukerupert/duesbot/internal/view"
)

// Persister saves the whole ledger. *store.LedgerStore implements it.
type Persister interface {
	Save(ctx context.Context, l model.Ledger) error
}

// Channels are the Discord channel ids the engine reads from and writes to.
type Channels struct {
	Proof   string
	Paid    string
	Unpaid  string
	Summary string
}

// Limits bound how far back the engine looks into channel history.
type Limits struct {
	// UnpaidScan is how many recent unpaid-channel messages are searched for a member's roster line.
	UnpaidScan int
	// SummaryScan is how many recent summary-channel messages are searched for old summaries.
	SummaryScan int
	// Purge is how many messages a full channel rebuild deletes.
	Purge int
}

type Config struct {
	Channels Channels
	Limits   Limits
	// Unit labels amounts in channel posts and DMs.
	Unit string
}

// Engine serializes every ledger read-modify-write together with the channel
// updates that follow it.
type Engine struct {
	mu     sync.Mutex
	ledger model.Ledger

	snapMu   sync.RWMutex
	snap     model.Ledger
	onChange func(model.Ledger)

	store  Persister
	chat   chat.Messenger
	cfg    Config
	logger *slog.Logger
}

func NewEngine(initial model.Ledger, store Persister, messenger chat.Messenger, cfg Config, logger *slog.Logger) *Engine {
	l := initial.Clone()
	return &Engine{
		ledger: l,
		snap:   l.Clone(),
		store:  store,
		chat:   messenger,
		cfg:    cfg,
		logger: logger,
	}
}

// OnChange registers fn to receive a copy of the ledger after every persisted change.
func (e *Engine) OnChange(fn func(model.Ledger)) {
	e.snapMu.Lock()
	e.onChange = fn
	e.snapMu.Unlock()
}

// Snapshot returns a copy of the last persisted ledger. It does not wait for
// an in-flight operation.
func (e *Engine) Snapshot() model.Ledger {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.snap.Clone()
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// published must be called with e.mu held, after a successful save.
func (e *Engine) published() {
	snap := e.ledger.Clone()

	e.snapMu.Lock()
	e.snap = snap
	fn := e.onChange
	e.snapMu.Unlock()

	if fn != nil {
		fn(snap.Clone())
	}
}

func (e *Engine) log(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, e.logger)
}

// post sends a channel message. Failures are logged and otherwise ignored.
func (e *Engine) post(ctx context.Context, channelID, text string) {
	if _, err := e.chat.SendMessage(ctx, channelID, text); err != nil {
		e.log(ctx).Error("post to channel", "channel", channelID, "error", err)
	}
}

// dm sends a direct message. Failures are logged at warn and discarded.
func (e *Engine) dm(ctx context.Context, userID, text string) bool {
	if err := e.chat.SendDirectMessage(ctx, userID, text); err != nil {
		e.log(ctx).Warn("direct message not delivered", "member", userID, "error", err)
		return false
	}
	return true
}

// rebuildRoster purges the unpaid channel and posts one line per unpaid member.
func (e *Engine) rebuildRoster(ctx context.Context, l model.Ledger) {
	if err := e.chat.PurgeRecent(ctx, e.cfg.Channels.Unpaid, e.cfg.Limits.Purge); err != nil {
		e.log(ctx).Error("purge unpaid channel", "error", err)
	}
	for _, mention := range view.UnpaidMentions(l) {
		e.post(ctx, e.cfg.Channels.Unpaid, view.RosterLine(mention))
	}
}

// removeRosterEntries deletes recent unpaid-channel messages that mention memberID.
func (e *Engine) removeRosterEntries(ctx context.Context, memberID string) {
	history, err := e.chat.FetchRecentHistory(ctx, e.cfg.Channels.Unpaid, e.cfg.Limits.UnpaidScan)
	if err != nil {
		e.log(ctx).Error("fetch unpaid history", "error", err)
		return
	}
	for _, msg := range history {
		if !chat.ContainsMention(msg.Content, memberID) {
			continue
		}
		if err := e.chat.DeleteMessage(ctx, e.cfg.Channels.Unpaid, msg.ID); err != nil {
			e.log(ctx).Error("delete roster entry", "member", memberID, "message", msg.ID, "error", err)
		}
	}
}

// replaceSummary deletes the bot's recent summaries and posts a fresh one.
func (e *Engine) replaceSummary(ctx context.Context, l model.Ledger) {
	history, err := e.chat.FetchRecentHistory(ctx, e.cfg.Channels.Summary, e.cfg.Limits.SummaryScan)
	if err != nil {
		e.log(ctx).Error("fetch summary history", "error", err)
	}
	self := e.chat.SelfID()
	for _, msg := range history {
		if msg.AuthorID != self {
			continue
		}
		if err := e.chat.DeleteMessage(ctx, e.cfg.Channels.Summary, msg.ID); err != nil {
			e.log(ctx).Error("delete old summary", "message", msg.ID, "error", err)
		}
	}
	e.post(ctx, e.cfg.Channels.Summary, view.Summary(l, e.cfg.Unit))
}
