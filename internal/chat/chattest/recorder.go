// Package chattest provides an in-memory chat.Messenger for tests.
package chattest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dukerupert/duesbot/internal/chat"
)

// BotID is the author id the Recorder uses for its own messages.
const BotID = "bot"

// ErrBlocked is returned for direct messages to users in Recorder.BlockDMs.
var ErrBlocked = errors.New("cannot send messages to this user")

// Recorder keeps per-channel message lists (oldest first) and records DMs.
type Recorder struct {
	mu       sync.Mutex
	nextID   int
	channels map[string][]chat.HistoryMessage
	dms      map[string][]string

	// BlockDMs lists user ids whose direct messages fail.
	BlockDMs map[string]bool
	// FailSend lists channel ids whose SendMessage calls fail.
	FailSend map[string]bool
}

func New() *Recorder {
	return &Recorder{
		channels: make(map[string][]chat.HistoryMessage),
		dms:      make(map[string][]string),
		BlockDMs: make(map[string]bool),
		FailSend: make(map[string]bool),
	}
}

func (r *Recorder) SelfID() string { return BotID }

// Seed appends a message from another author, as if a user had posted it.
func (r *Recorder) Seed(channelID, authorID, text string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appendLocked(channelID, authorID, text)
}

func (r *Recorder) SendMessage(_ context.Context, channelID, text string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailSend[channelID] {
		return "", &chat.DeliveryError{Op: "send", Target: channelID, Err: errors.New("missing access")}
	}
	return r.appendLocked(channelID, BotID, text), nil
}

func (r *Recorder) PurgeRecent(_ context.Context, channelID string, limit int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msgs := r.channels[channelID]
	if limit >= len(msgs) {
		r.channels[channelID] = nil
		return nil
	}
	r.channels[channelID] = msgs[:len(msgs)-limit]
	return nil
}

func (r *Recorder) FetchRecentHistory(_ context.Context, channelID string, limit int) ([]chat.HistoryMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msgs := r.channels[channelID]
	var out []chat.HistoryMessage
	for i := len(msgs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, msgs[i])
	}
	return out, nil
}

func (r *Recorder) DeleteMessage(_ context.Context, channelID, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msgs := r.channels[channelID]
	for i, m := range msgs {
		if m.ID == messageID {
			r.channels[channelID] = append(msgs[:i:i], msgs[i+1:]...)
			return nil
		}
	}
	return &chat.DeliveryError{Op: "delete", Target: channelID + "/" + messageID, Err: errors.New("unknown message")}
}

func (r *Recorder) SendDirectMessage(_ context.Context, userID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.BlockDMs[userID] {
		return &chat.DeliveryError{Op: "dm", Target: userID, Err: ErrBlocked}
	}
	r.dms[userID] = append(r.dms[userID], text)
	return nil
}

// Messages returns the texts currently in a channel, oldest first.
func (r *Recorder) Messages(channelID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []string
	for _, m := range r.channels[channelID] {
		out = append(out, m.Content)
	}
	return out
}

// DMs returns the direct messages delivered to a user.
func (r *Recorder) DMs(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.dms[userID]...)
}

// CountContaining returns how many messages in the channel contain substr.
func (r *Recorder) CountContaining(channelID, substr string) int {
	n := 0
	for _, m := range r.Messages(channelID) {
		if strings.Contains(m, substr) {
			n++
		}
	}
	return n
}

func (r *Recorder) appendLocked(channelID, authorID, text string) string {
	r.nextID++
	id := fmt.Sprintf("m%d", r.nextID)
	r.channels[channelID] = append(r.channels[channelID], chat.HistoryMessage{ID: id, AuthorID: authorID, Content: text})
	return id
}

var _ chat.Messenger = (*Recorder)(nil)
