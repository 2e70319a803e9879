// Package chat defines the messaging operations the dues engine needs from the
// chat platform, and the Discord implementation of them.
package chat

import (
	"context"
	"fmt"
	"strings"
)

// HistoryMessage is a message read back from a channel.
type HistoryMessage struct {
	ID       string
	AuthorID string
	Content  string
}

// Messenger is the chat platform as seen by the engine.
type Messenger interface {
	SendMessage(ctx context.Context, channelID, text string) (string, error)
	PurgeRecent(ctx context.Context, channelID string, limit int) error
	FetchRecentHistory(ctx context.Context, channelID string, limit int) ([]HistoryMessage, error)
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	SendDirectMessage(ctx context.Context, userID, text string) error
	// SelfID is the bot's own user id, used to recognise its messages in history.
	SelfID() string
}

// DeliveryError reports a failed platform call. It is never fatal to the caller.
type DeliveryError struct {
	Op     string
	Target string
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Target, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Mention renders the platform mention markup for a user id.
func Mention(userID string) string {
	return "<@" + userID + ">"
}

// ContainsMention reports whether text mentions userID, in either the plain
// or the nickname form.
func ContainsMention(text, userID string) bool {
	return strings.Contains(text, "<@"+userID+">") || strings.Contains(text, "<@!"+userID+">")
}
