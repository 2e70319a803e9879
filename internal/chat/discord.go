package chat

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	// Discord caps history pages and bulk deletes at 100 messages.
	pageSize = 100
	// Bulk delete rejects messages older than two weeks.
	bulkDeleteMaxAge = 14*24*time.Hour - time.Hour
)

// Discord implements Messenger on a discordgo session.
type Discord struct {
	session *discordgo.Session
}

func NewDiscord(s *discordgo.Session) *Discord {
	return &Discord{session: s}
}

func (d *Discord) SelfID() string {
	if d.session.State == nil || d.session.State.User == nil {
		return ""
	}
	return d.session.State.User.ID
}

func (d *Discord) SendMessage(ctx context.Context, channelID, text string) (string, error) {
	msg, err := d.session.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	if err != nil {
		return "", &DeliveryError{Op: "send", Target: channelID, Err: err}
	}
	return msg.ID, nil
}

func (d *Discord) FetchRecentHistory(ctx context.Context, channelID string, limit int) ([]HistoryMessage, error) {
	msgs, err := d.fetch(ctx, channelID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]HistoryMessage, 0, len(msgs))
	for _, m := range msgs {
		h := HistoryMessage{ID: m.ID, Content: m.Content}
		if m.Author != nil {
			h.AuthorID = m.Author.ID
		}
		out = append(out, h)
	}
	return out, nil
}

func (d *Discord) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	if err := d.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
		return &DeliveryError{Op: "delete", Target: channelID + "/" + messageID, Err: err}
	}
	return nil
}

// PurgeRecent deletes up to limit of the newest messages. Messages young
// enough go through bulk delete; older ones are removed one by one.
func (d *Discord) PurgeRecent(ctx context.Context, channelID string, limit int) error {
	msgs, err := d.fetch(ctx, channelID, limit)
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-bulkDeleteMaxAge)
	var bulk []string
	for _, m := range msgs {
		if m.Timestamp.After(cutoff) {
			bulk = append(bulk, m.ID)
			continue
		}
		if err := d.DeleteMessage(ctx, channelID, m.ID); err != nil {
			return err
		}
	}

	for len(bulk) > 0 {
		n := min(len(bulk), pageSize)
		if err := d.session.ChannelMessagesBulkDelete(channelID, bulk[:n], discordgo.WithContext(ctx)); err != nil {
			return &DeliveryError{Op: "purge", Target: channelID, Err: err}
		}
		bulk = bulk[n:]
	}
	return nil
}

func (d *Discord) SendDirectMessage(ctx context.Context, userID, text string) error {
	ch, err := d.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return &DeliveryError{Op: "dm", Target: userID, Err: err}
	}
	if _, err := d.session.ChannelMessageSend(ch.ID, text, discordgo.WithContext(ctx)); err != nil {
		return &DeliveryError{Op: "dm", Target: userID, Err: err}
	}
	return nil
}

// fetch pages backwards through history, newest first, until limit messages
// are collected or the channel runs out.
func (d *Discord) fetch(ctx context.Context, channelID string, limit int) ([]*discordgo.Message, error) {
	var out []*discordgo.Message
	before := ""
	for len(out) < limit {
		n := min(limit-len(out), pageSize)
		page, err := d.session.ChannelMessages(channelID, n, before, "", "", discordgo.WithContext(ctx))
		if err != nil {
			return nil, &DeliveryError{Op: "history", Target: channelID, Err: err}
		}
		out = append(out, page...)
		if len(page) < n {
			break
		}
		before = page[len(page)-1].ID
	}
	return out, nil
}

var _ Messenger = (*Discord)(nil)
