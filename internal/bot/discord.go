package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// Intents the bot needs: guild messages with their content, and guild
// members for display names.
const Intents = discordgo.IntentsGuildMessages | discordgo.IntentsGuildMembers | discordgo.IntentsMessageContent

// NewSession creates a discordgo session for token. It is not opened.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = Intents
	s.StateEnabled = true
	return s, nil
}

// Attach routes MessageCreate events from s into h. ctx bounds queueing;
// cancel it to stop accepting work. The returned func removes the handler.
func Attach(ctx context.Context, s *discordgo.Session, h *Handler) func() {
	return s.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Message == nil {
			return
		}
		if err := h.Handle(ctx, FromDiscord(m.Message)); err != nil && ctx.Err() == nil {
			h.logger.Error("queue message", "channel", m.ChannelID, "message", m.ID, "error", err)
		}
	})
}

// FromDiscord copies the fields the handler reads out of a gateway message.
func FromDiscord(m *discordgo.Message) Message {
	msg := Message{
		GuildID:     m.GuildID,
		ChannelID:   m.ChannelID,
		Content:     m.Content,
		Attachments: len(m.Attachments),
	}
	if m.Author != nil {
		msg.AuthorID = m.Author.ID
		msg.AuthorBot = m.Author.Bot
	}
	for _, u := range m.Mentions {
		if u == nil {
			continue
		}
		msg.Mentions = append(msg.Mentions, User{ID: u.ID, Username: u.Username, Bot: u.Bot})
	}
	return msg
}

// GuildNames resolves display names from the session state cache, falling
// back to the REST API.
type GuildNames struct {
	session *discordgo.Session
}

func NewGuildNames(s *discordgo.Session) *GuildNames {
	return &GuildNames{session: s}
}

func (g *GuildNames) DisplayName(ctx context.Context, guildID, userID string) (string, error) {
	var member *discordgo.Member
	if g.session.State != nil {
		if m, err := g.session.State.Member(guildID, userID); err == nil {
			member = m
		}
	}
	if member == nil {
		m, err := g.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
		if err != nil {
			return "", fmt.Errorf("fetch guild member %s: %w", userID, err)
		}
		member = m
	}
	if member.User == nil {
		return "", errors.New("guild member has no user")
	}
	return DisplayName(member.Nick, member.User.GlobalName, member.User.Username), nil
}
