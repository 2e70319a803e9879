package bot

import (
	"testing"

	"github.com/bwmarrin/discordgo"
)

func TestFromDiscord(t *testing.T) {
	m := &discordgo.Message{
		ID:        "m1",
		GuildID:   "g1",
		ChannelID: "c1",
		Content:   "meta:400 <@1>",
		Author:    &discordgo.User{ID: "9", Username: "payer"},
		Attachments: []*discordgo.MessageAttachment{
			{ID: "a1", Filename: "pix.png"},
		},
		Mentions: []*discordgo.User{
			{ID: "1", Username: "ana"},
			nil,
			{ID: "b", Username: "otherbot", Bot: true},
		},
	}

	msg := FromDiscord(m)
	if msg.GuildID != "g1" || msg.ChannelID != "c1" || msg.AuthorID != "9" || msg.AuthorBot {
		t.Errorf("msg = %+v", msg)
	}
	if msg.Attachments != 1 {
		t.Errorf("Attachments = %d", msg.Attachments)
	}
	if len(msg.Mentions) != 2 || msg.Mentions[0].ID != "1" || !msg.Mentions[1].Bot {
		t.Errorf("Mentions = %+v", msg.Mentions)
	}
}

func TestFromDiscordWithoutAuthor(t *testing.T) {
	msg := FromDiscord(&discordgo.Message{ChannelID: "c1"})
	if msg.AuthorID != "" || len(msg.Mentions) != 0 {
		t.Errorf("msg = %+v", msg)
	}
}
