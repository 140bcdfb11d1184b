package discord

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"

	"crypto-role-subscription/internal/domain/ports/adapter"
)

var _ adapter.MemberMessenger = (*Messenger)(nil)

// Messenger sends direct messages. DM channel ids are stable per user, so
// they are remembered for the life of the process.
type Messenger struct {
	c        *Client
	channels sync.Map // member id -> channel id
}

func NewMessenger(c *Client) *Messenger {
	return &Messenger{c: c}
}

func (m *Messenger) SendDirect(ctx context.Context, memberID, text string) error {
	if err := parseIDs(memberID); err != nil {
		return err
	}
	channelID, err := m.channel(ctx, memberID)
	if err != nil {
		return err
	}
	return m.c.call(ctx, "send dm", func(opt discordgo.RequestOption) error {
		_, err := m.c.s.ChannelMessageSend(channelID, text, opt)
		return err
	})
}

func (m *Messenger) channel(ctx context.Context, memberID string) (string, error) {
	if v, ok := m.channels.Load(memberID); ok {
		return v.(string), nil
	}
	var ch *discordgo.Channel
	err := m.c.call(ctx, "open dm", func(opt discordgo.RequestOption) error {
		var err error
		ch, err = m.c.s.UserChannelCreate(memberID, opt)
		return err
	})
	if err != nil {
		return "", err
	}
	if ch == nil || ch.ID == "" {
		return "", fmt.Errorf("discord returned an empty dm channel")
	}
	m.channels.Store(memberID, ch.ID)
	return ch.ID, nil
}
