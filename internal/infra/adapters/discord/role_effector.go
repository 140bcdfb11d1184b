package discord

import (
	"context"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"crypto-role-subscription/internal/domain/ports/adapter"
)

var _ adapter.RoleEffector = (*RoleEffector)(nil)

// RoleEffector grants and revokes guild roles. Both calls are idempotent on
// Discord's side.
type RoleEffector struct {
	c *Client
}

func NewRoleEffector(c *Client) *RoleEffector {
	return &RoleEffector{c: c}
}

func (e *RoleEffector) Grant(ctx context.Context, guildID, memberID, roleID string) error {
	if err := parseIDs(guildID, memberID, roleID); err != nil {
		return err
	}
	return e.c.call(ctx, "grant", func(opt discordgo.RequestOption) error {
		return e.c.s.GuildMemberRoleAdd(guildID, memberID, roleID, opt)
	})
}

// Revoke treats 404 (member left or role already gone) as success.
func (e *RoleEffector) Revoke(ctx context.Context, guildID, memberID, roleID string) error {
	if err := parseIDs(guildID, memberID, roleID); err != nil {
		return err
	}
	err := e.c.call(ctx, "revoke", func(opt discordgo.RequestOption) error {
		return e.c.s.GuildMemberRoleRemove(guildID, memberID, roleID, opt)
	})
	if statusOf(err) == http.StatusNotFound {
		return nil
	}
	return err
}
