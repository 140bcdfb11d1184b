// Package noop provides log-only adapters for local development.
package noop

import (
	"context"

	"github.com/rs/zerolog"

	"crypto-role-subscription/internal/domain/ports/adapter"
)

var (
	_ adapter.RoleEffector    = (*Effector)(nil)
	_ adapter.MemberMessenger = (*Effector)(nil)
)

// Effector logs role changes and direct messages instead of performing them.
type Effector struct {
	log *zerolog.Logger
}

func NewEffector(logger *zerolog.Logger) *Effector {
	l := logger.With().Str("component", "NoopEffector").Logger()
	return &Effector{log: &l}
}

func (e *Effector) Grant(ctx context.Context, communityID, memberID, roleID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.log.Info().Str("community_id", communityID).Str("member_id", memberID).Str("role_id", roleID).Msg("grant role")
	return nil
}

func (e *Effector) Revoke(ctx context.Context, communityID, memberID, roleID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.log.Info().Str("community_id", communityID).Str("member_id", memberID).Str("role_id", roleID).Msg("revoke role")
	return nil
}

func (e *Effector) SendDirect(ctx context.Context, memberID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.log.Info().Str("member_id", memberID).Str("text", text).Msg("direct message")
	return nil
}
