// File: internal/usecase/effects.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"crypto-role-subscription/internal/domain"
	"crypto-role-subscription/internal/domain/ports/adapter"
	"crypto-role-subscription/internal/infra/i18n"
	"crypto-role-subscription/internal/infra/metrics"
)

// Webhook event labels.
const (
	EventPaymentStatus        = "payment_status"
	EventSubscriptionExpiring = "subscription_expiring"
	EventSubscriptionExpired  = "subscription_expired"
)

type EffectsConfig struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Effects performs the external side effects of lifecycle transitions.
// Role changes are retried; webhooks and direct messages are fire once and
// only logged on failure.
type Effects struct {
	roles adapter.RoleEffector
	sink  adapter.NotificationSink
	msgr  adapter.MemberMessenger
	tr    *i18n.Translator
	cfg   EffectsConfig
	log   *zerolog.Logger
}

func NewEffects(roles adapter.RoleEffector, sink adapter.NotificationSink, msgr adapter.MemberMessenger, tr *i18n.Translator, cfg EffectsConfig, logger *zerolog.Logger) *Effects {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	l := logger.With().Str("component", "Effects").Logger()
	return &Effects{roles: roles, sink: sink, msgr: msgr, tr: tr, cfg: cfg, log: &l}
}

func (e *Effects) Grant(ctx context.Context, communityID, memberID, roleID string) error {
	err := retryEffect(ctx, e.cfg.MaxAttempts, e.cfg.Backoff, func(ctx context.Context) error {
		return e.roles.Grant(ctx, communityID, memberID, roleID)
	})
	metrics.IncRoleEffect("grant", err)
	if err != nil {
		e.log.Error().Err(err).Str("community_id", communityID).Str("member_id", memberID).Str("role_id", roleID).Msg("role grant failed")
	}
	return err
}

func (e *Effects) Revoke(ctx context.Context, communityID, memberID, roleID string) error {
	err := retryEffect(ctx, e.cfg.MaxAttempts, e.cfg.Backoff, func(ctx context.Context) error {
		return e.roles.Revoke(ctx, communityID, memberID, roleID)
	})
	metrics.IncRoleEffect("revoke", err)
	if err != nil {
		e.log.Error().Err(err).Str("community_id", communityID).Str("member_id", memberID).Str("role_id", roleID).Msg("role revoke failed")
	}
	return err
}

// Notify posts payload to url when one is configured.
func (e *Effects) Notify(ctx context.Context, event string, url *string, payload map[string]any) {
	if url == nil || *url == "" || e.sink == nil {
		return
	}
	err := e.sink.Notify(ctx, *url, payload)
	metrics.IncWebhookDelivery(event, err)
	if err != nil {
		e.log.Warn().Err(err).Str("event", event).Msg("webhook delivery failed")
	}
}

// DM sends the translated message under key to the member.
func (e *Effects) DM(ctx context.Context, memberID, key string, args ...any) {
	if e.msgr == nil || e.tr == nil {
		return
	}
	err := e.msgr.SendDirect(ctx, memberID, e.tr.T(key, args...))
	metrics.IncMemberMessage(err)
	if err != nil {
		e.log.Warn().Err(err).Str("member_id", memberID).Str("key", key).Msg("direct message failed")
	}
}

// retryEffect calls fn up to attempts times with exponential backoff and
// stops early on domain.ErrEffectorPermanent.
func retryEffect(ctx context.Context, attempts int, backoff time.Duration, fn func(context.Context) error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrEffectorPermanent) || i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff << uint(i)):
		}
	}
	return err
}
