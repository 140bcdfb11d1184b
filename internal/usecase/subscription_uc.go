// File: internal/usecase/subscription_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"crypto-role-subscription/internal/domain"
	"crypto-role-subscription/internal/domain/model"
	"crypto-role-subscription/internal/domain/ports/repository"
	"crypto-role-subscription/internal/infra/i18n"
	"crypto-role-subscription/internal/infra/metrics"
)

// Compile-time check
var _ SubscriptionUseCase = (*subscriptionUC)(nil)

const unknownMethodName = "unknown"

type SubscriptionConfig struct {
	NoticeWindow time.Duration
	RunTimeout   time.Duration
	Batch        int
	Now          func() time.Time
}

// SweepReport summarises one sweep run.
type SweepReport struct {
	Notified int
	Expired  int
	Failed   int
}

type SubscriptionUseCase interface {
	// Activate creates or renews the member's subscription inside tx.
	Activate(ctx context.Context, tx repository.Tx, a *model.PaymentAttempt, m *model.PaymentMethod) (*model.Subscription, error)
	Sweep(ctx context.Context) (*SweepReport, error)
	// ExpireForMethod ends every live subscription of m now. m may already be
	// deleted; its name is used for the announcements.
	ExpireForMethod(ctx context.Context, m *model.PaymentMethod) (expired, failed int, err error)
	ListForMember(ctx context.Context, communityID, memberID string) ([]*model.Subscription, error)
}

type subscriptionUC struct {
	subs        repository.SubscriptionRepository
	methods     repository.PaymentMethodRepository
	communities repository.CommunityRepository
	tm          repository.TransactionManager
	effects     *Effects
	cfg         SubscriptionConfig
	flight      singleflight.Group
	log         *zerolog.Logger
}

func NewSubscriptionUseCase(
	subs repository.SubscriptionRepository,
	methods repository.PaymentMethodRepository,
	communities repository.CommunityRepository,
	tm repository.TransactionManager,
	effects *Effects,
	cfg SubscriptionConfig,
	logger *zerolog.Logger,
) *subscriptionUC {
	if cfg.NoticeWindow <= 0 {
		cfg.NoticeWindow = 24 * time.Hour
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 500
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &subscriptionUC{
		subs:        subs,
		methods:     methods,
		communities: communities,
		tm:          tm,
		effects:     effects,
		cfg:         cfg,
		log:         logger,
	}
}

func (u *subscriptionUC) Activate(ctx context.Context, tx repository.Tx, a *model.PaymentAttempt, m *model.PaymentMethod) (*model.Subscription, error) {
	now := u.cfg.Now()
	transition := "renewed"
	s, err := u.subs.FindByKey(ctx, tx, a.CommunityID, a.MemberID, m.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		transition = "activated"
		s, err = model.NewSubscription(uuid.NewString(), a, m, now)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		if err := s.Renew(a, m, now); err != nil {
			return nil, err
		}
	}
	if err := u.subs.Save(ctx, tx, s); err != nil {
		return nil, fmt.Errorf("save subscription: %w", err)
	}
	metrics.IncSubscriptionTransition(transition)
	u.log.Info().Str("subscription_id", s.ID).Str("member_id", s.MemberID).Time("expires_at", s.ExpiresAt).Str("transition", transition).Msg("subscription activated")
	return s, nil
}

func (u *subscriptionUC) Sweep(ctx context.Context) (rep *SweepReport, err error) {
	if u.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.cfg.RunTimeout)
		defer cancel()
	}
	defer func() { metrics.IncSweepRun(err) }()

	rep = &SweepReport{}
	now := u.cfg.Now()

	notices, err := u.subs.ListDueForNotice(ctx, repository.NoTX, now, u.cfg.NoticeWindow, u.cfg.Batch)
	if err != nil {
		return rep, fmt.Errorf("list due for notice: %w", err)
	}
	for _, s := range notices {
		won, err := u.subs.MarkNotified(ctx, repository.NoTX, s.ID, now, u.cfg.NoticeWindow)
		if err != nil {
			rep.Failed++
			u.log.Error().Err(err).Str("subscription_id", s.ID).Msg("mark notified failed")
			continue
		}
		if !won {
			continue
		}
		rep.Notified++
		metrics.IncSubscriptionTransition(string(model.SubscriptionStateExpiringNotified))
		u.announceExpiring(ctx, s)
	}

	due, err := u.subs.ListDueForExpiry(ctx, repository.NoTX, now, u.cfg.Batch)
	if err != nil {
		return rep, fmt.Errorf("list due for expiry: %w", err)
	}
	for _, s := range due {
		ok, err := u.expire(ctx, s.ID, i18n.KeySubscriptionExpired, "")
		switch {
		case err != nil:
			rep.Failed++
		case ok:
			rep.Expired++
		}
	}

	if counts, err := u.subs.CountByState(ctx, repository.NoTX); err == nil {
		metrics.SetSubscriptionsByState(counts)
	} else {
		u.log.Warn().Err(err).Msg("count subscriptions by state failed")
	}

	u.log.Info().Int("notified", rep.Notified).Int("expired", rep.Expired).Int("failed", rep.Failed).Msg("subscription sweep finished")
	return rep, nil
}

func (u *subscriptionUC) ExpireForMethod(ctx context.Context, m *model.PaymentMethod) (expired, failed int, err error) {
	if _, err := u.subs.CutShortByMethod(ctx, repository.NoTX, m.ID, u.cfg.Now()); err != nil {
		return 0, 0, fmt.Errorf("cut short subscriptions: %w", err)
	}
	live, err := u.subs.ListLiveByMethod(ctx, repository.NoTX, m.ID)
	if err != nil {
		return 0, 0, err
	}
	for _, s := range live {
		ok, err := u.expire(ctx, s.ID, i18n.KeySubscriptionMethodGone, m.Name)
		switch {
		case err != nil:
			failed++
		case ok:
			expired++
		}
	}
	return expired, failed, nil
}

func (u *subscriptionUC) ListForMember(ctx context.Context, communityID, memberID string) ([]*model.Subscription, error) {
	return u.subs.ListByMember(ctx, repository.NoTX, communityID, memberID)
}

// expire revokes the role and marks the subscription expired under a row lock.
// A failed revoke rolls back so the row stays due for the next sweep.
func (u *subscriptionUC) expire(ctx context.Context, id, dmKey, methodName string) (bool, error) {
	v, err, _ := u.flight.Do(id, func() (interface{}, error) {
		var expired *model.Subscription
		err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			s, err := u.subs.FindByID(ctx, tx, id)
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			now := u.cfg.Now()
			if !s.ExpiryDue(now) {
				return nil
			}
			if s.RoleID != nil && *s.RoleID != "" {
				if err := u.effects.Revoke(ctx, s.CommunityID, s.MemberID, *s.RoleID); err != nil {
					return err
				}
			}
			won, err := u.subs.MarkExpired(ctx, tx, s.ID, now)
			if err != nil {
				return err
			}
			if !won {
				return nil
			}
			_ = s.MarkExpired(now)
			expired = s
			return nil
		})
		return expired, err
	})
	if err != nil {
		u.log.Error().Err(err).Str("subscription_id", id).Msg("subscription expiry failed")
		return false, err
	}
	s, _ := v.(*model.Subscription)
	if s == nil {
		return false, nil
	}
	metrics.IncSubscriptionTransition(string(model.SubscriptionStateExpired))
	u.announceExpired(ctx, s, dmKey, methodName)
	return true, nil
}

func (u *subscriptionUC) announceExpiring(ctx context.Context, s *model.Subscription) {
	methodName, guildName := u.names(ctx, s)
	payload := u.eventPayload(EventSubscriptionExpiring, s, methodName, guildName)
	u.effects.Notify(ctx, EventSubscriptionExpiring, s.WebhookURL, payload)
	u.effects.DM(ctx, s.MemberID, i18n.KeySubscriptionExpiring, methodName, displayName(s.CommunityID, guildName), s.ExpiresAt.Format(time.RFC1123))
}

func (u *subscriptionUC) announceExpired(ctx context.Context, s *model.Subscription, dmKey, knownMethod string) {
	methodName, guildName := u.names(ctx, s)
	if knownMethod != "" {
		methodName = knownMethod
	}
	payload := u.eventPayload(EventSubscriptionExpired, s, methodName, guildName)
	u.effects.Notify(ctx, EventSubscriptionExpired, s.WebhookURL, payload)
	u.effects.DM(ctx, s.MemberID, dmKey, methodName, displayName(s.CommunityID, guildName))
}

func (u *subscriptionUC) eventPayload(event string, s *model.Subscription, methodName, guildName string) map[string]any {
	p := map[string]any{
		"event":        event,
		"discord_id":   s.MemberID,
		"guild_id":     s.CommunityID,
		"payment_name": methodName,
	}
	if guildName != "" {
		p["guild_name"] = guildName
	}
	// both events carry the subscription's end of period
	if event == EventSubscriptionExpired {
		p["expired_at"] = s.ExpiresAt.UTC().Format(time.RFC3339)
	} else {
		p["expires_at"] = s.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return p
}

// names resolves display names; dangling references fall back.
func (u *subscriptionUC) names(ctx context.Context, s *model.Subscription) (methodName, guildName string) {
	methodName = unknownMethodName
	if m, err := u.methods.FindByID(ctx, repository.NoTX, s.MethodID); err == nil {
		methodName = m.Name
	}
	if c, err := u.communities.FindByID(ctx, repository.NoTX, s.CommunityID); err == nil {
		guildName = c.Name
	}
	return methodName, guildName
}

func displayName(id, name string) string {
	if name != "" {
		return name
	}
	return id
}
