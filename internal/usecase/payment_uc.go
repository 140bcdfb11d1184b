// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"crypto-role-subscription/internal/domain"
	"crypto-role-subscription/internal/domain/model"
	"crypto-role-subscription/internal/domain/ports/adapter"
	"crypto-role-subscription/internal/domain/ports/repository"
	"crypto-role-subscription/internal/infra/i18n"
	"crypto-role-subscription/internal/infra/logging"
	"crypto-role-subscription/internal/infra/metrics"
	red "crypto-role-subscription/internal/infra/redis"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

type PaymentConfig struct {
	Interval      time.Duration // spacing between polls of one attempt
	SessionTTL    time.Duration // horizon
	MaxBackoff    time.Duration
	StatusTimeout time.Duration // per GetStatus call
	LockTTL       time.Duration
	StartLimit    int // checkouts per member per window; 0 disables
	StartWindow   time.Duration
	Now           func() time.Time
}

// PaymentDeps groups the collaborators of the payment use case.
type PaymentDeps struct {
	Communities   repository.CommunityRepository
	Methods       repository.PaymentMethodRepository
	Attempts      repository.PaymentAttemptRepository
	Tx            repository.TransactionManager
	Gateway       adapter.PaymentGateway
	Subscriptions SubscriptionUseCase
	Effects       *Effects
	Locker        adapter.Locker      // optional
	Limiter       adapter.RateLimiter // optional
}

type PaymentUseCase interface {
	StartPayment(ctx context.Context, communityID, memberID, methodName string) (*model.PaymentAttempt, error)
	// PollOnce advances one attempt; duplicate concurrent calls are no-ops.
	PollOnce(ctx context.Context, attemptID string) error
	ListDue(ctx context.Context, limit int) ([]*model.PaymentAttempt, error)
	Get(ctx context.Context, attemptID string) (*model.PaymentAttempt, error)
	ListForMember(ctx context.Context, communityID, memberID string, limit int) ([]*model.PaymentAttempt, error)
	// CountByStatus also refreshes the attempts gauge.
	CountByStatus(ctx context.Context) (map[model.PaymentStatus]int, error)
}

type paymentUC struct {
	deps   PaymentDeps
	cfg    PaymentConfig
	flight singleflight.Group
	log    *zerolog.Logger
}

func NewPaymentUseCase(deps PaymentDeps, cfg PaymentConfig, logger *zerolog.Logger) *paymentUC {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 20 * time.Minute
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	if cfg.StartWindow <= 0 {
		cfg.StartWindow = 10 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &paymentUC{deps: deps, cfg: cfg, log: logger}
}

func (u *paymentUC) StartPayment(ctx context.Context, communityID, memberID, methodName string) (*model.PaymentAttempt, error) {
	if communityID == "" || memberID == "" {
		return nil, domain.ErrInvalidArgument
	}
	ctx = logging.WithMemberID(logging.WithCommunityID(ctx, communityID), memberID)
	if err := u.checkStartLimit(ctx, communityID, memberID); err != nil {
		return nil, err
	}

	c, err := u.deps.Communities.FindByID(ctx, repository.NoTX, communityID)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && !c.Configured()) {
		return nil, domain.ErrCommunityNotConfigured
	}
	if err != nil {
		return nil, err
	}
	m, err := findMethod(ctx, u.deps.Methods, communityID, methodName)
	if err != nil {
		return nil, err
	}

	created, err := u.deps.Gateway.CreatePayment(ctx, adapter.CreatePaymentRequest{
		PayoutAddress: m.PayoutAddress,
		Coin:          m.Coin,
		Network:       m.Network,
		Amount:        m.Amount,
		Params:        m.Params,
		Donation:      m.Kind == model.MethodKindDonation,
	})
	if err != nil {
		return nil, fmt.Errorf("create gateway payment: %w", err)
	}

	now := u.cfg.Now()
	a, err := model.NewPaymentAttempt(ulid.Make().String(), m, memberID, now, u.cfg.Interval, u.cfg.SessionTTL)
	if err != nil {
		return nil, err
	}
	a.GatewayID = created.GatewayID
	a.CheckoutURL = created.CheckoutURL
	a.StatusURL = created.StatusURL
	a.GatewayStatus = created.RawStatus
	a.Payload = created.Payload
	if err := u.deps.Attempts.Save(ctx, repository.NoTX, a); err != nil {
		return nil, fmt.Errorf("save attempt: %w", err)
	}
	metrics.IncPaymentAttempt("created")

	logging.With(logging.WithAttemptID(ctx, a.ID), u.log).Info().
		Str("method_id", m.ID).Str("gateway_id", a.GatewayID).Msg("payment started")
	u.deps.Effects.DM(ctx, memberID, i18n.KeyPaymentStarted, m.Name, int(u.cfg.SessionTTL/time.Minute), a.CheckoutURL)
	return a, nil
}

// checkStartLimit fails open when the limiter itself is unavailable.
func (u *paymentUC) checkStartLimit(ctx context.Context, communityID, memberID string) error {
	if u.deps.Limiter == nil || u.cfg.StartLimit <= 0 {
		return nil
	}
	ok, err := u.deps.Limiter.Allow(ctx, red.MemberCommandKey(communityID, memberID, "pay"), u.cfg.StartLimit, u.cfg.StartWindow)
	if err != nil {
		u.log.Warn().Err(err).Str("member_id", memberID).Msg("rate limiter unavailable")
		return nil
	}
	if !ok {
		return domain.ErrRateLimited
	}
	return nil
}

func (u *paymentUC) PollOnce(ctx context.Context, attemptID string) error {
	defer logging.TraceDuration(u.log, "PaymentUC.PollOnce")()
	_, err, _ := u.flight.Do(attemptID, func() (interface{}, error) {
		return nil, u.pollLocked(ctx, attemptID)
	})
	return err
}

func (u *paymentUC) pollLocked(ctx context.Context, id string) error {
	if u.deps.Locker != nil {
		key := red.PollLockKey(id)
		token, err := u.deps.Locker.TryLock(ctx, key, u.cfg.LockTTL)
		switch {
		case errors.Is(err, domain.ErrLockHeld):
			return nil
		case err != nil:
			// the store CAS still guards the transition
			u.log.Warn().Err(err).Str("attempt_id", id).Msg("poll lock unavailable")
		default:
			defer func() {
				if err := u.deps.Locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
					u.log.Warn().Err(err).Str("attempt_id", id).Msg("poll unlock failed")
				}
			}()
		}
	}
	return u.poll(ctx, id)
}

func (u *paymentUC) poll(ctx context.Context, id string) error {
	a, err := u.deps.Attempts.FindByID(ctx, repository.NoTX, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if a.Status != model.PaymentStatusPending {
		return nil
	}
	log := logging.With(logging.WithAttemptID(ctx, a.ID), u.log)

	rep, err := u.status(ctx, a)
	now := u.cfg.Now()
	switch {
	case errors.Is(err, domain.ErrUnknownGatewayPayment):
		metrics.IncGatewayPoll("unknown")
		return u.resolve(ctx, a, outcome{status: model.PaymentStatusFailed, raw: model.GatewayStatusUnknownID})
	case err != nil:
		metrics.IncGatewayPoll("transient")
		if a.HorizonExceeded(now) {
			return u.expireLocally(ctx, a)
		}
		a.ScheduleRetry(now, u.cfg.Interval, u.cfg.MaxBackoff)
		if _, err := u.deps.Attempts.ReschedulePoll(ctx, repository.NoTX, a.ID, a.PollFailures, a.NextPollAt); err != nil {
			return err
		}
		log.Warn().Err(err).Int("failures", a.PollFailures).Time("next_poll_at", a.NextPollAt).Msg("gateway status unavailable, backing off")
		return nil
	case rep.Status.IsTerminal():
		metrics.IncGatewayPoll("terminal")
		return u.resolve(ctx, a, outcome{
			status:   rep.Status,
			raw:      rep.RawStatus,
			partial:  rep.Partial,
			report:   rep,
			fromGate: true,
		})
	}

	metrics.IncGatewayPoll("pending")
	if a.HorizonExceeded(now) {
		return u.expireLocally(ctx, a)
	}
	prev := a.GatewayStatus
	a.ScheduleNext(now, u.cfg.Interval)
	if rep.RawStatus == prev {
		_, err := u.deps.Attempts.ReschedulePoll(ctx, repository.NoTX, a.ID, 0, a.NextPollAt)
		return err
	}
	won, err := u.deps.Attempts.RecordProgress(ctx, repository.NoTX, a.ID, prev, rep.RawStatus, rep.Payload, a.NextPollAt)
	if err != nil {
		return err
	}
	if won {
		log.Info().Str("from", prev).Str("to", rep.RawStatus).Msg("gateway status changed")
		u.deps.Effects.Notify(ctx, EventPaymentStatus, a.WebhookURL, statusPayload(rep.Payload, a.MemberID, false))
	}
	return nil
}

func (u *paymentUC) status(ctx context.Context, a *model.PaymentAttempt) (*adapter.StatusReport, error) {
	if u.cfg.StatusTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.cfg.StatusTimeout)
		defer cancel()
	}
	return u.deps.Gateway.GetStatus(ctx, a.GatewayID, a.StatusURL)
}

type outcome struct {
	status   model.PaymentStatus
	raw      string
	partial  bool
	report   *adapter.StatusReport
	fromGate bool
}

func (u *paymentUC) expireLocally(ctx context.Context, a *model.PaymentAttempt) error {
	logging.With(logging.WithAttemptID(ctx, a.ID), u.log).Info().
		Err(domain.ErrHorizonExceeded).Time("deadline_at", a.DeadlineAt).Msg("attempt expiring locally")
	return u.resolve(ctx, a, outcome{status: model.PaymentStatusExpired, raw: model.GatewayStatusLocalTimeout})
}

// resolve applies a terminal transition. Only the caller whose CAS wins
// performs the side effects.
func (u *paymentUC) resolve(ctx context.Context, a *model.PaymentAttempt, o outcome) error {
	var (
		won    bool
		method *model.PaymentMethod
		sub    *model.Subscription
	)
	err := u.deps.Tx.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		cur, err := u.deps.Attempts.FindByID(ctx, tx, a.ID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if cur.Status != model.PaymentStatusPending {
			return nil
		}

		res := repository.AttemptResolution{
			ID:            cur.ID,
			Status:        o.status,
			GatewayStatus: o.raw,
			Payload:       cur.Payload,
			ResolvedAt:    u.cfg.Now(),
		}
		if o.report != nil {
			res.Amount = o.report.Amount
			res.Currency = o.report.Currency
			res.Payload = o.report.Payload
		}

		if o.status == model.PaymentStatusPaid {
			m, err := u.deps.Methods.FindByID(ctx, tx, cur.MethodID)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			method = m
			if m.GrantsSubscription() {
				s, err := u.deps.Subscriptions.Activate(ctx, tx, cur, m)
				if err != nil {
					return fmt.Errorf("activate subscription: %w", err)
				}
				sub = s
				res.SubscriptionID = &s.ID
			}
		}

		ok, err := u.deps.Attempts.Resolve(ctx, tx, res)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrStoreConflict
		}
		cur.Status = o.status
		cur.GatewayStatus = o.raw
		cur.Payload = res.Payload
		cur.ResolvedAt = &res.ResolvedAt
		cur.SubscriptionID = res.SubscriptionID
		*a = *cur
		won = true
		return nil
	})
	if errors.Is(err, domain.ErrStoreConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve attempt: %w", err)
	}
	if !won {
		return nil
	}

	metrics.IncPaymentAttempt(string(o.status))
	logging.With(logging.WithAttemptID(ctx, a.ID), u.log).Info().
		Str("status", string(o.status)).Str("gateway_status", o.raw).Msg("payment resolved")
	u.afterResolve(ctx, a, o, method, sub)
	return nil
}

func (u *paymentUC) afterResolve(ctx context.Context, a *model.PaymentAttempt, o outcome, m *model.PaymentMethod, sub *model.Subscription) {
	fx := u.deps.Effects
	switch o.status {
	case model.PaymentStatusPaid:
		if m.GrantsRole() {
			// a failed grant is logged and counted; the payment stays paid
			_ = fx.Grant(ctx, a.CommunityID, a.MemberID, *m.RoleID)
		}
		fx.Notify(ctx, EventPaymentStatus, a.WebhookURL, statusPayload(a.Payload, a.MemberID, sub != nil))
		if sub != nil {
			fx.DM(ctx, a.MemberID, i18n.KeyPaymentConfirmedUntil, sub.ExpiresAt.Format(time.RFC1123))
		} else {
			fx.DM(ctx, a.MemberID, i18n.KeyPaymentConfirmed)
		}
	case model.PaymentStatusFailed:
		switch {
		case o.partial:
			fx.DM(ctx, a.MemberID, i18n.KeyPaymentPartial)
		case o.raw == model.GatewayStatusUnknownID:
			fx.DM(ctx, a.MemberID, i18n.KeyPaymentUnknown)
		default:
			fx.DM(ctx, a.MemberID, i18n.KeyPaymentStatusUpdated, o.raw)
		}
		if o.fromGate {
			fx.Notify(ctx, EventPaymentStatus, a.WebhookURL, statusPayload(a.Payload, a.MemberID, false))
		}
	case model.PaymentStatusExpired:
		if !o.fromGate {
			fx.DM(ctx, a.MemberID, i18n.KeyPaymentSessionExpired)
			return
		}
		fx.DM(ctx, a.MemberID, i18n.KeyPaymentStatusUpdated, o.raw)
		fx.Notify(ctx, EventPaymentStatus, a.WebhookURL, statusPayload(a.Payload, a.MemberID, false))
	default:
		fx.DM(ctx, a.MemberID, i18n.KeyPaymentStatusUpdated, o.raw)
		fx.Notify(ctx, EventPaymentStatus, a.WebhookURL, statusPayload(a.Payload, a.MemberID, false))
	}
}

// statusPayload is the raw gateway payload plus the payer id.
func statusPayload(raw map[string]any, memberID string, subscriptionActive bool) map[string]any {
	p := make(map[string]any, len(raw)+2)
	for k, v := range raw {
		p[k] = v
	}
	p["discord_id"] = memberID
	if subscriptionActive {
		p["subscription_active"] = true
	}
	return p
}

func (u *paymentUC) ListDue(ctx context.Context, limit int) ([]*model.PaymentAttempt, error) {
	return u.deps.Attempts.ListDue(ctx, repository.NoTX, u.cfg.Now(), limit)
}

func (u *paymentUC) Get(ctx context.Context, attemptID string) (*model.PaymentAttempt, error) {
	return u.deps.Attempts.FindByID(ctx, repository.NoTX, attemptID)
}

func (u *paymentUC) ListForMember(ctx context.Context, communityID, memberID string, limit int) ([]*model.PaymentAttempt, error) {
	if limit <= 0 {
		limit = 20
	}
	return u.deps.Attempts.ListByMember(ctx, repository.NoTX, communityID, memberID, limit)
}

func (u *paymentUC) CountByStatus(ctx context.Context) (map[model.PaymentStatus]int, error) {
	counts, err := u.deps.Attempts.CountByStatus(ctx, repository.NoTX)
	if err != nil {
		return nil, err
	}
	metrics.SetPaymentAttemptsByStatus(counts)
	return counts, nil
}
