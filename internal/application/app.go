// Package application wires config, stores, adapters and use cases into a
// runnable process.
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"crypto-role-subscription/internal/config"
	"crypto-role-subscription/internal/domain/ports/adapter"
	"crypto-role-subscription/internal/infra/adapters/discord"
	"crypto-role-subscription/internal/infra/adapters/noop"
	"crypto-role-subscription/internal/infra/adapters/payment"
	"crypto-role-subscription/internal/infra/adapters/telegram"
	"crypto-role-subscription/internal/infra/adapters/webhook"
	"crypto-role-subscription/internal/infra/api"
	pg "crypto-role-subscription/internal/infra/db/postgres"
	"crypto-role-subscription/internal/infra/i18n"
	red "crypto-role-subscription/internal/infra/redis"
	"crypto-role-subscription/internal/infra/sched"
	"crypto-role-subscription/internal/infra/worker"
	"crypto-role-subscription/internal/usecase"
)

// App holds every long-lived component of the process.
type App struct {
	Config *config.Config

	Communities   usecase.CommunityUseCase
	Methods       usecase.MethodUseCase
	Payments      usecase.PaymentUseCase
	Subscriptions usecase.SubscriptionUseCase
	Auth          *api.AuthManager

	pool    *pgxpool.Pool
	redis   *red.Client
	workers *worker.Pool
	poller  *sched.PaymentPoller
	sweeper *sched.SubscriptionSweeper
	server  *api.Server
	log     *zerolog.Logger
}

// Build connects to Postgres and Redis and assembles the object graph.
// When migrate is set the schema is applied before anything else runs.
func Build(ctx context.Context, cfg *config.Config, migrate bool, logger *zerolog.Logger) (*App, error) {
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if migrate {
		if err := pg.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}

	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}

	app, err := assemble(cfg, pool, redisClient, logger)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, err
	}
	return app, nil
}

func assemble(cfg *config.Config, pool *pgxpool.Pool, redisClient *red.Client, logger *zerolog.Logger) (*App, error) {
	// ---- Repositories ----
	communityRepo := pg.NewCommunityRepo(pool)
	methodRepo := pg.NewMethodRepoCacheDecorator(pg.NewPaymentMethodRepo(pool), redisClient, cfg.Redis.TTL)
	attemptRepo := pg.NewPaymentAttemptRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	tm := pg.NewTxManager(pool)

	// ---- Adapters ----
	gateway, err := payment.NewAnonPayGateway(cfg.Gateway, logger)
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	sink := webhook.NewSink(cfg.Webhook, cfg.Gateway.UserAgent)
	roles, msgr, err := NewEffector(cfg, logger)
	if err != nil {
		return nil, err
	}
	tr, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Locale)
	if err != nil {
		return nil, fmt.Errorf("locale: %w", err)
	}

	// ---- Use cases ----
	effects := usecase.NewEffects(roles, sink, msgr, tr, usecase.EffectsConfig{
		MaxAttempts: cfg.Effector.MaxAttempts,
		Backoff:     cfg.Effector.Backoff,
	}, logger)
	subUC := usecase.NewSubscriptionUseCase(subRepo, methodRepo, communityRepo, tm, effects, usecase.SubscriptionConfig{
		NoticeWindow: cfg.Subscriptions.NoticeWindow,
		RunTimeout:   cfg.Subscriptions.RunTimeout,
		Batch:        cfg.Subscriptions.Batch,
	}, logger)
	payUC := usecase.NewPaymentUseCase(usecase.PaymentDeps{
		Communities:   communityRepo,
		Methods:       methodRepo,
		Attempts:      attemptRepo,
		Tx:            tm,
		Gateway:       gateway,
		Subscriptions: subUC,
		Effects:       effects,
		Locker:        red.NewLocker(redisClient),
		Limiter:       red.NewRateLimiter(redisClient),
	}, usecase.PaymentConfig{
		Interval:      cfg.Poller.Interval,
		SessionTTL:    cfg.Poller.SessionTTL,
		MaxBackoff:    cfg.Poller.MaxBackoff,
		StatusTimeout: cfg.Gateway.Timeout,
		LockTTL:       cfg.Poller.LockTTL,
		StartLimit:    cfg.Payments.StartLimit,
		StartWindow:   cfg.Payments.StartWindow,
	}, logger)
	communityUC := usecase.NewCommunityUseCase(communityRepo, logger)
	methodUC := usecase.NewMethodUseCase(communityRepo, methodRepo, subUC, logger)

	// ---- Workers and API ----
	workers := worker.NewPool(cfg.Poller.Workers, logger)
	auth := api.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.TokenTTL)

	return &App{
		Config:        cfg,
		Communities:   communityUC,
		Methods:       methodUC,
		Payments:      payUC,
		Subscriptions: subUC,
		Auth:          auth,
		pool:          pool,
		redis:         redisClient,
		workers:       workers,
		poller:        sched.NewPaymentPoller(payUC, workers, cfg.Poller.Tick, cfg.Poller.Batch, logger),
		sweeper:       sched.NewSubscriptionSweeper(subUC, cfg.Subscriptions.SweepSchedule, logger),
		server:        api.NewServer(communityUC, methodUC, payUC, subUC, auth, logger),
		log:           logger,
	}, nil
}

// NewEffector picks the role effector and member messenger for the configured driver.
func NewEffector(cfg *config.Config, logger *zerolog.Logger) (adapter.RoleEffector, adapter.MemberMessenger, error) {
	switch cfg.Effector.Driver {
	case "discord":
		c, err := discord.NewClient(cfg.Discord, cfg.Effector.RatePerSecond, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("discord: %w", err)
		}
		return discord.NewRoleEffector(c), discord.NewMessenger(c), nil
	case "telegram":
		bot, err := telegram.NewBot(cfg.Telegram.Token)
		if err != nil {
			return nil, nil, fmt.Errorf("telegram: %w", err)
		}
		e := telegram.NewChatEffector(bot, cfg.Effector.RatePerSecond)
		return e, e, nil
	case "noop":
		e := noop.NewEffector(logger)
		return e, e, nil
	default:
		return nil, nil, fmt.Errorf("effector driver %q is not supported", cfg.Effector.Driver)
	}
}

// Run starts the worker pool, poller, sweeper, pool stats reporter and admin
// API, and blocks until ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	a.workers.Start(ctx)
	defer a.workers.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.poller.Run(ctx) })
	g.Go(func() error { return a.sweeper.Run(ctx) })
	g.Go(func() error {
		pg.ReportPoolStats(ctx, a.pool, 15*time.Second)
		return nil
	})
	g.Go(func() error { return a.server.Run(ctx, a.Config.Admin.Port) })

	a.log.Info().
		Str("effector", a.Config.Effector.Driver).
		Int("port", a.Config.Admin.Port).
		Msg("application started")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close releases the database pool and the Redis client.
func (a *App) Close() {
	if err := a.redis.Close(); err != nil {
		a.log.Warn().Err(err).Msg("close redis")
	}
	a.pool.Close()
}

// MintAdminToken signs an admin API token without touching any store.
func MintAdminToken(cfg *config.Config, subject string) (string, error) {
	return api.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.TokenTTL).Mint(subject)
}
