package sched

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"crypto-role-subscription/internal/usecase"
)

// Sweeper is the part of the subscription use case the sweeper drives.
type Sweeper interface {
	Sweep(ctx context.Context) (*usecase.SweepReport, error)
}

// SubscriptionSweeper runs the subscription sweep on a cron schedule. A run
// still in progress when the next one fires causes that one to be skipped.
type SubscriptionSweeper struct {
	uc       Sweeper
	schedule string
	log      *zerolog.Logger
}

func NewSubscriptionSweeper(uc Sweeper, schedule string, logger *zerolog.Logger) *SubscriptionSweeper {
	if schedule == "" {
		schedule = "@every 5m"
	}
	l := logger.With().Str("component", "SubscriptionSweeper").Logger()
	return &SubscriptionSweeper{uc: uc, schedule: schedule, log: &l}
}

func (s *SubscriptionSweeper) Run(ctx context.Context) error {
	cl := cronLogger{log: s.log}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := c.AddFunc(s.schedule, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}

	s.log.Info().Str("schedule", s.schedule).Msg("Starting subscription sweeper")
	s.RunOnce(ctx)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	s.log.Info().Msg("Stopping subscription sweeper")
	return ctx.Err()
}

// RunOnce performs a single sweep and logs its outcome.
func (s *SubscriptionSweeper) RunOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	rep, err := s.uc.Sweep(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("subscription sweep failed")
		return
	}
	if rep.Notified > 0 || rep.Expired > 0 || rep.Failed > 0 {
		s.log.Info().Int("notified", rep.Notified).Int("expired", rep.Expired).Int("failed", rep.Failed).Msg("subscription sweep")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log *zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
