package sched

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"crypto-role-subscription/internal/domain/model"
	"crypto-role-subscription/internal/infra/worker"
)

// DuePoller is the part of the payment use case the poller drives.
type DuePoller interface {
	ListDue(ctx context.Context, limit int) ([]*model.PaymentAttempt, error)
	PollOnce(ctx context.Context, attemptID string) error
}

// Submitter accepts tasks without blocking.
type Submitter interface {
	Submit(task worker.Task) error
}

// PaymentPoller scans for attempts whose next poll is due and hands each one
// to the worker pool. An attempt already queued or running is not resubmitted.
type PaymentPoller struct {
	uc     DuePoller
	pool   Submitter
	tick   time.Duration
	batch  int
	queued sync.Map // attempt id -> struct{}
	log    *zerolog.Logger
}

func NewPaymentPoller(uc DuePoller, pool Submitter, tick time.Duration, batch int, logger *zerolog.Logger) *PaymentPoller {
	if tick <= 0 {
		tick = 5 * time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	l := logger.With().Str("component", "PaymentPoller").Logger()
	return &PaymentPoller{uc: uc, pool: pool, tick: tick, batch: batch, log: &l}
}

func (p *PaymentPoller) Run(ctx context.Context) error {
	p.log.Info().Dur("tick", p.tick).Msg("Starting payment poller")
	// pending attempts from a previous run are picked up on the first scan
	p.Scan(ctx)

	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("Stopping payment poller")
			return ctx.Err()
		case <-ticker.C:
			p.Scan(ctx)
		}
	}
}

// Scan submits every due attempt once and returns how many were queued.
func (p *PaymentPoller) Scan(ctx context.Context) int {
	due, err := p.uc.ListDue(ctx, p.batch)
	if err != nil {
		p.log.Error().Err(err).Msg("list due attempts failed")
		return 0
	}
	queued := 0
	for _, a := range due {
		id := a.ID
		if _, busy := p.queued.LoadOrStore(id, struct{}{}); busy {
			continue
		}
		err := p.pool.Submit(func(ctx context.Context) error {
			defer p.queued.Delete(id)
			return p.uc.PollOnce(ctx, id)
		})
		if err != nil {
			p.queued.Delete(id)
			if errors.Is(err, worker.ErrQueueFull) {
				p.log.Warn().Int("remaining", len(due)-queued).Msg("worker queue full, deferring to next tick")
				break
			}
			p.log.Error().Err(err).Str("attempt_id", id).Msg("submit poll failed")
			continue
		}
		queued++
	}
	if queued > 0 {
		p.log.Debug().Int("queued", queued).Msg("due attempts submitted")
	}
	return queued
}
