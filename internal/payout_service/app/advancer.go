package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/blackrockpay/terminal-gateway/internal/payout_service/adapters/rail"
	"github.com/blackrockpay/terminal-gateway/internal/payout_service/domain"
)

// advanceBatchLimit bounds how many payouts one pass moves per status.
const advanceBatchLimit = 100

// RunAdvancer drives Advance on the configured interval until ctx is
// cancelled. All rail traffic happens here, never in request goroutines.
func (s *PayoutService) RunAdvancer(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PayoutAdvanceInterval())
	defer ticker.Stop()
	s.logger.InfoContext(ctx, "payout advancer started",
		"interval", s.cfg.PayoutAdvanceInterval(), "retry_limit", s.cfg.PayoutRetryLimit)

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "payout advancer stopped")
			return
		case <-ticker.C:
			if err := s.Advance(ctx); err != nil {
				s.logger.ErrorContext(ctx, "advance pass failed", "error", err)
			}
		}
	}
}

// Advance walks the payout pipeline once: pending payouts are submitted to
// their rail, submitted ones polled for confirmation. Transient rail errors
// retry up to the configured limit, permanent ones fail the payout.
func (s *PayoutService) Advance(ctx context.Context) error {
	pending, err := s.payouts.ListByStatus(ctx, s.db, domain.StatusPending, advanceBatchLimit)
	if err != nil {
		return err
	}
	for i := range pending {
		if err := s.advanceOne(ctx, pending[i].ID, s.submitToRail); err != nil {
			s.logger.ErrorContext(ctx, "submit to rail failed", "payout_id", pending[i].ID, "error", err)
		}
	}

	submitted, err := s.payouts.ListByStatus(ctx, s.db, domain.StatusSubmitted, advanceBatchLimit)
	if err != nil {
		return err
	}
	for i := range submitted {
		if err := s.advanceOne(ctx, submitted[i].ID, s.confirmOnRail); err != nil {
			s.logger.ErrorContext(ctx, "confirm on rail failed", "payout_id", submitted[i].ID, "error", err)
		}
	}
	return nil
}

// advanceOne reloads the payout under its lock before applying step, so the
// advancer never races a concurrent status change.
func (s *PayoutService) advanceOne(ctx context.Context, id uuid.UUID, step func(context.Context, *domain.Payout) error) error {
	s.locks.Lock(id.String())
	defer s.locks.Unlock(id.String())

	p, err := s.payouts.GetByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if p.Status.IsTerminal() {
		return nil
	}
	return step(ctx, p)
}

func (s *PayoutService) submitToRail(ctx context.Context, p *domain.Payout) error {
	rl, err := s.rails.For(p.Destination.Type)
	if err != nil {
		p.FailureReason = err.Error()
		return s.move(ctx, p, domain.StatusFailed)
	}

	ref, err := rl.Submit(ctx, p)
	if err != nil {
		return s.handleRailError(ctx, p, rl.Name(), err)
	}

	now := s.now()
	p.RailReference = ref
	p.SubmittedAt = &now
	p.Attempts = 0
	return s.move(ctx, p, domain.StatusSubmitted)
}

func (s *PayoutService) confirmOnRail(ctx context.Context, p *domain.Payout) error {
	rl, err := s.rails.For(p.Destination.Type)
	if err != nil {
		p.FailureReason = err.Error()
		return s.move(ctx, p, domain.StatusFailed)
	}

	err = rl.Confirm(ctx, p.RailReference)
	switch {
	case err == nil:
		now := s.now()
		p.ConfirmedAt = &now
		return s.move(ctx, p, domain.StatusConfirmed)
	case errors.Is(err, rail.ErrNotConfirmed):
		// Still in flight on the rail's side; not a failure.
		return nil
	default:
		return s.handleRailError(ctx, p, rl.Name(), err)
	}
}

// handleRailError retries transient failures within the configured budget
// and fails the payout otherwise. The status does not change on a retryable
// attempt; only the counter moves.
func (s *PayoutService) handleRailError(ctx context.Context, p *domain.Payout, railName string, err error) error {
	if rail.IsTransient(err) {
		railErrorsTotal.WithLabelValues(railName, "transient").Inc()
		p.Attempts++
		if p.Attempts < s.cfg.PayoutRetryLimit {
			p.UpdatedAt = s.now()
			return s.payouts.Update(ctx, s.db, p, p.Status)
		}
		p.FailureReason = "retries exhausted: " + err.Error()
		return s.move(ctx, p, domain.StatusFailed)
	}

	railErrorsTotal.WithLabelValues(railName, "permanent").Inc()
	p.FailureReason = err.Error()
	return s.move(ctx, p, domain.StatusFailed)
}
