package app

import (
	"context"
	"time"

	"github.com/blackrockpay/terminal-gateway/internal/terminal_service/domain"
)

// dwellSweepLimit bounds how many stuck rows one sweep pass examines.
const dwellSweepLimit = 100

// RunSweeper drives SweepExpired on the configured interval until ctx is
// cancelled. Timeouts fire from here, never from request goroutines.
func (s *TransactionService) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval())
	defer ticker.Stop()
	s.logger.InfoContext(ctx, "timeout sweeper started", "interval", s.cfg.SweepInterval())

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "timeout sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepExpired(ctx); err != nil {
				s.logger.ErrorContext(ctx, "sweep pass failed", "error", err)
			}
		}
	}
}

// SweepExpired expires every pending exchange whose deadline has passed,
// force-declining the transactions behind them, and catches transactions
// stranded outside an exchange (a crash between persisting CREATED or
// APPROVED and emitting the next request). Returns the number of
// transactions declined.
func (s *TransactionService) SweepExpired(ctx context.Context) (int, error) {
	now := s.now()
	declined := 0

	for _, pc := range s.correlator.SweepExpired(now) {
		sweptCorrelationsTotal.Inc()
		if err := s.declineExpired(ctx, pc.TransactionID, pc.TraceNumber); err != nil {
			s.logger.ErrorContext(ctx, "expire exchange failed",
				"transaction_id", pc.TransactionID, "trace", pc.TraceNumber, "error", err)
			continue
		}
		declined++
	}

	for _, state := range []domain.State{domain.StateCreated, domain.StateApproved} {
		n, err := s.sweepStranded(ctx, state, now)
		if err != nil {
			return declined, err
		}
		declined += n
	}

	pendingCorrelations.Set(float64(s.correlator.Len()))
	return declined, nil
}

func (s *TransactionService) sweepStranded(ctx context.Context, state domain.State, now time.Time) (int, error) {
	txns, err := s.txRepo.ListInState(ctx, s.db, state, dwellSweepLimit)
	if err != nil {
		return 0, err
	}
	declined := 0
	for i := range txns {
		if txns[i].StateDeadline == nil || txns[i].StateDeadline.After(now) {
			continue
		}
		id := txns[i].ID
		s.locks.Lock(id.String())
		swept := false
		txn, err := s.txRepo.GetByID(ctx, s.db, id)
		if err == nil && txn.State == state {
			err = s.transition(ctx, txn, domain.EventDecline, domain.ReasonTimeout, "", nil)
			swept = err == nil
		}
		s.locks.Unlock(id.String())
		if err != nil {
			s.logger.ErrorContext(ctx, "decline stranded transaction failed", "transaction_id", id, "error", err)
			continue
		}
		if swept {
			declined++
		}
	}
	return declined, nil
}
