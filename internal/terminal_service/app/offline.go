package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/blackrockpay/terminal-gateway/internal/terminal_service/domain"
)

// offlineDrainLimit bounds how many queued transactions one pass replays.
const offlineDrainLimit = 100

// RunOfflineWorker drains the offline queue on the retry delay until ctx is
// cancelled.
func (s *TransactionService) RunOfflineWorker(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.OfflineRetryDelay())
	defer ticker.Stop()
	s.logger.InfoContext(ctx, "offline retry worker started",
		"delay", s.cfg.OfflineRetryDelay(), "retry_limit", s.cfg.OfflineRetryLimit)

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "offline retry worker stopped")
			return
		case <-ticker.C:
			if err := s.RetryOffline(ctx); err != nil {
				s.logger.ErrorContext(ctx, "offline retry pass failed", "error", err)
			}
		}
	}
}

// RetryOffline walks the offline queue once: expired or exhausted
// transactions move to OFFLINE_EXPIRED, the rest are replayed when
// connectivity is back and their retry delay has elapsed.
func (s *TransactionService) RetryOffline(ctx context.Context) error {
	queued, err := s.txRepo.ListInState(ctx, s.db, domain.StateOfflineQueued, offlineDrainLimit)
	if err != nil {
		return err
	}
	online := s.processor.Online()

	for i := range queued {
		if err := s.retryOne(ctx, queued[i].ID, online); err != nil {
			s.logger.ErrorContext(ctx, "offline retry failed", "transaction_id", queued[i].ID, "error", err)
		}
	}
	return nil
}

func (s *TransactionService) retryOne(ctx context.Context, id uuid.UUID, online bool) error {
	s.locks.Lock(id.String())
	defer s.locks.Unlock(id.String())

	txn, err := s.txRepo.GetByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if txn.State != domain.StateOfflineQueued {
		return nil
	}

	now := s.now()
	switch {
	case txn.StateDeadline != nil && !txn.StateDeadline.After(now):
		return s.transition(ctx, txn, domain.EventOfflineExpire, domain.ReasonTimeout, "", nil)
	case txn.RetryCount >= s.cfg.OfflineRetryLimit:
		return s.transition(ctx, txn, domain.EventOfflineExpire, domain.ReasonRetryExhausted, "", nil)
	case !online:
		return nil
	case now.Sub(txn.UpdatedAt) < s.cfg.OfflineRetryDelay():
		return nil
	}

	proto, err := domain.LookupProtocol(txn.Protocol)
	if err != nil {
		return err
	}
	txn.RetryCount++
	return s.sendAuthorization(ctx, txn, proto, domain.EventOfflineRetry)
}
