package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/blackrockpay/terminal-gateway/internal/payout_service/adapters/rail"
	"github.com/blackrockpay/terminal-gateway/internal/payout_service/domain"
	"github.com/blackrockpay/terminal-gateway/internal/payout_service/repository"
	"github.com/blackrockpay/terminal-gateway/internal/platform/config"
	"github.com/blackrockpay/terminal-gateway/internal/platform/database"
	"github.com/blackrockpay/terminal-gateway/internal/platform/keyedmutex"
)

// settledState is the transaction state eligible for payout, as the
// terminal service records it.
const settledState = "SETTLED"

// ErrNoSources rejects submissions without source transactions.
var ErrNoSources = errors.New("payout needs at least one source transaction")

// TxQuerier is a Querier that can also open database transactions.
type TxQuerier interface {
	database.Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// SubmitRequest carries the validated input for a new payout.
type SubmitRequest struct {
	MerchantID           string
	Destination          domain.Destination
	SourceTransactionIDs []uuid.UUID
}

// PayoutService owns the payout lifecycle: it admits settled transactions
// into payouts, pushes them over the configured rails, and publishes status
// events. The no-double-payout rule is enforced inside the submission
// transaction.
type PayoutService struct {
	db        TxQuerier
	payouts   repository.PayoutRepository
	txReader  repository.TransactionReader
	rails     rail.Registry
	publisher EventPublisher
	locks     *keyedmutex.KeyedMutex
	cfg       *config.Config
	logger    *slog.Logger
	now       func() time.Time
}

func NewPayoutService(
	db TxQuerier,
	payouts repository.PayoutRepository,
	txReader repository.TransactionReader,
	rails rail.Registry,
	publisher EventPublisher,
	cfg *config.Config,
	logger *slog.Logger,
) *PayoutService {
	return &PayoutService{
		db:        db,
		payouts:   payouts,
		txReader:  txReader,
		rails:     rails,
		publisher: publisher,
		locks:     keyedmutex.New(),
		cfg:       cfg,
		logger:    logger.With("component", "payout_service"),
		now:       time.Now,
	}
}

// Submit admits a new payout over the given source transactions. Every
// source must be a settled transaction of the submitting merchant, all in
// one currency, and not already covered by a non-failed payout.
func (s *PayoutService) Submit(ctx context.Context, req SubmitRequest) (*domain.Payout, error) {
	if err := req.Destination.Validate(); err != nil {
		payoutSubmissionsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	if len(req.SourceTransactionIDs) == 0 {
		payoutSubmissionsTotal.WithLabelValues("rejected").Inc()
		return nil, ErrNoSources
	}

	// Sorted locking keeps concurrent submissions over overlapping sources
	// from deadlocking; it also serializes the duplicate check below.
	ids := make([]uuid.UUID, len(req.SourceTransactionIDs))
	copy(ids, req.SourceTransactionIDs)
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	for i := range ids {
		if i > 0 && ids[i] == ids[i-1] {
			payoutSubmissionsTotal.WithLabelValues("rejected").Inc()
			return nil, domain.ErrAlreadyPaidOut
		}
	}
	for _, id := range ids {
		s.locks.Lock(id.String())
	}
	defer func() {
		for _, id := range ids {
			s.locks.Unlock(id.String())
		}
	}()

	var amount int64
	currency := ""
	for _, id := range ids {
		txn, err := s.txReader.GetByID(ctx, s.db, id)
		if errors.Is(err, repository.ErrNotFound) {
			payoutSubmissionsTotal.WithLabelValues("rejected").Inc()
			return nil, domain.ErrIneligibleTransaction
		}
		if err != nil {
			return nil, fmt.Errorf("load source transaction %s: %w", id, err)
		}
		if txn.MerchantID != req.MerchantID || txn.State != settledState {
			payoutSubmissionsTotal.WithLabelValues("rejected").Inc()
			return nil, domain.ErrIneligibleTransaction
		}
		if currency == "" {
			currency = txn.Currency
		} else if txn.Currency != currency {
			payoutSubmissionsTotal.WithLabelValues("rejected").Inc()
			return nil, domain.ErrCurrencyMismatch
		}
		amount += txn.Amount
	}

	now := s.now()
	payout := &domain.Payout{
		ID:                   uuid.New(),
		MerchantID:           req.MerchantID,
		Amount:               amount,
		Currency:             currency,
		Status:               domain.StatusPending,
		Destination:          req.Destination,
		SourceTransactionIDs: ids,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	err := pgx.BeginFunc(ctx, s.db, func(dbtx pgx.Tx) error {
		conflicts, err := s.payouts.ActiveSourceConflicts(ctx, dbtx, ids)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return domain.ErrAlreadyPaidOut
		}
		return s.payouts.Create(ctx, dbtx, payout)
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyPaidOut) {
			payoutSubmissionsTotal.WithLabelValues("rejected").Inc()
		}
		return nil, err
	}

	payoutSubmissionsTotal.WithLabelValues("accepted").Inc()
	s.publish(ctx, payout)
	s.logger.InfoContext(ctx, "payout submitted",
		"payout_id", payout.ID, "merchant_id", payout.MerchantID,
		"amount", payout.Amount, "currency", payout.Currency, "sources", len(ids))
	return payout, nil
}

// GetPayout loads one payout for its owning merchant.
func (s *PayoutService) GetPayout(ctx context.Context, merchantID string, id uuid.UUID) (*domain.Payout, error) {
	p, err := s.payouts.GetByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if p.MerchantID != merchantID {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

// ListPayouts pages through a merchant's payouts, newest first.
func (s *PayoutService) ListPayouts(ctx context.Context, merchantID string, limit, offset int) ([]domain.Payout, error) {
	return s.payouts.GetByMerchant(ctx, s.db, merchantID, limit, offset)
}

// move persists a status change guarded by the status the caller read and
// publishes the matching event.
func (s *PayoutService) move(ctx context.Context, p *domain.Payout, to domain.Status) error {
	from := p.Status
	p.Status = to
	p.UpdatedAt = s.now()
	if err := s.payouts.Update(ctx, s.db, p, from); err != nil {
		p.Status = from
		return err
	}
	payoutStatusTotal.WithLabelValues(string(from), string(to)).Inc()
	if to == domain.StatusConfirmed {
		payoutAmountTotal.WithLabelValues(p.Currency).Add(float64(p.Amount))
	}
	s.publish(ctx, p)
	s.logger.InfoContext(ctx, "payout status change",
		"payout_id", p.ID, "from", from, "to", to, "reason", p.FailureReason)
	return nil
}

func (s *PayoutService) publish(ctx context.Context, p *domain.Payout) {
	payload, err := json.Marshal(newPayoutEvent(p, s.now()))
	if err != nil {
		s.logger.ErrorContext(ctx, "marshal payout event failed", "payout_id", p.ID, "error", err)
		return
	}
	if err := s.publisher.Publish(ctx, payoutSubject(p.Status), payload); err != nil {
		s.logger.WarnContext(ctx, "payout event publish failed",
			"subject", payoutSubject(p.Status), "payout_id", p.ID, "error", err)
	}
}
