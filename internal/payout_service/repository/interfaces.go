package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/blackrockpay/terminal-gateway/internal/payout_service/domain"
	"github.com/blackrockpay/terminal-gateway/internal/platform/database"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrStatusConflict is returned by status-guarded updates when the row's
	// status no longer matches what the caller read.
	ErrStatusConflict = errors.New("payout status changed concurrently")
)

// PayoutRepository persists payouts and their source references.
type PayoutRepository interface {
	// Create inserts the payout and one source row per transaction.
	Create(ctx context.Context, q database.Querier, p *domain.Payout) error
	GetByID(ctx context.Context, q database.Querier, id uuid.UUID) (*domain.Payout, error)
	GetByMerchant(ctx context.Context, q database.Querier, merchantID string, limit, offset int) ([]domain.Payout, error)
	// Update writes p's mutable fields guarded by the status the caller
	// read; ErrStatusConflict when the row has moved on.
	Update(ctx context.Context, q database.Querier, p *domain.Payout, expected domain.Status) error
	// ListByStatus feeds the advancer worker.
	ListByStatus(ctx context.Context, q database.Querier, status domain.Status, limit int) ([]domain.Payout, error)
	// ActiveSourceConflicts returns the subset of ids already referenced by
	// a non-failed payout. Called inside the submission transaction to keep
	// each settled transaction in at most one live payout.
	ActiveSourceConflicts(ctx context.Context, q database.Querier, ids []uuid.UUID) ([]uuid.UUID, error)
}

// SourceTransaction is the payout service's read-only view of a transaction
// owned by the terminal service.
type SourceTransaction struct {
	ID         uuid.UUID
	MerchantID string
	Amount     int64
	Currency   string
	State      string
}

// TransactionReader exposes settled-transaction lookups for payout
// eligibility checks.
type TransactionReader interface {
	GetByID(ctx context.Context, q database.Querier, id uuid.UUID) (*SourceTransaction, error)
}
