package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/blackrockpay/terminal-gateway/internal/platform/database"
	"github.com/blackrockpay/terminal-gateway/internal/terminal_service/correlator"
	"github.com/blackrockpay/terminal-gateway/internal/terminal_service/domain"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrStateConflict is returned by state-guarded updates when the row's
	// state no longer matches what the caller read (optimistic concurrency).
	ErrStateConflict = errors.New("transaction state changed concurrently")
)

// TransactionRepository persists transactions. Methods accept a Querier so
// they run either against the pool or inside a pgx transaction.
type TransactionRepository interface {
	Create(ctx context.Context, q database.Querier, txn *domain.Transaction) error
	GetByID(ctx context.Context, q database.Querier, id uuid.UUID) (*domain.Transaction, error)
	GetByMerchant(ctx context.Context, q database.Querier, merchantID string, limit, offset int) ([]domain.Transaction, error)
	// Update writes txn's mutable fields guarded by the state the caller
	// read; ErrStateConflict when the row has moved on.
	Update(ctx context.Context, q database.Querier, txn *domain.Transaction, expectedState domain.State) error
	// ListInState feeds the offline retry worker.
	ListInState(ctx context.Context, q database.Querier, state domain.State, limit int) ([]domain.Transaction, error)
}

// CorrelationRepository mirrors the in-memory correlator so pending
// exchanges survive a restart.
type CorrelationRepository interface {
	Create(ctx context.Context, q database.Querier, pc correlator.PendingCorrelation) error
	Delete(ctx context.Context, q database.Querier, trace string) error
	ListPending(ctx context.Context, q database.Querier) ([]correlator.PendingCorrelation, error)
}

// NotificationRepository is the durable notification queue: records stay
// undelivered until the merchant-facing consumer acknowledges them.
type NotificationRepository interface {
	Create(ctx context.Context, q database.Querier, n *domain.Notification) error
	ListUndelivered(ctx context.Context, q database.Querier, merchantID string, limit int) ([]domain.Notification, error)
	MarkDelivered(ctx context.Context, q database.Querier, id uuid.UUID, merchantID string, at time.Time) error
}
