package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/blackrockpay/terminal-gateway/internal/payout_service/repository"
	"github.com/blackrockpay/terminal-gateway/internal/platform/database"
)

type pgTransactionReader struct {
	logger *slog.Logger
}

// NewPgTransactionReader creates a read-only view over the transactions
// table for eligibility checks.
func NewPgTransactionReader(logger *slog.Logger) repository.TransactionReader {
	return &pgTransactionReader{logger: logger.With("repository", "transaction_reader")}
}

func (r *pgTransactionReader) GetByID(ctx context.Context, q database.Querier, id uuid.UUID) (*repository.SourceTransaction, error) {
	query := `SELECT id, merchant_id, amount, currency, state FROM transactions WHERE id = $1`
	var txn repository.SourceTransaction
	err := q.QueryRow(ctx, query, id).Scan(&txn.ID, &txn.MerchantID, &txn.Amount, &txn.Currency, &txn.State)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &txn, nil
}
