package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/blackrockpay/terminal-gateway/internal/platform/database"
	"github.com/blackrockpay/terminal-gateway/internal/terminal_service/domain"
	"github.com/blackrockpay/terminal-gateway/internal/terminal_service/repository"
)

const transactionColumns = `id, merchant_id, terminal_id, protocol, amount, currency, state,
       decline_reason, approval_code, response_code, batch_number, offline, retry_count,
       traces, created_at, updated_at, settled_at, state_deadline`

type pgTransactionRepository struct {
	logger *slog.Logger
}

// NewPgTransactionRepository creates the PostgreSQL TransactionRepository.
func NewPgTransactionRepository(logger *slog.Logger) repository.TransactionRepository {
	return &pgTransactionRepository{logger: logger.With("repository", "transactions")}
}

func (r *pgTransactionRepository) Create(ctx context.Context, q database.Querier, txn *domain.Transaction) error {
	now := time.Now().UTC()
	txn.CreatedAt = now
	txn.UpdatedAt = now

	traces, err := json.Marshal(txn.Traces)
	if err != nil {
		return fmt.Errorf("marshal traces: %w", err)
	}

	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err = q.Exec(ctx, query,
		txn.ID, txn.MerchantID, txn.TerminalID, txn.Protocol, txn.Amount, txn.Currency, txn.State,
		txn.DeclineReason, txn.ApprovalCode, txn.ResponseCode, txn.BatchNumber, txn.Offline, txn.RetryCount,
		traces, txn.CreatedAt, txn.UpdatedAt, txn.SettledAt, txn.StateDeadline,
	)
	return err
}

func (r *pgTransactionRepository) GetByID(ctx context.Context, q database.Querier, id uuid.UUID) (*domain.Transaction, error) {
	row := q.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	txn, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return txn, nil
}

func (r *pgTransactionRepository) GetByMerchant(ctx context.Context, q database.Querier, merchantID string, limit, offset int) ([]domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE merchant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := q.Query(ctx, query, merchantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *txn)
	}
	return out, rows.Err()
}

func (r *pgTransactionRepository) Update(ctx context.Context, q database.Querier, txn *domain.Transaction, expectedState domain.State) error {
	txn.UpdatedAt = time.Now().UTC()

	traces, err := json.Marshal(txn.Traces)
	if err != nil {
		return fmt.Errorf("marshal traces: %w", err)
	}

	query := `
		UPDATE transactions
		SET state = $3, decline_reason = $4, approval_code = $5, response_code = $6,
		    amount = $7, offline = $8, retry_count = $9, traces = $10,
		    updated_at = $11, settled_at = $12, state_deadline = $13
		WHERE id = $1 AND state = $2
	`
	tag, err := q.Exec(ctx, query,
		txn.ID, expectedState, txn.State, txn.DeclineReason, txn.ApprovalCode, txn.ResponseCode,
		txn.Amount, txn.Offline, txn.RetryCount, traces,
		txn.UpdatedAt, txn.SettledAt, txn.StateDeadline,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrStateConflict
	}
	return nil
}

func (r *pgTransactionRepository) ListInState(ctx context.Context, q database.Querier, state domain.State, limit int) ([]domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE state = $1
		ORDER BY updated_at ASC
		LIMIT $2
	`
	rows, err := q.Query(ctx, query, state, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *txn)
	}
	return out, rows.Err()
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	txn := &domain.Transaction{}
	var traces []byte
	err := row.Scan(
		&txn.ID, &txn.MerchantID, &txn.TerminalID, &txn.Protocol, &txn.Amount, &txn.Currency, &txn.State,
		&txn.DeclineReason, &txn.ApprovalCode, &txn.ResponseCode, &txn.BatchNumber, &txn.Offline, &txn.RetryCount,
		&traces, &txn.CreatedAt, &txn.UpdatedAt, &txn.SettledAt, &txn.StateDeadline,
	)
	if err != nil {
		return nil, err
	}
	if len(traces) > 0 {
		if err := json.Unmarshal(traces, &txn.Traces); err != nil {
			return nil, fmt.Errorf("unmarshal traces: %w", err)
		}
	}
	return txn, nil
}
