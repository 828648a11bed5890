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

	"github.com/blackrockpay/terminal-gateway/internal/payout_service/domain"
	"github.com/blackrockpay/terminal-gateway/internal/payout_service/repository"
	"github.com/blackrockpay/terminal-gateway/internal/platform/database"
)

const payoutColumns = `id, merchant_id, amount, currency, status, destination, source_transaction_ids,
       rail_reference, attempts, failure_reason, created_at, updated_at, submitted_at, confirmed_at`

type pgPayoutRepository struct {
	logger *slog.Logger
}

// NewPgPayoutRepository creates the PostgreSQL PayoutRepository.
func NewPgPayoutRepository(logger *slog.Logger) repository.PayoutRepository {
	return &pgPayoutRepository{logger: logger.With("repository", "payouts")}
}

func (r *pgPayoutRepository) Create(ctx context.Context, q database.Querier, p *domain.Payout) error {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	destination, err := json.Marshal(p.Destination)
	if err != nil {
		return fmt.Errorf("marshal destination: %w", err)
	}

	query := `
		INSERT INTO payouts (` + payoutColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = q.Exec(ctx, query,
		p.ID, p.MerchantID, p.Amount, p.Currency, p.Status, destination, p.SourceTransactionIDs,
		p.RailReference, p.Attempts, p.FailureReason, p.CreatedAt, p.UpdatedAt, p.SubmittedAt, p.ConfirmedAt,
	)
	if err != nil {
		return err
	}

	// One row per source keeps the no-double-payout check a direct lookup.
	for _, txnID := range p.SourceTransactionIDs {
		if _, err := q.Exec(ctx,
			`INSERT INTO payout_sources (payout_id, transaction_id) VALUES ($1, $2)`,
			p.ID, txnID,
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *pgPayoutRepository) GetByID(ctx context.Context, q database.Querier, id uuid.UUID) (*domain.Payout, error) {
	row := q.QueryRow(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE id = $1`, id)
	p, err := scanPayout(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *pgPayoutRepository) GetByMerchant(ctx context.Context, q database.Querier, merchantID string, limit, offset int) ([]domain.Payout, error) {
	query := `
		SELECT ` + payoutColumns + `
		FROM payouts
		WHERE merchant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := q.Query(ctx, query, merchantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectPayouts(rows)
}

func (r *pgPayoutRepository) Update(ctx context.Context, q database.Querier, p *domain.Payout, expected domain.Status) error {
	query := `
		UPDATE payouts
		SET status = $3, rail_reference = $4, attempts = $5, failure_reason = $6,
		    updated_at = $7, submitted_at = $8, confirmed_at = $9
		WHERE id = $1 AND status = $2
	`
	tag, err := q.Exec(ctx, query,
		p.ID, expected, p.Status, p.RailReference, p.Attempts, p.FailureReason,
		p.UpdatedAt, p.SubmittedAt, p.ConfirmedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrStatusConflict
	}
	return nil
}

func (r *pgPayoutRepository) ListByStatus(ctx context.Context, q database.Querier, status domain.Status, limit int) ([]domain.Payout, error) {
	query := `
		SELECT ` + payoutColumns + `
		FROM payouts
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := q.Query(ctx, query, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectPayouts(rows)
}

func (r *pgPayoutRepository) ActiveSourceConflicts(ctx context.Context, q database.Querier, ids []uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT DISTINCT ps.transaction_id
		FROM payout_sources ps
		JOIN payouts p ON p.id = ps.payout_id
		WHERE ps.transaction_id = ANY($1) AND p.status != $2
	`
	rows, err := q.Query(ctx, query, ids, domain.StatusFailed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func scanPayout(row pgx.Row) (*domain.Payout, error) {
	var p domain.Payout
	var destination []byte
	err := row.Scan(
		&p.ID, &p.MerchantID, &p.Amount, &p.Currency, &p.Status, &destination, &p.SourceTransactionIDs,
		&p.RailReference, &p.Attempts, &p.FailureReason, &p.CreatedAt, &p.UpdatedAt, &p.SubmittedAt, &p.ConfirmedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(destination, &p.Destination); err != nil {
		return nil, fmt.Errorf("unmarshal destination: %w", err)
	}
	return &p, nil
}

func collectPayouts(rows pgx.Rows) ([]domain.Payout, error) {
	var out []domain.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
