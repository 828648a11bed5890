package postgres

import (
	"context"
	"log/slog"

	"github.com/blackrockpay/terminal-gateway/internal/platform/database"
	"github.com/blackrockpay/terminal-gateway/internal/terminal_service/correlator"
	"github.com/blackrockpay/terminal-gateway/internal/terminal_service/repository"
)

type pgCorrelationRepository struct {
	logger *slog.Logger
}

// NewPgCorrelationRepository creates the PostgreSQL CorrelationRepository.
func NewPgCorrelationRepository(logger *slog.Logger) repository.CorrelationRepository {
	return &pgCorrelationRepository{logger: logger.With("repository", "correlations")}
}

func (r *pgCorrelationRepository) Create(ctx context.Context, q database.Querier, pc correlator.PendingCorrelation) error {
	query := `
		INSERT INTO pending_correlations (trace_number, transaction_id, sent_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := q.Exec(ctx, query, pc.TraceNumber, pc.TransactionID, pc.SentAt, pc.ExpiresAt)
	return err
}

func (r *pgCorrelationRepository) Delete(ctx context.Context, q database.Querier, trace string) error {
	tag, err := q.Exec(ctx, `DELETE FROM pending_correlations WHERE trace_number = $1`, trace)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *pgCorrelationRepository) ListPending(ctx context.Context, q database.Querier) ([]correlator.PendingCorrelation, error) {
	rows, err := q.Query(ctx, `SELECT trace_number, transaction_id, sent_at, expires_at FROM pending_correlations ORDER BY sent_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []correlator.PendingCorrelation
	for rows.Next() {
		var pc correlator.PendingCorrelation
		if err := rows.Scan(&pc.TraceNumber, &pc.TransactionID, &pc.SentAt, &pc.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, pc)
	}
	return out, rows.Err()
}
