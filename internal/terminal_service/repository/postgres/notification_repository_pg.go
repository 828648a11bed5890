package postgres

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/blackrockpay/terminal-gateway/internal/platform/database"
	"github.com/blackrockpay/terminal-gateway/internal/terminal_service/domain"
	"github.com/blackrockpay/terminal-gateway/internal/terminal_service/repository"
)

type pgNotificationRepository struct {
	logger *slog.Logger
}

// NewPgNotificationRepository creates the PostgreSQL NotificationRepository.
func NewPgNotificationRepository(logger *slog.Logger) repository.NotificationRepository {
	return &pgNotificationRepository{logger: logger.With("repository", "notifications")}
}

func (r *pgNotificationRepository) Create(ctx context.Context, q database.Querier, n *domain.Notification) error {
	n.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO notifications (id, merchant_id, transaction_id, kind, payload, delivered, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := q.Exec(ctx, query, n.ID, n.MerchantID, n.TransactionID, n.Kind, n.Payload, n.Delivered, n.CreatedAt)
	return err
}

func (r *pgNotificationRepository) ListUndelivered(ctx context.Context, q database.Querier, merchantID string, limit int) ([]domain.Notification, error) {
	query := `
		SELECT id, merchant_id, transaction_id, kind, payload, delivered, created_at, delivered_at
		FROM notifications
		WHERE merchant_id = $1 AND delivered = false
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := q.Query(ctx, query, merchantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.MerchantID, &n.TransactionID, &n.Kind, &n.Payload, &n.Delivered, &n.CreatedAt, &n.DeliveredAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *pgNotificationRepository) MarkDelivered(ctx context.Context, q database.Querier, id uuid.UUID, merchantID string, at time.Time) error {
	query := `
		UPDATE notifications
		SET delivered = true, delivered_at = $3
		WHERE id = $1 AND merchant_id = $2 AND delivered = false
	`
	tag, err := q.Exec(ctx, query, id, merchantID, at.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
