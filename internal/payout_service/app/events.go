package app

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/blackrockpay/terminal-gateway/internal/payout_service/domain"
)

// EventPublisher abstracts the message broker. Satisfied by
// messagebroker.NATSClient.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// PayoutEvent is the payload published on payout.events.*. The terminal
// service consumes the confirmed variant to close source transactions.
type PayoutEvent struct {
	PayoutID             uuid.UUID   `json:"payout_id"`
	MerchantID           string      `json:"merchant_id"`
	Status               string      `json:"status"`
	Amount               int64       `json:"amount"`
	Currency             string      `json:"currency"`
	FailureReason        string      `json:"failure_reason,omitempty"`
	SourceTransactionIDs []uuid.UUID `json:"source_transaction_ids"`
	At                   time.Time   `json:"at"`
}

func newPayoutEvent(p *domain.Payout, at time.Time) PayoutEvent {
	return PayoutEvent{
		PayoutID:             p.ID,
		MerchantID:           p.MerchantID,
		Status:               string(p.Status),
		Amount:               p.Amount,
		Currency:             p.Currency,
		FailureReason:        p.FailureReason,
		SourceTransactionIDs: p.SourceTransactionIDs,
		At:                   at,
	}
}

// payoutSubject maps a status to its broker subject, e.g. CONFIRMED to
// payout.events.confirmed.
func payoutSubject(status domain.Status) string {
	return "payout.events." + strings.ToLower(string(status))
}
