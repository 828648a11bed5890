package app

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/blackrockpay/terminal-gateway/internal/terminal_service/domain"
)

// EventPublisher abstracts the message broker for transaction lifecycle
// events. Satisfied by messagebroker.NATSClient.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// TransactionEvent is the payload published on txn.events.* and stored as
// the merchant notification body.
type TransactionEvent struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	MerchantID    string    `json:"merchant_id"`
	Kind          string    `json:"kind"`
	State         string    `json:"state"`
	Reason        string    `json:"reason,omitempty"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	At            time.Time `json:"at"`
}

func newTransactionEvent(txn *domain.Transaction, kind string, at time.Time) TransactionEvent {
	return TransactionEvent{
		TransactionID: txn.ID,
		MerchantID:    txn.MerchantID,
		Kind:          kind,
		State:         string(txn.State),
		Reason:        txn.DeclineReason,
		Amount:        txn.Amount,
		Currency:      txn.Currency,
		At:            at,
	}
}

// eventSubject maps a notification kind like "transaction.settled" to its
// broker subject "txn.events.settled".
func eventSubject(kind string) string {
	return "txn.events." + strings.TrimPrefix(kind, "transaction.")
}
