package domain

import (
	"time"

	"github.com/google/uuid"
)

// Notification is one lifecycle event queued for the merchant-facing layer.
// Records stay undelivered until the external consumer acknowledges them
// (at-least-once); transaction processing never waits on delivery.
type Notification struct {
	ID            uuid.UUID  `json:"id"`
	MerchantID    string     `json:"merchant_id"`
	TransactionID uuid.UUID  `json:"transaction_id"`
	Kind          string     `json:"kind"`
	Payload       []byte     `json:"payload"`
	Delivered     bool       `json:"delivered"`
	CreatedAt     time.Time  `json:"created_at"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
}

// NotificationKind derives the event kind published for a state transition.
func NotificationKind(to State) string {
	switch to {
	case StateCreated:
		return "transaction.created"
	case StateAuthSent:
		return "transaction.auth_sent"
	case StateApproved:
		return "transaction.approved"
	case StateCaptureSent:
		return "transaction.capture_sent"
	case StateSettled:
		return "transaction.settled"
	case StateClosed:
		return "transaction.closed"
	case StateDeclined:
		return "transaction.declined"
	case StateCancelled:
		return "transaction.cancelled"
	case StateOfflineQueued:
		return "transaction.offline_queued"
	case StateOfflineExpired:
		return "transaction.offline_expired"
	case StateReversed:
		return "transaction.reversed"
	}
	return "transaction.unknown"
}
