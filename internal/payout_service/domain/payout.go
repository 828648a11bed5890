package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status is the payout lifecycle position. A payout moves strictly
// PENDING → SUBMITTED → CONFIRMED, or to FAILED from either non-terminal
// status. FAILED and CONFIRMED are terminal.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSubmitted Status = "SUBMITTED"
	StatusConfirmed Status = "CONFIRMED"
	StatusFailed    Status = "FAILED"
)

// IsTerminal reports whether s permits no further movement.
func (s Status) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// DestinationType selects the payout rail.
type DestinationType string

const (
	DestinationBank   DestinationType = "bank"
	DestinationCrypto DestinationType = "crypto"
)

// Destination is where confirmed funds go. Bank destinations use the account
// fields, crypto destinations the address fields.
type Destination struct {
	Type DestinationType `json:"type"`

	// Bank
	AccountNumber string `json:"account_number,omitempty"`
	RoutingNumber string `json:"routing_number,omitempty"`
	HolderName    string `json:"holder_name,omitempty"`

	// Crypto
	Address string `json:"address,omitempty"`
	Network string `json:"network,omitempty"`
}

// Validate checks the fields required for the destination's rail.
func (d Destination) Validate() error {
	switch d.Type {
	case DestinationBank:
		if d.AccountNumber == "" || d.RoutingNumber == "" || d.HolderName == "" {
			return ErrInvalidDestination
		}
	case DestinationCrypto:
		if d.Address == "" || d.Network == "" {
			return ErrInvalidDestination
		}
	default:
		return ErrInvalidDestination
	}
	return nil
}

// Payout aggregates one or more settled transactions into a single transfer
// to a merchant destination. The amount is the sum of its sources; a source
// transaction belongs to at most one non-failed payout.
type Payout struct {
	ID                   uuid.UUID   `json:"id"`
	MerchantID           string      `json:"merchant_id"`
	Amount               int64       `json:"amount"` // minor currency units
	Currency             string      `json:"currency"`
	Status               Status      `json:"status"`
	Destination          Destination `json:"destination"`
	SourceTransactionIDs []uuid.UUID `json:"source_transaction_ids"`
	RailReference        string      `json:"rail_reference,omitempty"`
	Attempts             int         `json:"attempts"`
	FailureReason        string      `json:"failure_reason,omitempty"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
	SubmittedAt          *time.Time  `json:"submitted_at,omitempty"`
	ConfirmedAt          *time.Time  `json:"confirmed_at,omitempty"`
}
