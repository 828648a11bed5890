package http

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/blackrockpay/terminal-gateway/internal/terminal_service/domain"
)

// CreateTransactionRequestDTO is the payload for POST /transactions.
type CreateTransactionRequestDTO struct {
	TerminalID string `json:"terminal_id" validate:"required,max=8"`
	Protocol   string `json:"protocol" validate:"required"`
	Amount     int64  `json:"amount" validate:"required,gt=0"`
	Currency   string `json:"currency" validate:"required,len=3"`
}

// TransactionResponseDTO is the outward view of a transaction.
type TransactionResponseDTO struct {
	ID            uuid.UUID  `json:"id"`
	TerminalID    string     `json:"terminal_id"`
	Protocol      string     `json:"protocol"`
	Amount        int64      `json:"amount"`
	Currency      string     `json:"currency"`
	State         string     `json:"state"`
	DeclineReason string     `json:"decline_reason,omitempty"`
	ApprovalCode  string     `json:"approval_code,omitempty"`
	ResponseCode  string     `json:"response_code,omitempty"`
	BatchNumber   string     `json:"batch_number"`
	Offline       bool       `json:"offline"`
	RetryCount    int        `json:"retry_count"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	SettledAt     *time.Time `json:"settled_at,omitempty"`
}

func toTransactionDTO(txn *domain.Transaction) TransactionResponseDTO {
	dto := TransactionResponseDTO{
		ID:            txn.ID,
		TerminalID:    txn.TerminalID,
		Protocol:      txn.Protocol,
		Amount:        txn.Amount,
		Currency:      txn.Currency,
		State:         string(txn.State),
		DeclineReason: txn.DeclineReason,
		BatchNumber:   txn.BatchNumber,
		Offline:       txn.Offline,
		RetryCount:    txn.RetryCount,
		CreatedAt:     txn.CreatedAt,
		UpdatedAt:     txn.UpdatedAt,
		SettledAt:     txn.SettledAt,
	}
	if txn.ApprovalCode != nil {
		dto.ApprovalCode = *txn.ApprovalCode
	}
	if txn.ResponseCode != nil {
		dto.ResponseCode = *txn.ResponseCode
	}
	return dto
}

// NotificationResponseDTO is one queued lifecycle notification.
type NotificationResponseDTO struct {
	ID            uuid.UUID       `json:"id"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	Kind          string          `json:"kind"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
}

func toNotificationDTO(n domain.Notification) NotificationResponseDTO {
	return NotificationResponseDTO{
		ID:            n.ID,
		TransactionID: n.TransactionID,
		Kind:          n.Kind,
		Payload:       json.RawMessage(n.Payload),
		CreatedAt:     n.CreatedAt,
	}
}
