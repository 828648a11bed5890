package app

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// SubjectPayoutConfirmed is published by the payout service once funds have
// been pushed to the merchant's destination; consuming it closes the settled
// source transactions.
const SubjectPayoutConfirmed = "payout.events.confirmed"

const payoutConsumerQueueGroup = "terminal_service_payout_confirmed"

// payoutConfirmedEvent is the slice of the payout event this service needs.
type payoutConfirmedEvent struct {
	PayoutID             uuid.UUID   `json:"payout_id"`
	SourceTransactionIDs []uuid.UUID `json:"source_transaction_ids"`
}

// Subscriber is the broker consumption surface, satisfied by
// messagebroker.NATSClient.
type Subscriber interface {
	SubscribeToSubjectWithQueue(ctx context.Context, subject, queueGroup string, handler nats.MsgHandler) error
}

// RunPayoutConfirmedConsumer blocks consuming payout confirmations until ctx
// is cancelled, closing each confirmed payout's source transactions.
func (s *TransactionService) RunPayoutConfirmedConsumer(ctx context.Context, sub Subscriber) error {
	return sub.SubscribeToSubjectWithQueue(ctx, SubjectPayoutConfirmed, payoutConsumerQueueGroup, func(msg *nats.Msg) {
		var evt payoutConfirmedEvent
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			s.logger.ErrorContext(ctx, "undecodable payout confirmation", "subject", msg.Subject, "error", err)
			return
		}
		for _, id := range evt.SourceTransactionIDs {
			if err := s.Close(ctx, id); err != nil {
				s.logger.ErrorContext(ctx, "close transaction after payout failed",
					"payout_id", evt.PayoutID, "transaction_id", id, "error", err)
			}
		}
	})
}
