package rail

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/blackrockpay/terminal-gateway/internal/payout_service/domain"
)

// MockBankRail simulates an ACH-style bank transfer network: submissions
// return a reference immediately, confirmation succeeds after
// ConfirmAfterPolls checks.
type MockBankRail struct {
	// SubmitErr, when set, is returned by every Submit.
	SubmitErr error
	// ConfirmAfterPolls is how many Confirm calls a transfer stays in
	// flight before landing.
	ConfirmAfterPolls int

	mu     sync.Mutex
	polls  map[string]int
	logger *slog.Logger
}

func NewMockBankRail(logger *slog.Logger) *MockBankRail {
	return &MockBankRail{
		polls:  make(map[string]int),
		logger: logger.With("rail", "mock_bank"),
	}
}

func (r *MockBankRail) Name() string { return "mock_bank" }

func (r *MockBankRail) Submit(ctx context.Context, p *domain.Payout) (string, error) {
	if r.SubmitErr != nil {
		return "", r.SubmitErr
	}
	ref := fmt.Sprintf("BANK-%s", uuid.New())
	r.logger.InfoContext(ctx, "bank transfer submitted",
		"payout_id", p.ID, "reference", ref, "amount", p.Amount, "currency", p.Currency)
	return ref, nil
}

func (r *MockBankRail) Confirm(ctx context.Context, reference string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polls[reference]++
	if r.polls[reference] <= r.ConfirmAfterPolls {
		return ErrNotConfirmed
	}
	r.logger.InfoContext(ctx, "bank transfer confirmed", "reference", reference)
	return nil
}

// MockCryptoRail simulates an on-chain transfer: submission broadcasts and
// returns a transaction hash, confirmation succeeds once.
type MockCryptoRail struct {
	SubmitErr  error
	ConfirmErr error

	logger *slog.Logger
}

func NewMockCryptoRail(logger *slog.Logger) *MockCryptoRail {
	return &MockCryptoRail{logger: logger.With("rail", "mock_crypto")}
}

func (r *MockCryptoRail) Name() string { return "mock_crypto" }

func (r *MockCryptoRail) Submit(ctx context.Context, p *domain.Payout) (string, error) {
	if r.SubmitErr != nil {
		return "", r.SubmitErr
	}
	ref := fmt.Sprintf("0x%x", uuid.New())
	r.logger.InfoContext(ctx, "crypto transfer broadcast",
		"payout_id", p.ID, "tx_hash", ref, "network", p.Destination.Network)
	return ref, nil
}

func (r *MockCryptoRail) Confirm(ctx context.Context, reference string) error {
	if r.ConfirmErr != nil {
		return r.ConfirmErr
	}
	r.logger.InfoContext(ctx, "crypto transfer confirmed", "tx_hash", reference)
	return nil
}
