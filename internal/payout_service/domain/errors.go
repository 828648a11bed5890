package domain

import "errors"

var (
	// ErrIneligibleTransaction rejects payout submissions referencing a
	// transaction that is not settled or belongs to another merchant.
	ErrIneligibleTransaction = errors.New("transaction not eligible for payout")

	// ErrAlreadyPaidOut rejects submissions referencing a transaction that a
	// non-failed payout already covers.
	ErrAlreadyPaidOut = errors.New("transaction already covered by a payout")

	// ErrCurrencyMismatch rejects submissions whose source transactions are
	// not all in the same currency.
	ErrCurrencyMismatch = errors.New("source transactions use different currencies")

	// ErrInvalidDestination rejects destinations missing the fields their
	// rail requires.
	ErrInvalidDestination = errors.New("invalid payout destination")

	// ErrTerminalStatus rejects any movement of a confirmed or failed
	// payout.
	ErrTerminalStatus = errors.New("payout is in a terminal status")
)
