package domain

import "errors"

var (
	// ErrUnknownProtocol rejects transaction requests naming a protocol
	// outside the static table.
	ErrUnknownProtocol = errors.New("unknown terminal protocol")

	// ErrUnsupportedCurrency rejects transaction requests in a currency the
	// gateway does not handle.
	ErrUnsupportedCurrency = errors.New("unsupported currency")

	// ErrTerminalState rejects any mutation of a transaction that has
	// already reached a terminal state.
	ErrTerminalState = errors.New("transaction is in a terminal state")

	// ErrNotTransactionOwner rejects operations on a transaction by a
	// merchant other than its owner.
	ErrNotTransactionOwner = errors.New("transaction belongs to another merchant")
)
