package domain

import (
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle position of a transaction. States form an explicit
// machine; every change goes through NextState so illegal transitions are
// structural errors, not silent overwrites.
type State string

const (
	StateCreated        State = "CREATED"
	StateAuthSent       State = "AUTH_SENT"
	StateApproved       State = "APPROVED"
	StateCaptureSent    State = "CAPTURE_SENT"
	StateSettled        State = "SETTLED"
	StateClosed         State = "CLOSED"
	StateDeclined       State = "DECLINED"
	StateCancelled      State = "CANCELLED"
	StateOfflineQueued  State = "OFFLINE_QUEUED"
	StateOfflineExpired State = "OFFLINE_EXPIRED"
	StateReversed       State = "REVERSED"
)

// Decline reasons recorded on forced or upstream declines.
const (
	ReasonTimeout         = "timeout"
	ReasonProtocolError   = "protocol_error"
	ReasonUpstreamDecline = "upstream_decline"
	ReasonOfflineLimit    = "offline_limit"
	ReasonNoConnectivity  = "no_connectivity"
	ReasonRetryExhausted  = "retry_exhausted"
	ReasonCorrelation     = "correlation_error"
	ReasonMerchantCancel  = "merchant_cancel"
)

// IsTerminal reports whether s permits no further transitions.
func (s State) IsTerminal() bool {
	switch s {
	case StateClosed, StateDeclined, StateCancelled, StateOfflineExpired, StateReversed:
		return true
	}
	return false
}

// TraceRef records one MTI exchange attributed to a transaction, in emission
// order. Resolved marks traces whose response has been consumed, which is
// what makes replayed responses no-ops.
type TraceRef struct {
	Trace    string `json:"trace"`
	MTI      string `json:"mti"`
	Resolved bool   `json:"resolved"`
}

// Transaction is one payment flowing through the MTI exchange. It is owned
// by the transaction service for the duration of its lifecycle and becomes
// immutable once a terminal state is reached.
type Transaction struct {
	ID            uuid.UUID  `json:"id"`
	MerchantID    string     `json:"merchant_id"`
	TerminalID    string     `json:"terminal_id"`
	Protocol      string     `json:"protocol"`
	Amount        int64      `json:"amount"` // minor currency units
	Currency      string     `json:"currency"`
	State         State      `json:"state"`
	DeclineReason string     `json:"decline_reason,omitempty"`
	ApprovalCode  *string    `json:"approval_code,omitempty"`
	ResponseCode  *string    `json:"response_code,omitempty"`
	BatchNumber   string     `json:"batch_number"`
	Offline       bool       `json:"offline"`
	RetryCount    int        `json:"retry_count"`
	Traces        []TraceRef `json:"traces"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	SettledAt     *time.Time `json:"settled_at,omitempty"`
	// StateDeadline is the dwell limit of the current non-terminal state;
	// the sweeper force-declines transactions that exceed it.
	StateDeadline *time.Time `json:"state_deadline,omitempty"`
}

// AppendTrace records a newly emitted request/advice trace.
func (t *Transaction) AppendTrace(trace, mtiCode string) {
	t.Traces = append(t.Traces, TraceRef{Trace: trace, MTI: mtiCode})
}

// ResolveTrace marks the given trace consumed. It reports false when the
// trace is unknown or already resolved, which callers treat as a replay.
func (t *Transaction) ResolveTrace(trace string) bool {
	for i := range t.Traces {
		if t.Traces[i].Trace == trace {
			if t.Traces[i].Resolved {
				return false
			}
			t.Traces[i].Resolved = true
			return true
		}
	}
	return false
}

// PendingTrace returns the most recent unresolved trace, if any.
func (t *Transaction) PendingTrace() (string, bool) {
	for i := len(t.Traces) - 1; i >= 0; i-- {
		if !t.Traces[i].Resolved {
			return t.Traces[i].Trace, true
		}
	}
	return "", false
}
