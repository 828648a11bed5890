package correlator

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrDuplicateTrace rejects registration of a trace number that is
	// already awaiting a response.
	ErrDuplicateTrace = errors.New("trace number already pending")

	// ErrUnmatchedResponse marks a response whose trace has no pending
	// correlation (never registered, already resolved, or swept).
	ErrUnmatchedResponse = errors.New("no pending correlation for trace")

	// ErrExpiredCorrelation marks a response that arrived after its entry's
	// expiry. The entry is removed; the caller force-declines the
	// transaction if it is still waiting.
	ErrExpiredCorrelation = errors.New("correlation expired before response arrived")
)

// PendingCorrelation ties an in-flight trace number to its transaction.
// Entries exist from register until resolve or expiry sweep, never longer.
type PendingCorrelation struct {
	TraceNumber   string
	TransactionID uuid.UUID
	SentAt        time.Time
	ExpiresAt     time.Time
}

// Correlator matches responses to their originating requests by trace
// number. All operations are serialized by one mutex, which is what gives
// resolutions their arrival-order guarantee.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]PendingCorrelation
}

// New returns an empty correlator.
func New() *Correlator {
	return &Correlator{pending: make(map[string]PendingCorrelation)}
}

// Register adds a pending correlation for a just-sent request.
func (c *Correlator) Register(trace string, transactionID uuid.UUID, now time.Time, timeout time.Duration) (PendingCorrelation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.pending[trace]; exists {
		return PendingCorrelation{}, ErrDuplicateTrace
	}
	pc := PendingCorrelation{
		TraceNumber:   trace,
		TransactionID: transactionID,
		SentAt:        now,
		ExpiresAt:     now.Add(timeout),
	}
	c.pending[trace] = pc
	return pc, nil
}

// Resolve consumes the pending correlation for trace and returns its
// transaction id. The entry is removed whether the resolution succeeds or
// reports expiry, so each trace resolves at most once.
func (c *Correlator) Resolve(trace string, now time.Time) (uuid.UUID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pc, ok := c.pending[trace]
	if !ok {
		return uuid.Nil, ErrUnmatchedResponse
	}
	delete(c.pending, trace)
	if now.After(pc.ExpiresAt) {
		return pc.TransactionID, ErrExpiredCorrelation
	}
	return pc.TransactionID, nil
}

// CancelByTransaction removes every pending correlation for a transaction
// (merchant cancel). Returns the removed trace numbers; a response arriving
// for one of them afterwards resolves as unmatched and is discarded.
func (c *Correlator) CancelByTransaction(transactionID uuid.UUID) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed []string
	for trace, pc := range c.pending {
		if pc.TransactionID == transactionID {
			delete(c.pending, trace)
			removed = append(removed, trace)
		}
	}
	return removed
}

// SweepExpired removes every entry whose expiry has passed and returns the
// affected correlations ordered by expiry, oldest first.
func (c *Correlator) SweepExpired(now time.Time) []PendingCorrelation {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []PendingCorrelation
	for trace, pc := range c.pending {
		if now.After(pc.ExpiresAt) {
			delete(c.pending, trace)
			expired = append(expired, pc)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ExpiresAt.Before(expired[j].ExpiresAt) })
	return expired
}

// Rehydrate loads persisted pending correlations after a restart. Entries
// colliding with live ones are ignored.
func (c *Correlator) Rehydrate(entries []PendingCorrelation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, pc := range entries {
		if _, exists := c.pending[pc.TraceNumber]; !exists {
			c.pending[pc.TraceNumber] = pc
		}
	}
}

// Len reports the number of in-flight correlations.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
