package rail

import (
	"context"
	"errors"
	"fmt"

	"github.com/blackrockpay/terminal-gateway/internal/payout_service/domain"
)

// Rail is one transfer network (bank transfer, crypto). Submit pushes the
// funds and returns the rail's reference; Confirm checks whether a submitted
// transfer has landed.
type Rail interface {
	Name() string
	Submit(ctx context.Context, p *domain.Payout) (reference string, err error)
	Confirm(ctx context.Context, reference string) error
}

// TransientError marks a rail failure worth retrying (timeouts, rate
// limits). Anything else fails the payout permanently.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient rail error: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// ErrNotConfirmed is returned by Confirm while the transfer is still in
// flight on the rail's side.
var ErrNotConfirmed = &TransientError{Err: errors.New("transfer not yet confirmed")}

// Registry resolves the rail for a destination type.
type Registry map[domain.DestinationType]Rail

// For returns the rail serving t.
func (r Registry) For(t domain.DestinationType) (Rail, error) {
	rl, ok := r[t]
	if !ok {
		return nil, fmt.Errorf("no rail for destination type %q", t)
	}
	return rl, nil
}
