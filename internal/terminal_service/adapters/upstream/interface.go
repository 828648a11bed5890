package upstream

import "context"

// Processor is the transport boundary to the upstream card processor. The
// core hands it encoded MTI bytes; responses arrive asynchronously on a
// separate completion path (the transport invokes the service's
// HandleUpstreamMessage with raw response bytes). Framing and transport
// retries are the processor's business.
type Processor interface {
	// Send hands one encoded message to the transport. An error means the
	// request never left the terminal; the caller treats that as "no
	// response" and takes the offline/timeout path, never a decode error.
	Send(ctx context.Context, raw []byte) error

	// Online reports heartbeat-derived connectivity. A false reading routes
	// eligible authorizations to the offline queue instead of Send.
	Online() bool
}
