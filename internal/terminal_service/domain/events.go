package domain

import "fmt"

// Event is a state-machine input: either one decoded MTI message or one
// local occurrence (timeout, merchant cancel, retry tick).
type Event string

const (
	EventAuthSend        Event = "auth_send"
	EventAuthApproved    Event = "auth_approved"
	EventCaptureSend     Event = "capture_send"
	EventCaptureApproved Event = "capture_approved"
	EventDecline         Event = "decline"
	EventTimeout         Event = "timeout"
	EventCancel          Event = "cancel"
	EventOfflineQueue    Event = "offline_queue"
	EventOfflineRetry    Event = "offline_retry"
	EventOfflineExpire   Event = "offline_expire"
	EventReversal        Event = "reversal"
	EventAdjustment      Event = "adjustment"
	EventClose           Event = "close"
)

// transitions is the exhaustive table of legal (state, event) pairs. A pair
// absent from the table is an illegal transition.
var transitions = map[State]map[Event]State{
	StateCreated: {
		EventAuthSend:     StateAuthSent,
		EventOfflineQueue: StateOfflineQueued,
		EventDecline:      StateDeclined,
		EventCancel:       StateCancelled,
	},
	StateAuthSent: {
		EventAuthApproved: StateApproved,
		EventDecline:      StateDeclined,
		EventTimeout:      StateDeclined,
		EventCancel:       StateCancelled,
		EventOfflineQueue: StateOfflineQueued,
	},
	StateApproved: {
		EventCaptureSend: StateCaptureSent,
		EventDecline:     StateDeclined,
	},
	StateCaptureSent: {
		EventCaptureApproved: StateSettled,
		EventDecline:         StateDeclined,
		EventTimeout:         StateDeclined,
	},
	StateSettled: {
		EventReversal:   StateReversed,
		EventAdjustment: StateSettled,
		EventClose:      StateClosed,
	},
	StateOfflineQueued: {
		EventOfflineRetry:  StateAuthSent,
		EventOfflineExpire: StateOfflineExpired,
		EventDecline:       StateDeclined,
		EventCancel:        StateCancelled,
	},
}

// ErrIllegalTransition wraps a (state, event) pair outside the table, e.g. a
// 0210 arriving for a transaction that never sent a capture.
type ErrIllegalTransition struct {
	From  State
	Event Event
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("illegal transition: event %q in state %q", e.Event, e.From)
}

// NextState resolves the successor state for an event, or fails when the
// pair is not in the transition table.
func NextState(from State, ev Event) (State, error) {
	if next, ok := transitions[from][ev]; ok {
		return next, nil
	}
	return "", &ErrIllegalTransition{From: from, Event: ev}
}
