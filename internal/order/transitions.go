package order

import "fmt"

// ErrInvalidTransition signals that the requested transition is not permitted
// from the order's current status. Callers ack the event upstream anyway to
// stop redelivery loops for out-of-order or duplicate notifications.
var ErrInvalidTransition = fmt.Errorf("order: invalid transition")

// Transition returns the status an order moves to when the given event kind is
// applied. The table is total: every (status, kind) pair either yields a new
// status or ErrInvalidTransition.
//
//	pending  -> paid      on payment_succeeded
//	pending  -> failed    on payment_failed
//	pending|paid|failed -> canceled on payment_canceled
//
// paid and failed are monotonic except for cancellation; canceled is terminal.
func Transition(current Status, kind EventKind) (Status, error) {
	switch kind {
	case KindPaymentSucceeded:
		if current == StatusPending {
			return StatusPaid, nil
		}
	case KindPaymentFailed:
		if current == StatusPending {
			return StatusFailed, nil
		}
	case KindPaymentCanceled:
		if current != StatusCanceled {
			return StatusCanceled, nil
		}
	}
	return current, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, kind, current)
}
