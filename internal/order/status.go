package order

import (
	"strings"
	"time"
)

// Status enumerates the lifecycle states of a local order.
type Status string

const (
	StatusPending  Status = "pending"
	StatusPaid     Status = "paid"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// ParseStatus converts a stored string into a Status.
func ParseStatus(value string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(value))) {
	case StatusPending:
		return StatusPending, true
	case StatusPaid:
		return StatusPaid, true
	case StatusFailed:
		return StatusFailed, true
	case StatusCanceled:
		return StatusCanceled, true
	default:
		return "", false
	}
}

// EventKind classifies verified provider notifications into the transitions
// the state machine understands.
type EventKind string

const (
	KindPaymentSucceeded EventKind = "payment_succeeded"
	KindPaymentFailed    EventKind = "payment_failed"
	KindPaymentCanceled  EventKind = "payment_canceled"
	KindUnknown          EventKind = "unknown"
)

// Order is the local record of a purchase, tracked independently of the
// provider's own payment object.
type Order struct {
	ID        string    `json:"id"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
