package order

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-payments/internal/obs"
)

var (
	// ErrOrderNotFound signals that the order referenced by an event (or API
	// call) does not exist locally.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrEventAlreadyProcessed signals that a ProcessedEventRecord already
	// exists for the event id. Benign: the provider redelivered.
	ErrEventAlreadyProcessed = errors.New("order: event already processed")
	// ErrAmountMismatch signals that the event's amount disagrees with the
	// stored order amount.
	ErrAmountMismatch = errors.New("order: amount mismatch")
)

// PaymentEvent is a verified provider notification reduced to the fields the
// reconciler needs.
type PaymentEvent struct {
	EventID   string
	EventType string
	Kind      EventKind
	OrderID   string
	Amount    int64
}

// Result describes the outcome of applying a payment event.
type Result struct {
	Previous Status
	Current  Status
}

// Store is the durable backend the reconciler drives. ReconcileEvent must run
// the claim (insert-if-absent of the processed-event record), the order lookup
// with a row lock, the apply callback, and the status update inside a single
// transaction: the claim only becomes visible once the transition commits.
type Store interface {
	ReconcileEvent(ctx context.Context, ev PaymentEvent, apply func(Order) (Status, error)) (Result, error)
}

// Reconciler applies verified, deduplicated payment events to local orders.
type Reconciler struct {
	Store   Store
	Timeout time.Duration
}

// Apply drives one event through the state machine. Exactly one transition is
// attributable to each event id even under concurrent redelivery; every
// failure before commit leaves the event unclaimed and therefore retryable.
func (r *Reconciler) Apply(ctx context.Context, ev PaymentEvent) (Result, error) {
	if r == nil || r.Store == nil {
		return Result{}, errors.New("order: reconciler not configured")
	}
	if ev.EventID == "" {
		return Result{}, errors.New("order: event id is required")
	}
	if _, err := uuid.Parse(ev.OrderID); err != nil {
		return Result{}, ErrOrderNotFound
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	res, err := r.Store.ReconcileEvent(ctx, ev, func(o Order) (Status, error) {
		if ev.Amount > 0 && o.Amount != ev.Amount {
			return o.Status, ErrAmountMismatch
		}
		return Transition(o.Status, ev.Kind)
	})
	if err != nil {
		return res, err
	}
	if obs.OrderTransitionTotal != nil {
		obs.OrderTransitionTotal.WithLabelValues(string(res.Previous), string(res.Current)).Inc()
	}
	return res, nil
}
