package order_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-payments/internal/order"
)

// memStore mimics the transactional store: it claims event ids and applies the
// callback against an in-memory order, only recording the claim when the apply
// succeeds.
type memStore struct {
	orders    map[string]order.Order
	processed map[string]bool
}

func newMemStore() *memStore {
	return &memStore{orders: map[string]order.Order{}, processed: map[string]bool{}}
}

func (s *memStore) ReconcileEvent(_ context.Context, ev order.PaymentEvent, apply func(order.Order) (order.Status, error)) (order.Result, error) {
	if s.processed[ev.EventID] {
		return order.Result{}, order.ErrEventAlreadyProcessed
	}
	o, ok := s.orders[ev.OrderID]
	if !ok {
		return order.Result{}, order.ErrOrderNotFound
	}
	next, err := apply(o)
	if err != nil {
		return order.Result{}, err
	}
	prev := o.Status
	o.Status = next
	o.UpdatedAt = time.Now()
	s.orders[ev.OrderID] = o
	s.processed[ev.EventID] = true
	return order.Result{Previous: prev, Current: next}, nil
}

func TestApplyMovesPendingToPaid(t *testing.T) {
	store := newMemStore()
	id := uuid.NewString()
	store.orders[id] = order.Order{ID: id, Amount: 2500, Currency: "usd", Status: order.StatusPending}

	rec := &order.Reconciler{Store: store, Timeout: time.Second}
	res, err := rec.Apply(context.Background(), order.PaymentEvent{
		EventID: "evt_1", EventType: "payment_intent.succeeded",
		Kind: order.KindPaymentSucceeded, OrderID: id, Amount: 2500,
	})
	require.NoError(t, err)
	require.Equal(t, order.StatusPending, res.Previous)
	require.Equal(t, order.StatusPaid, res.Current)
	require.Equal(t, order.StatusPaid, store.orders[id].Status)
}

func TestApplyIsIdempotentPerEventID(t *testing.T) {
	store := newMemStore()
	id := uuid.NewString()
	store.orders[id] = order.Order{ID: id, Amount: 100, Status: order.StatusPending}

	rec := &order.Reconciler{Store: store}
	ev := order.PaymentEvent{EventID: "evt_dup", Kind: order.KindPaymentSucceeded, OrderID: id, Amount: 100}

	_, err := rec.Apply(context.Background(), ev)
	require.NoError(t, err)

	_, err = rec.Apply(context.Background(), ev)
	require.ErrorIs(t, err, order.ErrEventAlreadyProcessed)
	require.Equal(t, order.StatusPaid, store.orders[id].Status)
}

func TestApplyRejectsAmountMismatchWithoutClaiming(t *testing.T) {
	store := newMemStore()
	id := uuid.NewString()
	store.orders[id] = order.Order{ID: id, Amount: 100, Status: order.StatusPending}

	rec := &order.Reconciler{Store: store}
	ev := order.PaymentEvent{EventID: "evt_bad_amount", Kind: order.KindPaymentSucceeded, OrderID: id, Amount: 999}

	_, err := rec.Apply(context.Background(), ev)
	require.ErrorIs(t, err, order.ErrAmountMismatch)
	require.Equal(t, order.StatusPending, store.orders[id].Status)
	require.False(t, store.processed[ev.EventID], "failed applies must stay retryable")
}

func TestApplyUnknownOrder(t *testing.T) {
	rec := &order.Reconciler{Store: newMemStore()}

	_, err := rec.Apply(context.Background(), order.PaymentEvent{
		EventID: "evt_orphan", Kind: order.KindPaymentSucceeded, OrderID: uuid.NewString(), Amount: 1,
	})
	require.ErrorIs(t, err, order.ErrOrderNotFound)

	_, err = rec.Apply(context.Background(), order.PaymentEvent{
		EventID: "evt_garbage_id", Kind: order.KindPaymentSucceeded, OrderID: "not-a-uuid",
	})
	require.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestApplyInvalidTransitionLeavesOrderUntouched(t *testing.T) {
	store := newMemStore()
	id := uuid.NewString()
	store.orders[id] = order.Order{ID: id, Amount: 100, Status: order.StatusCanceled}

	rec := &order.Reconciler{Store: store}
	_, err := rec.Apply(context.Background(), order.PaymentEvent{
		EventID: "evt_late", Kind: order.KindPaymentSucceeded, OrderID: id, Amount: 100,
	})
	require.ErrorIs(t, err, order.ErrInvalidTransition)
	require.Equal(t, order.StatusCanceled, store.orders[id].Status)
}
