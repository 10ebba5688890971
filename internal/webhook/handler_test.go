package webhook_test

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-payments/internal/order"
	"github.com/noah-isme/backend-payments/internal/webhook"
)

type stubStore struct {
	orders    map[string]order.Order
	processed map[string]bool
	fail      error
}

func newStubStore() *stubStore {
	return &stubStore{orders: map[string]order.Order{}, processed: map[string]bool{}}
}

func (s *stubStore) ReconcileEvent(_ context.Context, ev order.PaymentEvent, apply func(order.Order) (order.Status, error)) (order.Result, error) {
	if s.fail != nil {
		return order.Result{}, s.fail
	}
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
	s.orders[ev.OrderID] = o
	s.processed[ev.EventID] = true
	return order.Result{Previous: prev, Current: next}, nil
}

type stubEnqueuer struct {
	calls []string
}

func (s *stubEnqueuer) EnqueueReceipt(_ context.Context, eventID, _ string, _ int64, _ string) error {
	s.calls = append(s.calls, eventID)
	return nil
}

type fixture struct {
	handler  *webhook.Handler
	store    *stubStore
	enqueuer *stubEnqueuer
	redis    *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := newStubStore()
	enq := &stubEnqueuer{}
	return &fixture{
		handler: &webhook.Handler{
			Verifier:   &webhook.Verifier{Secret: testSecret, Tolerance: 5 * time.Minute, Now: fixedNow},
			Reconciler: &order.Reconciler{Store: store},
			Replay:     client,
			ReplayTTL:  time.Hour,
			Tasks:      enq,
			Logger:     zerolog.Nop(),
		},
		store:    store,
		enqueuer: enq,
		redis:    mr,
	}
}

func eventBody(eventID, eventType, orderID string, amount int64) []byte {
	return []byte(fmt.Sprintf(
		`{"id":%q,"type":%q,"created":%d,"data":{"object":{"amount":%d,"metadata":{"order_id":%q}}}}`,
		eventID, eventType, fixedNow().Unix(), amount, orderID,
	))
}

func (f *fixture) post(t *testing.T, body []byte, header string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewReader(body))
	if header != "" {
		req.Header.Set(webhook.SignatureHeader, header)
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func TestWebhookAppliesPaidTransition(t *testing.T) {
	f := newFixture(t)
	id := uuid.NewString()
	f.store.orders[id] = order.Order{ID: id, Amount: 2500, Status: order.StatusPending}

	body := eventBody("evt_paid", webhook.TypeIntentSucceeded, id, 2500)
	rr := f.post(t, body, signedHeader(t, testSecret, fixedNow().Unix(), body))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, order.StatusPaid, f.store.orders[id].Status)
	require.Equal(t, []string{"evt_paid"}, f.enqueuer.calls)
	require.True(t, f.redis.Exists("webhook:evt:evt_paid"))
}

func TestWebhookRedeliveryIsAcknowledgedOnce(t *testing.T) {
	f := newFixture(t)
	id := uuid.NewString()
	f.store.orders[id] = order.Order{ID: id, Amount: 100, Status: order.StatusPending}

	body := eventBody("evt_redelivered", webhook.TypeIntentSucceeded, id, 100)
	header := signedHeader(t, testSecret, fixedNow().Unix(), body)

	first := f.post(t, body, header)
	require.Equal(t, http.StatusOK, first.Code)

	second := f.post(t, body, header)
	require.Equal(t, http.StatusOK, second.Code)

	require.Equal(t, order.StatusPaid, f.store.orders[id].Status)
	require.Len(t, f.enqueuer.calls, 1, "receipt enqueued once per event id")
}

func TestWebhookRejectsTamperedBody(t *testing.T) {
	f := newFixture(t)
	id := uuid.NewString()
	f.store.orders[id] = order.Order{ID: id, Amount: 100, Status: order.StatusPending}

	body := eventBody("evt_tampered", webhook.TypeIntentSucceeded, id, 100)
	header := signedHeader(t, testSecret, fixedNow().Unix(), body)
	tampered := bytes.Replace(body, []byte(`"amount":100`), []byte(`"amount":999`), 1)

	rr := f.post(t, tampered, header)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, order.StatusPending, f.store.orders[id].Status)
	require.Empty(t, f.enqueuer.calls)
}

func TestWebhookMissingSignature(t *testing.T) {
	f := newFixture(t)
	rr := f.post(t, eventBody("evt_unsigned", webhook.TypeIntentSucceeded, uuid.NewString(), 1), "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestWebhookInvalidTransitionAcked(t *testing.T) {
	f := newFixture(t)
	id := uuid.NewString()
	f.store.orders[id] = order.Order{ID: id, Amount: 100, Status: order.StatusCanceled}

	body := eventBody("evt_late_success", webhook.TypeIntentSucceeded, id, 100)
	rr := f.post(t, body, signedHeader(t, testSecret, fixedNow().Unix(), body))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, order.StatusCanceled, f.store.orders[id].Status)
	require.False(t, f.store.processed["evt_late_success"])
}

func TestWebhookUnknownOrderStaysRetryable(t *testing.T) {
	f := newFixture(t)
	id := uuid.NewString()

	body := eventBody("evt_orphan", webhook.TypeIntentSucceeded, id, 100)
	header := signedHeader(t, testSecret, fixedNow().Unix(), body)

	rr := f.post(t, body, header)
	require.Equal(t, http.StatusOK, rr.Code)
	require.False(t, f.redis.Exists("webhook:evt:evt_orphan"), "orphan events must not be marked processed")

	// Order shows up later; the redelivered event now applies.
	f.store.orders[id] = order.Order{ID: id, Amount: 100, Status: order.StatusPending}
	rr = f.post(t, body, header)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, order.StatusPaid, f.store.orders[id].Status)
}

func TestWebhookIgnoresUnknownEventType(t *testing.T) {
	f := newFixture(t)
	body := eventBody("evt_other", "customer.created", uuid.NewString(), 0)
	rr := f.post(t, body, signedHeader(t, testSecret, fixedNow().Unix(), body))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, f.enqueuer.calls)
}

func TestWebhookMalformedPayload(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"id":"evt_broken"`)
	rr := f.post(t, body, signedHeader(t, testSecret, fixedNow().Unix(), body))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWebhookStorageErrorReturns500(t *testing.T) {
	f := newFixture(t)
	f.store.fail = context.DeadlineExceeded

	id := uuid.NewString()
	body := eventBody("evt_db_down", webhook.TypeIntentSucceeded, id, 100)
	rr := f.post(t, body, signedHeader(t, testSecret, fixedNow().Unix(), body))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.False(t, f.redis.Exists("webhook:evt:evt_db_down"))
}
