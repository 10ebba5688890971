// Package webhook implements the signed payment-provider webhook surface:
// signature verification, event parsing, and the ingestion handler that feeds
// verified events into the order reconciler.
package webhook

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/noah-isme/backend-payments/internal/order"
)

// Event types this service reacts to. Everything else is acknowledged and
// ignored.
const (
	TypeCheckoutCompleted   = "checkout.session.completed"
	TypeIntentSucceeded     = "payment_intent.succeeded"
	TypeIntentPaymentFailed = "payment_intent.payment_failed"
	TypeIntentCanceled      = "payment_intent.canceled"
)

// Event is a parsed provider notification.
type Event struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	OrderID string          `json:"-"`
	Amount  int64           `json:"-"`
	Raw     json.RawMessage `json:"-"`
}

type eventEnvelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object struct {
			Amount            int64  `json:"amount"`
			AmountTotal       int64  `json:"amount_total"`
			ClientReferenceID string `json:"client_reference_id"`
			Metadata          struct {
				OrderID string `json:"order_id"`
			} `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// ParseEvent decodes a verified webhook body. The order reference is taken
// from metadata.order_id, falling back to client_reference_id for checkout
// sessions.
func ParseEvent(body []byte) (Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if env.ID == "" || env.Type == "" {
		return Event{}, fmt.Errorf("%w: missing id or type", ErrMalformedPayload)
	}

	ev := Event{
		ID:      env.ID,
		Type:    env.Type,
		Created: env.Created,
		OrderID: strings.TrimSpace(env.Data.Object.Metadata.OrderID),
		Amount:  env.Data.Object.Amount,
		Raw:     json.RawMessage(body),
	}
	if ev.OrderID == "" {
		ev.OrderID = strings.TrimSpace(env.Data.Object.ClientReferenceID)
	}
	if ev.Amount == 0 {
		ev.Amount = env.Data.Object.AmountTotal
	}
	return ev, nil
}

// Kind maps the provider event type onto the order state machine's event
// kinds.
func (e Event) Kind() order.EventKind {
	switch e.Type {
	case TypeCheckoutCompleted, TypeIntentSucceeded:
		return order.KindPaymentSucceeded
	case TypeIntentPaymentFailed:
		return order.KindPaymentFailed
	case TypeIntentCanceled:
		return order.KindPaymentCanceled
	default:
		return order.KindUnknown
	}
}

// PaymentEvent converts the parsed event into the reconciler's input.
func (e Event) PaymentEvent() order.PaymentEvent {
	return order.PaymentEvent{
		EventID:   e.ID,
		EventType: e.Type,
		Kind:      e.Kind(),
		OrderID:   e.OrderID,
		Amount:    e.Amount,
	}
}
