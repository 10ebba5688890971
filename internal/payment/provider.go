// Package payment implements payment initiation: the provider abstraction,
// the Stripe REST client, and the HTTP surface for creating transactions and
// checkout sessions.
package payment

import "context"

// IntentRequest describes a payment intent to open with the provider.
type IntentRequest struct {
	OrderID  string
	Amount   int64
	Currency string
}

// IntentResponse carries the provider's handle for a created intent. The
// client secret is what the frontend needs to confirm the payment.
type IntentResponse struct {
	IntentID     string
	ClientSecret string
	Status       string
}

// CheckoutRequest describes a hosted checkout session to open.
type CheckoutRequest struct {
	OrderID    string
	Amount     int64
	Currency   string
	SuccessURL string
	CancelURL  string
}

// CheckoutResponse carries the provider's hosted session handle.
type CheckoutResponse struct {
	SessionID  string
	SessionURL string
}

// Provider is the outbound payment gateway.
type Provider interface {
	CreateIntent(ctx context.Context, req IntentRequest) (IntentResponse, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutResponse, error)
}
