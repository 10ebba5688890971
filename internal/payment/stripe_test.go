package payment_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-payments/internal/payment"
)

func TestStripeProviderCreateIntent(t *testing.T) {
	var gotAuth, gotOrderID, gotAmount string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/payment_intents", r.URL.Path)
		require.NoError(t, r.ParseForm())
		gotAuth = r.Header.Get("Authorization")
		gotOrderID = r.PostForm.Get("metadata[order_id]")
		gotAmount = r.PostForm.Get("amount")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","client_secret":"pi_123_secret","status":"requires_payment_method"}`))
	}))
	t.Cleanup(srv.Close)

	p := payment.NewStripeProvider("sk_test_abc", srv.URL, nil)
	resp, err := p.CreateIntent(context.Background(), payment.IntentRequest{OrderID: "ord_1", Amount: 2500, Currency: "usd"})
	require.NoError(t, err)
	require.Equal(t, "pi_123", resp.IntentID)
	require.Equal(t, "pi_123_secret", resp.ClientSecret)
	require.Equal(t, "Bearer sk_test_abc", gotAuth)
	require.Equal(t, "ord_1", gotOrderID)
	require.Equal(t, "2500", gotAmount)
}

func TestStripeProviderDeclined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`))
	}))
	t.Cleanup(srv.Close)

	p := payment.NewStripeProvider("sk_test_abc", srv.URL, nil)
	_, err := p.CreateIntent(context.Background(), payment.IntentRequest{OrderID: "ord_1", Amount: 100, Currency: "usd"})
	require.ErrorIs(t, err, payment.ErrProviderDeclined)
	require.Contains(t, err.Error(), "card_declined")
}

func TestStripeProviderCreateCheckoutSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "ord_2", r.PostForm.Get("client_reference_id"))
		require.Equal(t, "https://shop.example/ok", r.PostForm.Get("success_url"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_123","url":"https://checkout.stripe.example/cs_123"}`))
	}))
	t.Cleanup(srv.Close)

	p := payment.NewStripeProvider("sk_test_abc", srv.URL, nil)
	resp, err := p.CreateCheckoutSession(context.Background(), payment.CheckoutRequest{
		OrderID: "ord_2", Amount: 100, Currency: "usd",
		SuccessURL: "https://shop.example/ok", CancelURL: "https://shop.example/cancel",
	})
	require.NoError(t, err)
	require.Equal(t, "cs_123", resp.SessionID)
	require.Equal(t, "https://checkout.stripe.example/cs_123", resp.SessionURL)
}

func TestStripeProviderRetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_retry","client_secret":"pi_retry_secret","status":"requires_payment_method"}`))
	}))
	t.Cleanup(srv.Close)

	p := payment.NewStripeProvider("sk_test_abc", srv.URL, nil)
	resp, err := p.CreateIntent(context.Background(), payment.IntentRequest{OrderID: "ord_3", Amount: 100, Currency: "usd"})
	require.NoError(t, err)
	require.Equal(t, "pi_retry", resp.IntentID)
	require.Equal(t, 2, calls)
}
