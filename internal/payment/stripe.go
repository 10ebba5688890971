package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-payments/internal/common"
	"github.com/noah-isme/backend-payments/internal/obs"
	"github.com/noah-isme/backend-payments/internal/resilience"
)

// ErrProviderDeclined signals a 4xx rejection from the provider that retrying
// will not fix.
var ErrProviderDeclined = errors.New("payment: provider declined request")

// StripeProvider talks to the Stripe REST API with form-encoded requests.
type StripeProvider struct {
	SecretKey string
	BaseURL   string
	HTTP      resilience.HTTPClient
}

// NewStripeProvider builds a provider with a traced transport and retrying
// client around the given base URL.
func NewStripeProvider(secretKey, baseURL string, breaker *resilience.Breaker) *StripeProvider {
	return &StripeProvider{
		SecretKey: secretKey,
		BaseURL:   strings.TrimRight(baseURL, "/"),
		HTTP: resilience.HTTPClient{
			Client: &http.Client{
				Transport: otelhttp.NewTransport(http.DefaultTransport),
			},
			Breaker:     breaker,
			BaseBackoff: 200 * time.Millisecond,
			MaxAttempts: 3,
			Jitter:      0.2,
			Timeout:     10 * time.Second,
		},
	}
}

type stripeErrorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateIntent opens a payment intent carrying the order id in metadata so the
// webhook can route the result back.
func (p *StripeProvider) CreateIntent(ctx context.Context, req IntentRequest) (IntentResponse, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.Amount, 10))
	form.Set("currency", req.Currency)
	form.Set("metadata[order_id]", req.OrderID)
	form.Set("automatic_payment_methods[enabled]", "true")

	var out struct {
		ID           string `json:"id"`
		ClientSecret string `json:"client_secret"`
		Status       string `json:"status"`
	}
	if err := p.post(ctx, "/v1/payment_intents", "payment_intents", form, &out); err != nil {
		return IntentResponse{}, err
	}
	return IntentResponse{IntentID: out.ID, ClientSecret: out.ClientSecret, Status: out.Status}, nil
}

// CreateCheckoutSession opens a hosted checkout session for the order.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutResponse, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("client_reference_id", req.OrderID)
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("metadata[order_id]", req.OrderID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", req.Currency)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.Amount, 10))
	form.Set("line_items[0][price_data][product_data][name]", "Order "+req.OrderID)

	var out struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := p.post(ctx, "/v1/checkout/sessions", "checkout_sessions", form, &out); err != nil {
		return CheckoutResponse{}, err
	}
	return CheckoutResponse{SessionID: out.ID, SessionURL: out.URL}, nil
}

func (p *StripeProvider) post(ctx context.Context, path, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("payment: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.HTTP.Do(ctx, req)
	if err != nil {
		p.count(endpoint, "error")
		return fmt.Errorf("payment: call %s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		p.count(endpoint, "error")
		return fmt.Errorf("payment: read %s response: %w", endpoint, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		p.count(endpoint, "declined")
		var envelope stripeErrorEnvelope
		if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
			return common.NewAppError("PROVIDER_DECLINED", envelope.Error.Message, http.StatusBadGateway,
				fmt.Errorf("%w: %s (%s)", ErrProviderDeclined, envelope.Error.Message, envelope.Error.Code))
		}
		return common.NewAppError("PROVIDER_DECLINED", resp.Status, http.StatusBadGateway,
			fmt.Errorf("%w: status %d", ErrProviderDeclined, resp.StatusCode))
	}

	if err := json.Unmarshal(body, out); err != nil {
		p.count(endpoint, "error")
		return fmt.Errorf("payment: decode %s response: %w", endpoint, err)
	}
	p.count(endpoint, "ok")
	return nil
}

func (p *StripeProvider) count(endpoint, result string) {
	if obs.StripeRequestTotal != nil {
		obs.StripeRequestTotal.WithLabelValues(endpoint, result).Inc()
	}
}
