package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// WebhookIngestTotal counts inbound webhook processing outcomes.
	WebhookIngestTotal *prometheus.CounterVec
	// OrderTransitionTotal counts applied order status transitions.
	OrderTransitionTotal *prometheus.CounterVec
	// PaymentIntentTotal counts payment intent creation attempts.
	PaymentIntentTotal *prometheus.CounterVec
	// StripeRequestTotal counts outbound provider API call outcomes.
	StripeRequestTotal *prometheus.CounterVec
	// ReceiptTaskTotal counts receipt task enqueue and delivery outcomes.
	ReceiptTaskTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		WebhookIngestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_ingest_total",
			Help:      "Count of inbound webhook deliveries by outcome.",
		}, []string{"event_type", "result"})
		OrderTransitionTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transition_total",
			Help:      "Count of order status transitions applied by the reconciler.",
		}, []string{"from", "to"})
		PaymentIntentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_intent_total",
			Help:      "Count of payment intent creation outcomes.",
		}, []string{"result"})
		StripeRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stripe_request_total",
			Help:      "Count of outbound Stripe API call outcomes.",
		}, []string{"endpoint", "result"})
		ReceiptTaskTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receipt_task_total",
			Help:      "Count of receipt task outcomes.",
		}, []string{"result"})

		for _, c := range []**prometheus.CounterVec{
			&WebhookIngestTotal, &OrderTransitionTotal, &PaymentIntentTotal, &StripeRequestTotal, &ReceiptTaskTotal,
		} {
			if err := reg.Register(*c); err != nil {
				if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
					if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
						*c = existing
						continue
					}
				}
				panic(fmt.Errorf("register domain metric: %w", err))
			}
		}
	})
}
