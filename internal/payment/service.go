package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/backend-payments/internal/obs"
	"github.com/noah-isme/backend-payments/internal/order"
	"github.com/noah-isme/backend-payments/internal/store"
)

var (
	// ErrOrderNotPending signals that payment was requested for an order that
	// already left the pending state.
	ErrOrderNotPending = errors.New("payment: order is not pending")
)

// Storage is the persistence the service needs.
type Storage interface {
	GetOrder(ctx context.Context, id string) (order.Order, error)
	InsertPayment(ctx context.Context, p store.Payment) (store.Payment, error)
	LatestPaymentByOrder(ctx context.Context, orderID string) (store.Payment, error)
}

// LockRunner serialises payment initiation per order.
type LockRunner interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Service coordinates payment initiation against the provider and local
// storage.
type Service struct {
	Store    Storage
	Provider Provider
	Locker   LockRunner
	LockTTL  time.Duration
}

// Transaction is the result of opening (or reusing) a payment intent.
type Transaction struct {
	OrderID      string `json:"orderId"`
	IntentID     string `json:"intentId"`
	ClientSecret string `json:"clientSecret"`
	Status       string `json:"status"`
	Reused       bool   `json:"-"`
}

// CheckoutSession is the result of opening a hosted checkout.
type CheckoutSession struct {
	OrderID    string `json:"orderId"`
	SessionID  string `json:"sessionId"`
	SessionURL string `json:"url"`
}

// OrderPaymentStatus consolidates the order and its latest payment attempt.
type OrderPaymentStatus struct {
	Order   order.Order    `json:"order"`
	Payment *store.Payment `json:"payment,omitempty"`
}

// CreateTransaction opens a payment intent for a pending order. Concurrent
// calls for the same order are serialised with a redis lock, and an existing
// pending intent is reused instead of opening a second one.
func (s *Service) CreateTransaction(ctx context.Context, orderID string, amount int64, currency string) (Transaction, error) {
	o, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return Transaction{}, err
	}
	if o.Status != order.StatusPending {
		return Transaction{}, fmt.Errorf("%w: %s", ErrOrderNotPending, o.Status)
	}
	if amount != o.Amount {
		return Transaction{}, order.ErrAmountMismatch
	}
	if currency == "" {
		currency = o.Currency
	}

	var tx Transaction
	err = s.withOrderLock(ctx, orderID, func(ctx context.Context) error {
		existing, err := s.Store.LatestPaymentByOrder(ctx, orderID)
		if err == nil && existing.Status == string(order.StatusPending) && existing.ClientSecret != "" {
			tx = Transaction{
				OrderID:      orderID,
				IntentID:     existing.IntentID,
				ClientSecret: existing.ClientSecret,
				Status:       existing.Status,
				Reused:       true,
			}
			return nil
		}
		if err != nil && !errors.Is(err, store.ErrPaymentNotFound) {
			return err
		}

		intent, err := s.Provider.CreateIntent(ctx, IntentRequest{OrderID: orderID, Amount: o.Amount, Currency: currency})
		if err != nil {
			s.countIntent("error")
			return err
		}
		if _, err := s.Store.InsertPayment(ctx, store.Payment{
			OrderID:      orderID,
			Provider:     "stripe",
			IntentID:     intent.IntentID,
			ClientSecret: intent.ClientSecret,
			Status:       string(order.StatusPending),
			Amount:       o.Amount,
			Currency:     currency,
		}); err != nil {
			return err
		}
		s.countIntent("created")
		tx = Transaction{OrderID: orderID, IntentID: intent.IntentID, ClientSecret: intent.ClientSecret, Status: intent.Status}
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// CreateCheckoutSession opens a hosted checkout session for a pending order.
func (s *Service) CreateCheckoutSession(ctx context.Context, orderID, successURL, cancelURL string) (CheckoutSession, error) {
	o, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return CheckoutSession{}, err
	}
	if o.Status != order.StatusPending {
		return CheckoutSession{}, fmt.Errorf("%w: %s", ErrOrderNotPending, o.Status)
	}

	var cs CheckoutSession
	err = s.withOrderLock(ctx, orderID, func(ctx context.Context) error {
		session, err := s.Provider.CreateCheckoutSession(ctx, CheckoutRequest{
			OrderID:    orderID,
			Amount:     o.Amount,
			Currency:   o.Currency,
			SuccessURL: successURL,
			CancelURL:  cancelURL,
		})
		if err != nil {
			return err
		}
		if _, err := s.Store.InsertPayment(ctx, store.Payment{
			OrderID:    orderID,
			Provider:   "stripe",
			IntentID:   session.SessionID,
			SessionURL: session.SessionURL,
			Status:     string(order.StatusPending),
			Amount:     o.Amount,
			Currency:   o.Currency,
		}); err != nil {
			return err
		}
		cs = CheckoutSession{OrderID: orderID, SessionID: session.SessionID, SessionURL: session.SessionURL}
		return nil
	})
	if err != nil {
		return CheckoutSession{}, err
	}
	return cs, nil
}

// Status returns the order together with its latest payment attempt, if any.
func (s *Service) Status(ctx context.Context, orderID string) (OrderPaymentStatus, error) {
	o, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return OrderPaymentStatus{}, err
	}
	out := OrderPaymentStatus{Order: o}
	p, err := s.Store.LatestPaymentByOrder(ctx, orderID)
	if err == nil {
		out.Payment = &p
	} else if !errors.Is(err, store.ErrPaymentNotFound) {
		return OrderPaymentStatus{}, err
	}
	return out, nil
}

func (s *Service) withOrderLock(ctx context.Context, orderID string, fn func(context.Context) error) error {
	if s.Locker == nil {
		return fn(ctx)
	}
	ttl := s.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return s.Locker.WithLock(ctx, "payment:order:"+orderID, ttl, fn)
}

func (s *Service) countIntent(result string) {
	if obs.PaymentIntentTotal != nil {
		obs.PaymentIntentTotal.WithLabelValues(result).Inc()
	}
}
