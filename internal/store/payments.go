package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrPaymentNotFound signals that no payment row exists for the order.
var ErrPaymentNotFound = errors.New("store: payment not found")

// Payment is the persisted record of a provider payment attempt for an order.
type Payment struct {
	ID           string    `json:"id"`
	OrderID      string    `json:"orderId"`
	Provider     string    `json:"provider"`
	IntentID     string    `json:"intentId"`
	ClientSecret string    `json:"-"`
	SessionURL   string    `json:"sessionUrl,omitempty"`
	Status       string    `json:"status"`
	Amount       int64     `json:"amount"`
	Currency     string    `json:"currency"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// InsertPayment records a new payment attempt.
func (s *Store) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	const q = `
		INSERT INTO payments (order_id, provider, intent_id, client_secret, session_url, status, amount, currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	err := s.Pool.QueryRow(ctx, q,
		p.OrderID, p.Provider, p.IntentID, p.ClientSecret, p.SessionURL, p.Status, p.Amount, p.Currency,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Payment{}, fmt.Errorf("store: insert payment: %w", err)
	}
	return p, nil
}

// LatestPaymentByOrder returns the most recent payment attempt for an order.
func (s *Store) LatestPaymentByOrder(ctx context.Context, orderID string) (Payment, error) {
	const q = `
		SELECT id, order_id, provider, intent_id, client_secret, session_url, status, amount, currency, created_at, updated_at
		FROM payments WHERE order_id = $1
		ORDER BY created_at DESC LIMIT 1`

	var p Payment
	err := s.Pool.QueryRow(ctx, q, orderID).Scan(
		&p.ID, &p.OrderID, &p.Provider, &p.IntentID, &p.ClientSecret, &p.SessionURL,
		&p.Status, &p.Amount, &p.Currency, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrPaymentNotFound
	}
	if err != nil {
		return Payment{}, fmt.Errorf("store: latest payment: %w", err)
	}
	return p, nil
}
