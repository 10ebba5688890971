package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-payments/internal/order"
)

// CreateOrder inserts a new pending order and returns the stored row.
func (s *Store) CreateOrder(ctx context.Context, amount int64, currency string) (order.Order, error) {
	const q = `
		INSERT INTO orders (amount, currency, status)
		VALUES ($1, $2, 'pending')
		RETURNING id, amount, currency, status, created_at, updated_at`

	var o order.Order
	err := s.Pool.QueryRow(ctx, q, amount, currency).
		Scan(&o.ID, &o.Amount, &o.Currency, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return order.Order{}, fmt.Errorf("store: create order: %w", err)
	}
	return o, nil
}

// GetOrder fetches one order by id.
func (s *Store) GetOrder(ctx context.Context, id string) (order.Order, error) {
	const q = `
		SELECT id, amount, currency, status, created_at, updated_at
		FROM orders WHERE id = $1`

	var o order.Order
	err := s.Pool.QueryRow(ctx, q, id).
		Scan(&o.ID, &o.Amount, &o.Currency, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return order.Order{}, order.ErrOrderNotFound
	}
	if err != nil {
		return order.Order{}, fmt.Errorf("store: get order: %w", err)
	}
	return o, nil
}

// ListOrders returns orders newest first.
func (s *Store) ListOrders(ctx context.Context, limit, offset int) ([]order.Order, error) {
	const q = `
		SELECT id, amount, currency, status, created_at, updated_at
		FROM orders ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := s.Pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("store: list orders: %w", err)
	}
	defer rows.Close()

	var out []order.Order
	for rows.Next() {
		var o order.Order
		if err := rows.Scan(&o.ID, &o.Amount, &o.Currency, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate orders: %w", err)
	}
	return out, nil
}
