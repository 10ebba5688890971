package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-payments/internal/order"
)

// ProcessedEvent is one row of the dedup ledger. A row exists only for events
// whose order transition committed.
type ProcessedEvent struct {
	EventID     string    `json:"eventId"`
	EventType   string    `json:"eventType"`
	OrderID     string    `json:"orderId"`
	ProcessedAt time.Time `json:"processedAt"`
}

// ReconcileEvent applies one verified payment event inside a single
// transaction: claim the event id, lock the order row, run the apply callback,
// persist the new status. Any error rolls the claim back, so the event stays
// retryable; a duplicate event id surfaces as ErrEventAlreadyProcessed without
// touching the order.
func (s *Store) ReconcileEvent(ctx context.Context, ev order.PaymentEvent, apply func(order.Order) (order.Status, error)) (order.Result, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return order.Result{}, fmt.Errorf("store: begin reconcile: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO processed_events (event_id, event_type, order_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO NOTHING`,
		ev.EventID, ev.EventType, ev.OrderID,
	)
	if err != nil {
		return order.Result{}, fmt.Errorf("store: claim event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return order.Result{}, order.ErrEventAlreadyProcessed
	}

	var o order.Order
	err = tx.QueryRow(ctx, `
		SELECT id, amount, currency, status, created_at, updated_at
		FROM orders WHERE id = $1
		FOR UPDATE`,
		ev.OrderID,
	).Scan(&o.ID, &o.Amount, &o.Currency, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return order.Result{}, order.ErrOrderNotFound
	}
	if err != nil {
		return order.Result{}, fmt.Errorf("store: lock order: %w", err)
	}

	next, err := apply(o)
	if err != nil {
		return order.Result{}, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`,
		o.ID, next,
	); err != nil {
		return order.Result{}, fmt.Errorf("store: update order: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE payments SET status = $2, updated_at = now() WHERE order_id = $1`,
		o.ID, next,
	); err != nil {
		return order.Result{}, fmt.Errorf("store: update payments: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return order.Result{}, fmt.Errorf("store: commit reconcile: %w", err)
	}
	return order.Result{Previous: o.Status, Current: next}, nil
}

// EventProcessed reports whether the event id has already been claimed.
func (s *Store) EventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_events WHERE event_id = $1)`, eventID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("store: check event: %w", err)
	}
	return exists, nil
}

// ListProcessedEvents returns the dedup ledger newest first, for the admin
// surface.
func (s *Store) ListProcessedEvents(ctx context.Context, limit, offset int) ([]ProcessedEvent, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT event_id, event_type, order_id, processed_at
		FROM processed_events ORDER BY processed_at DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list events: %w", err)
	}
	defer rows.Close()

	var out []ProcessedEvent
	for rows.Next() {
		var pe ProcessedEvent
		if err := rows.Scan(&pe.EventID, &pe.EventType, &pe.OrderID, &pe.ProcessedAt); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		out = append(out, pe)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate events: %w", err)
	}
	return out, nil
}
