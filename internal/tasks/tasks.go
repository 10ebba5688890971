// Package tasks wires background work onto asynq. Receipt delivery runs out of
// band so webhook ingestion never blocks on email.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/backend-payments/internal/obs"
)

// TypeReceiptEmail identifies the receipt delivery task.
const TypeReceiptEmail = "email:receipt"

// ReceiptPayload is the serialized task body for a receipt email.
type ReceiptPayload struct {
	EventID  string `json:"eventId"`
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// NewReceiptEmailTask builds the asynq task for one paid order.
func NewReceiptEmailTask(p ReceiptPayload) (*asynq.Task, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("tasks: marshal receipt payload: %w", err)
	}
	return asynq.NewTask(TypeReceiptEmail, body), nil
}

// Enqueuer schedules tasks on the queue.
type Enqueuer struct {
	Client *asynq.Client
	Queue  string
}

// EnqueueReceipt schedules a receipt email for a settled order. The task id is
// derived from the event id, so redelivered webhooks cannot queue a second
// receipt.
func (e *Enqueuer) EnqueueReceipt(ctx context.Context, eventID, orderID string, amount int64, currency string) error {
	if e == nil || e.Client == nil {
		return errors.New("tasks: enqueuer not configured")
	}
	task, err := NewReceiptEmailTask(ReceiptPayload{EventID: eventID, OrderID: orderID, Amount: amount, Currency: currency})
	if err != nil {
		return err
	}

	queue := e.Queue
	if queue == "" {
		queue = "default"
	}
	_, err = e.Client.EnqueueContext(ctx, task,
		asynq.TaskID("receipt:"+eventID),
		asynq.Queue(queue),
		asynq.MaxRetry(5),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		countReceipt("duplicate")
		return nil
	}
	if err != nil {
		countReceipt("enqueue_error")
		return fmt.Errorf("tasks: enqueue receipt: %w", err)
	}
	countReceipt("enqueued")
	return nil
}

func countReceipt(result string) {
	if obs.ReceiptTaskTotal != nil {
		obs.ReceiptTaskTotal.WithLabelValues(result).Inc()
	}
}
