package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-payments/internal/common"
)

// ReceiptHandler delivers receipt emails for settled orders.
type ReceiptHandler struct {
	Mail   common.EmailSender
	To     string
	Logger zerolog.Logger
}

// ProcessTask implements asynq.Handler for TypeReceiptEmail.
func (h *ReceiptHandler) ProcessTask(_ context.Context, t *asynq.Task) error {
	var p ReceiptPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		// Malformed payloads never succeed on retry.
		countReceipt("malformed")
		return fmt.Errorf("tasks: decode receipt payload: %v: %w", err, asynq.SkipRetry)
	}

	subject := fmt.Sprintf("Payment received for order %s", p.OrderID)
	html := fmt.Sprintf(
		"<p>Your payment for order <strong>%s</strong> has been received.</p><p>Amount: %d %s</p>",
		p.OrderID, p.Amount, strings.ToUpper(p.Currency),
	)
	if err := h.Mail.Send(h.To, subject, html); err != nil {
		countReceipt("send_error")
		h.Logger.Error().Err(err).Str("order_id", p.OrderID).Msg("receipt email failed")
		return fmt.Errorf("tasks: send receipt: %w", err)
	}

	countReceipt("sent")
	h.Logger.Info().Str("order_id", p.OrderID).Str("event_id", p.EventID).Msg("receipt email sent")
	return nil
}
