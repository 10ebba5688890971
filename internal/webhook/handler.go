package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-payments/internal/common"
	"github.com/noah-isme/backend-payments/internal/obs"
	"github.com/noah-isme/backend-payments/internal/order"
)

const defaultMaxBody = 1 << 20 // provider events are small; 1 MiB is generous

// ReceiptEnqueuer schedules post-payment work once a transition commits.
type ReceiptEnqueuer interface {
	EnqueueReceipt(ctx context.Context, eventID, orderID string, amount int64, currency string) error
}

// Handler is the webhook ingestion endpoint. Verification happens against the
// raw body before any JSON decoding; outcomes that cannot be fixed by
// redelivery are acknowledged with 200 so the provider stops retrying.
type Handler struct {
	Verifier     *Verifier
	Reconciler   *order.Reconciler
	Replay       redis.UniversalClient
	ReplayTTL    time.Duration
	Tasks        ReceiptEnqueuer
	Logger       zerolog.Logger
	MaxBodyBytes int64
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	maxBody := h.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		h.count("unknown", "oversized")
		common.JSONError(w, http.StatusBadRequest, "PAYLOAD_TOO_LARGE", "request body too large", nil)
		return
	}

	if err := h.Verifier.Verify(r.Header.Get(SignatureHeader), body); err != nil {
		h.count("unknown", "signature_rejected")
		h.Logger.Warn().Err(err).Str("remote", common.ClientIP(r)).Msg("webhook signature rejected")
		common.JSONError(w, http.StatusUnauthorized, "SIGNATURE_INVALID", "webhook signature verification failed", nil)
		return
	}

	ev, err := ParseEvent(body)
	if err != nil {
		h.count("unknown", "malformed")
		h.Logger.Warn().Err(err).Msg("webhook payload malformed")
		common.JSONError(w, http.StatusBadRequest, "PAYLOAD_MALFORMED", "webhook payload could not be parsed", nil)
		return
	}

	log := h.Logger.With().Str("event_id", ev.ID).Str("event_type", ev.Type).Str("order_id", ev.OrderID).Logger()

	if ev.Kind() == order.KindUnknown {
		h.count(ev.Type, "ignored")
		log.Debug().Msg("webhook event type ignored")
		common.JSON(w, http.StatusOK, map[string]string{"received": ev.ID})
		return
	}

	// Fast path for redeliveries. The marker is only written after a commit,
	// so a hit here is always safe to acknowledge.
	if h.Replay != nil {
		if n, err := h.Replay.Exists(r.Context(), replayKey(ev.ID)).Result(); err == nil && n > 0 {
			h.count(ev.Type, "duplicate")
			log.Debug().Msg("webhook event already processed (cache)")
			common.JSON(w, http.StatusOK, map[string]string{"received": ev.ID})
			return
		}
	}

	res, err := h.Reconciler.Apply(r.Context(), ev.PaymentEvent())
	switch {
	case err == nil:
		h.markProcessed(r.Context(), ev.ID)
		h.count(ev.Type, "applied")
		log.Info().Str("from", string(res.Previous)).Str("to", string(res.Current)).Msg("webhook event applied")
		if res.Current == order.StatusPaid && h.Tasks != nil {
			if err := h.Tasks.EnqueueReceipt(r.Context(), ev.ID, ev.OrderID, ev.Amount, ""); err != nil {
				log.Warn().Err(err).Msg("receipt enqueue failed")
			}
		}
		common.JSON(w, http.StatusOK, map[string]string{"received": ev.ID})

	case errors.Is(err, order.ErrEventAlreadyProcessed):
		h.markProcessed(r.Context(), ev.ID)
		h.count(ev.Type, "duplicate")
		log.Debug().Msg("webhook event already processed")
		common.JSON(w, http.StatusOK, map[string]string{"received": ev.ID})

	case errors.Is(err, order.ErrOrderNotFound):
		// Not recorded as processed: if the order shows up later a redelivery
		// can still apply.
		h.count(ev.Type, "order_not_found")
		log.Warn().Msg("webhook event references unknown order")
		common.JSON(w, http.StatusOK, map[string]string{"received": ev.ID})

	case errors.Is(err, order.ErrInvalidTransition):
		h.count(ev.Type, "invalid_transition")
		log.Warn().Err(err).Msg("webhook event transition rejected")
		common.JSON(w, http.StatusOK, map[string]string{"received": ev.ID})

	case errors.Is(err, order.ErrAmountMismatch):
		h.count(ev.Type, "amount_mismatch")
		log.Warn().Int64("event_amount", ev.Amount).Msg("webhook event amount mismatch")
		common.JSON(w, http.StatusOK, map[string]string{"received": ev.ID})

	default:
		// The only retryable outcome: the provider will redeliver.
		h.count(ev.Type, "storage_error")
		log.Error().Err(err).Msg("webhook event storage failure")
		common.JSONError(w, http.StatusInternalServerError, "STORAGE_ERROR", "event could not be persisted", nil)
	}
}

func (h *Handler) markProcessed(ctx context.Context, eventID string) {
	if h.Replay == nil {
		return
	}
	ttl := h.ReplayTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if err := h.Replay.Set(ctx, replayKey(eventID), "1", ttl).Err(); err != nil {
		h.Logger.Warn().Err(err).Str("event_id", eventID).Msg("replay marker write failed")
	}
}

func (h *Handler) count(eventType, result string) {
	if obs.WebhookIngestTotal != nil {
		obs.WebhookIngestTotal.WithLabelValues(eventType, result).Inc()
	}
}

func replayKey(eventID string) string {
	return "webhook:evt:" + eventID
}
