package payment

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-payments/internal/common"
	"github.com/noah-isme/backend-payments/internal/order"
)

// Handler is the HTTP surface for payment initiation and status.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type createTransactionReq struct {
	OrderID  string `json:"orderId" validate:"required,uuid4"`
	Amount   int64  `json:"amount" validate:"required,min=1"`
	Currency string `json:"currency" validate:"omitempty,iso4217"`
}

type createCheckoutReq struct {
	OrderID    string `json:"orderId" validate:"required,uuid4"`
	SuccessURL string `json:"successUrl" validate:"required,url"`
	CancelURL  string `json:"cancelUrl" validate:"required,url"`
}

// CreateTransaction opens a payment intent and returns its client secret.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body", nil)
		return
	}
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "orderId and a positive amount are required", nil)
		return
	}

	tx, err := h.Svc.CreateTransaction(r.Context(), req.OrderID, req.Amount, strings.ToLower(req.Currency))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, tx)
}

// CreateCheckoutSession opens a hosted checkout session.
func (h *Handler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req createCheckoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body", nil)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "orderId, successUrl and cancelUrl are required", nil)
		return
	}

	session, err := h.Svc.CreateCheckoutSession(r.Context(), req.OrderID, req.SuccessURL, req.CancelURL)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, session)
}

// Status returns the consolidated payment status for an order.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if orderID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "orderId is required", nil)
		return
	}
	status, err := h.Svc.Status(r.Context(), orderID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, status)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, order.ErrOrderNotFound):
		common.JSONError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found", nil)
	case errors.Is(err, ErrOrderNotPending):
		common.JSONError(w, http.StatusConflict, "ORDER_NOT_PENDING", "order has already been settled", nil)
	case errors.Is(err, order.ErrAmountMismatch):
		common.JSONError(w, http.StatusUnprocessableEntity, "AMOUNT_MISMATCH", "amount does not match the order", nil)
	case common.IsAppError(err):
		var ae *common.AppError
		errors.As(err, &ae)
		common.JSONError(w, ae.HTTPStatus, ae.Code, ae.Message, ae.Details)
	case errors.Is(err, ErrProviderDeclined):
		common.JSONError(w, http.StatusBadGateway, "PROVIDER_DECLINED", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_ERROR", err.Error(), nil)
	}
}
