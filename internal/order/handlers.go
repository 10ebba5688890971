package order

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-payments/internal/common"
)

// Repository covers the order persistence used by the HTTP handlers.
type Repository interface {
	CreateOrder(ctx context.Context, amount int64, currency string) (Order, error)
	GetOrder(ctx context.Context, id string) (Order, error)
	ListOrders(ctx context.Context, limit, offset int) ([]Order, error)
}

// Handler exposes HTTP endpoints for creating and inspecting orders.
type Handler struct {
	Repo     Repository
	Validate *validator.Validate
}

type createOrderReq struct {
	Amount   int64  `json:"amount" validate:"required,min=1"`
	Currency string `json:"currency" validate:"required,iso4217"`
}

// Create registers a new pending order.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Repo == nil {
		common.JSONError(w, http.StatusInternalServerError, "ORDERS_NOT_CONFIGURED", "order handler unavailable", nil)
		return
	}
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body", nil)
		return
	}
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if err := h.validate(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "amount and currency are required", validationDetails(err))
		return
	}
	created, err := h.Repo.CreateOrder(r.Context(), req.Amount, strings.ToLower(req.Currency))
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "ORDER_CREATE_ERROR", err.Error(), nil)
		return
	}
	common.JSON(w, http.StatusCreated, created)
}

// Get returns a single order by id.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Repo == nil {
		common.JSONError(w, http.StatusInternalServerError, "ORDERS_NOT_CONFIGURED", "order handler unavailable", nil)
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if id == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "orderId is required", nil)
		return
	}
	found, err := h.Repo.GetOrder(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			common.JSONError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "ORDER_FETCH_ERROR", err.Error(), nil)
		return
	}
	common.JSON(w, http.StatusOK, found)
}

// List returns orders ordered by creation time, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Repo == nil {
		common.JSONError(w, http.StatusInternalServerError, "ORDERS_NOT_CONFIGURED", "order handler unavailable", nil)
		return
	}
	limit := queryInt(r, "limit", 20, 100)
	offset := queryInt(r, "offset", 0, 1<<30)
	items, err := h.Repo.ListOrders(r.Context(), limit, offset)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "ORDER_LIST_ERROR", err.Error(), nil)
		return
	}
	if items == nil {
		items = []Order{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"items": items, "limit": limit, "offset": offset})
}

func (h *Handler) validate(v any) error {
	if h.Validate == nil {
		return nil
	}
	return h.Validate.Struct(v)
}

func validationDetails(err error) any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fe.Tag()
	}
	return details
}

func queryInt(r *http.Request, name string, fallback, max int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	if v > max {
		return max
	}
	return v
}
