package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"partnerledger/internal/commission"
	"partnerledger/internal/domain"
	"partnerledger/pkg/logger"
	"partnerledger/pkg/validator"
)

// OrderHooksHandler receives the order lifecycle's status-transition hooks.
// These are called synchronously: a non-2xx response means the caller must
// abort the transition and keep the order in its pre-transition state.
type OrderHooksHandler struct {
	service   *commission.Service
	validator *validator.Validator
	logger    logger.Logger
}

func NewOrderHooksHandler(service *commission.Service, val *validator.Validator, log logger.Logger) *OrderHooksHandler {
	return &OrderHooksHandler{
		service:   service,
		validator: val,
		logger:    log,
	}
}

type orderAcceptedRequest struct {
	OrderID    string          `json:"order_id" validate:"required"`
	PartnerID  uuid.UUID       `json:"partner_id" validate:"required"`
	OrderType  string          `json:"order_type" validate:"required,oneof=buy sell"`
	Category   string          `json:"category" validate:"required"`
	OrderValue decimal.Decimal `json:"order_value"`
}

// OrderAccepted applies the commission for an accepted order.
func (h *OrderHooksHandler) OrderAccepted(w http.ResponseWriter, r *http.Request) {
	var req orderAcceptedRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	wtx, err := h.service.OnOrderAccepted(
		r.Context(),
		req.OrderID,
		req.PartnerID,
		domain.OrderType(req.OrderType),
		domain.Category(req.Category),
		req.OrderValue,
	)
	if err != nil {
		h.logger.Error("Commission application failed", map[string]interface{}{
			"error":    err.Error(),
			"order_id": req.OrderID,
		})
		respondServiceError(w, err)
		return
	}

	if wtx == nil {
		// Zero-value order: the accept succeeds with nothing to charge.
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"order_id": req.OrderID,
			"charged":  false,
		})
		return
	}
	respondJSON(w, http.StatusOK, wtx)
}

type orderCancelledRequest struct {
	OrderID string `json:"order_id" validate:"required"`
}

// OrderCancelled reverses the commission for a rejected or cancelled order.
// An order that never reached acceptance yields a 200 with no transaction.
func (h *OrderHooksHandler) OrderCancelled(w http.ResponseWriter, r *http.Request) {
	var req orderCancelledRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	wtx, err := h.service.OnOrderRejectedOrCancelled(r.Context(), req.OrderID)
	if err != nil {
		h.logger.Error("Commission reversal failed", map[string]interface{}{
			"error":    err.Error(),
			"order_id": req.OrderID,
		})
		respondServiceError(w, err)
		return
	}

	if wtx == nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"order_id": req.OrderID,
			"reversed": false,
		})
		return
	}
	respondJSON(w, http.StatusOK, wtx)
}
