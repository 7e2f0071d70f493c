package handler

import (
	"net/http"

	"partnerledger/internal/adjustment"
	"partnerledger/internal/middleware"
	"partnerledger/pkg/logger"
	"partnerledger/pkg/validator"
)

// AdjustmentHandler accepts manual credit/debit postings from the admin console.
type AdjustmentHandler struct {
	service   *adjustment.Service
	validator *validator.Validator
	logger    logger.Logger
}

func NewAdjustmentHandler(service *adjustment.Service, val *validator.Validator, log logger.Logger) *AdjustmentHandler {
	return &AdjustmentHandler{
		service:   service,
		validator: val,
		logger:    log,
	}
}

// CreateAdjustment posts a manual adjustment to the partner's wallet.
func (h *AdjustmentHandler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	partnerID, ok := partnerIDFromPath(w, r)
	if !ok {
		return
	}

	var req adjustment.Request
	if !decodeBody(w, r, &req) {
		return
	}

	adminID, ok := middleware.AdminIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	req.PartnerID = partnerID
	req.AdjustedBy = adminID

	if err := h.validator.Validate(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	wtx, err := h.service.Adjust(r.Context(), req)
	if err != nil {
		h.logger.Error("Failed to post adjustment", map[string]interface{}{
			"error":      err.Error(),
			"partner_id": partnerID,
			"admin_id":   adminID,
		})
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, wtx)
}
