package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"partnerledger/internal/domain"
	"partnerledger/internal/middleware"
	"partnerledger/internal/rates"
	"partnerledger/pkg/logger"
	"partnerledger/pkg/validator"
)

// RatesHandler manages the global rate table and partner overrides.
type RatesHandler struct {
	service   *rates.Service
	validator *validator.Validator
	logger    logger.Logger
}

func NewRatesHandler(service *rates.Service, val *validator.Validator, log logger.Logger) *RatesHandler {
	return &RatesHandler{
		service:   service,
		validator: val,
		logger:    log,
	}
}

// GetGlobalRates returns the current default rates with their version.
func (h *RatesHandler) GetGlobalRates(w http.ResponseWriter, r *http.Request) {
	settings, err := h.service.GetDefaultRates(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

type updateRatesRequest struct {
	Rates   domain.RateSet `json:"rates"`
	Version int64          `json:"version"`
}

// UpdateGlobalRates replaces the default rates. The request must carry the
// version the console last read; a stale version is rejected with 409.
func (h *RatesHandler) UpdateGlobalRates(w http.ResponseWriter, r *http.Request) {
	var req updateRatesRequest
	if !decodeBody(w, r, &req) {
		return
	}

	adminID, ok := middleware.AdminIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	settings, err := h.service.UpdateDefaultRates(r.Context(), req.Rates, adminID, req.Version)
	if err != nil {
		h.logger.Error("Failed to update global rates", map[string]interface{}{
			"error":    err.Error(),
			"admin_id": adminID,
		})
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, settings)
}

// GetPartnerRates returns the effective rates for a partner.
func (h *RatesHandler) GetPartnerRates(w http.ResponseWriter, r *http.Request) {
	partnerID, ok := partnerIDFromPath(w, r)
	if !ok {
		return
	}

	rateSet, err := h.service.GetEffectiveRates(r.Context(), partnerID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"partner_id": partnerID,
		"rates":      rateSet,
	})
}

type setOverrideRequest struct {
	Rates domain.RateSet `json:"rates"`
}

// SetPartnerOverride installs a whole-object override for the partner.
func (h *RatesHandler) SetPartnerOverride(w http.ResponseWriter, r *http.Request) {
	partnerID, ok := partnerIDFromPath(w, r)
	if !ok {
		return
	}

	var req setOverrideRequest
	if !decodeBody(w, r, &req) {
		return
	}

	adminID, ok := middleware.AdminIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	override, err := h.service.SetPartnerOverride(r.Context(), partnerID, req.Rates, adminID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, override)
}

// RemovePartnerOverride deactivates the partner's active override.
func (h *RatesHandler) RemovePartnerOverride(w http.ResponseWriter, r *http.Request) {
	partnerID, ok := partnerIDFromPath(w, r)
	if !ok {
		return
	}

	if err := h.service.RemovePartnerOverride(r.Context(), partnerID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// ListPartnerOverrides returns the partner's override history.
func (h *RatesHandler) ListPartnerOverrides(w http.ResponseWriter, r *http.Request) {
	partnerID, ok := partnerIDFromPath(w, r)
	if !ok {
		return
	}

	overrides, err := h.service.ListPartnerOverrides(r.Context(), partnerID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"overrides": overrides,
		"count":     len(overrides),
	})
}

func partnerIDFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	partnerID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid partner ID")
		return uuid.Nil, false
	}
	return partnerID, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		if err == io.EOF {
			respondError(w, http.StatusBadRequest, "Request body is required")
			return false
		}
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}
