// Package handler provides HTTP handlers for the partner ledger service.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "partnerledger/pkg/errors"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps domain errors onto HTTP statuses. Persistence
// failures surface as 503 so the console can show a "try again" state.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pkgerrors.ErrOverrideNotFound),
		errors.Is(err, pkgerrors.ErrTransactionNotFound),
		errors.Is(err, pkgerrors.ErrSettingsNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, pkgerrors.ErrStaleRateVersion):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, pkgerrors.ErrInvalidStatusTransition):
		respondError(w, http.StatusConflict, err.Error())
	case pkgerrors.IsRetryable(err):
		respondError(w, http.StatusServiceUnavailable, "Temporary storage failure, please retry")
	case errors.Is(err, pkgerrors.ErrRateSetIncomplete),
		errors.Is(err, pkgerrors.ErrRateOutOfRange),
		errors.Is(err, pkgerrors.ErrUnknownCategory),
		errors.Is(err, pkgerrors.ErrUnknownOrderType),
		errors.Is(err, pkgerrors.ErrInvalidOrderValue),
		errors.Is(err, pkgerrors.ErrInvalidAmount),
		errors.Is(err, pkgerrors.ErrMissingDescription),
		errors.Is(err, pkgerrors.ErrInvalidTransactionType),
		errors.Is(err, pkgerrors.ErrInvalidTransactionAmount),
		errors.Is(err, pkgerrors.ErrMissingPartner):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}
