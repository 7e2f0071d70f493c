package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"partnerledger/internal/domain"
	"partnerledger/internal/wallet"
	"partnerledger/pkg/logger"
	"partnerledger/pkg/validator"
)

// WalletHandler exposes the derived wallet view and the transaction ledger.
type WalletHandler struct {
	service   *wallet.Service
	validator *validator.Validator
	logger    logger.Logger
}

func NewWalletHandler(service *wallet.Service, val *validator.Validator, log logger.Logger) *WalletHandler {
	return &WalletHandler{
		service:   service,
		validator: val,
		logger:    log,
	}
}

// GetWallet returns the partner's derived balance and totals.
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	partnerID, ok := partnerIDFromPath(w, r)
	if !ok {
		return
	}

	summary, err := h.service.GetWallet(r.Context(), partnerID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

// ListTransactions returns a filtered page of the partner's ledger.
// Supported query params: type, status, from, to (RFC 3339), limit, offset.
func (h *WalletHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	partnerID, ok := partnerIDFromPath(w, r)
	if !ok {
		return
	}

	filter, err := parseListFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	txs, total, err := h.service.ListTransactions(r.Context(), partnerID, filter)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"total":        total,
		"limit":        filter.Limit,
		"offset":       filter.Offset,
	})
}

type payoutRequest struct {
	Amount        decimal.Decimal `json:"amount" validate:"required"`
	PaymentMethod string          `json:"payment_method" validate:"required"`
	Description   string          `json:"description"`
}

// RequestPayout posts a pending withdrawal for the partner.
func (h *WalletHandler) RequestPayout(w http.ResponseWriter, r *http.Request) {
	partnerID, ok := partnerIDFromPath(w, r)
	if !ok {
		return
	}

	var req payoutRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	wtx, err := h.service.RequestPayout(r.Context(), partnerID, req.Amount, req.PaymentMethod, req.Description)
	if err != nil {
		h.logger.Error("Failed to request payout", map[string]interface{}{
			"error":      err.Error(),
			"partner_id": partnerID,
		})
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, wtx)
}

// CompleteTransaction settles a pending transaction. Safe to retry.
func (h *WalletHandler) CompleteTransaction(w http.ResponseWriter, r *http.Request) {
	h.settleTransaction(w, r, domain.TransactionStatusCompleted)
}

// FailTransaction voids a pending transaction. Safe to retry.
func (h *WalletHandler) FailTransaction(w http.ResponseWriter, r *http.Request) {
	h.settleTransaction(w, r, domain.TransactionStatusFailed)
}

func (h *WalletHandler) settleTransaction(w http.ResponseWriter, r *http.Request, target domain.TransactionStatus) {
	txID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid transaction ID")
		return
	}

	if target == domain.TransactionStatusCompleted {
		err = h.service.MarkCompleted(r.Context(), txID)
	} else {
		err = h.service.MarkFailed(r.Context(), txID)
	}
	if err != nil {
		respondServiceError(w, err)
		return
	}

	wtx, err := h.service.GetTransaction(r.Context(), txID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, wtx)
}

func parseListFilter(r *http.Request) (wallet.ListFilter, error) {
	q := r.URL.Query()
	filter := wallet.ListFilter{Limit: 50}

	if v := q.Get("type"); v != "" {
		filter.Types = append(filter.Types, domain.TransactionType(v))
	}
	if v := q.Get("status"); v != "" {
		filter.Statuses = append(filter.Statuses, domain.TransactionStatus(v))
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, err
		}
		filter.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, err
		}
		filter.To = &t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, err
		}
		if n > 0 && n <= 200 {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, err
		}
		if n >= 0 {
			filter.Offset = n
		}
	}

	return filter, nil
}
