package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"partnerledger/internal/commission"
	"partnerledger/internal/domain"
	"partnerledger/internal/wallet"
	"partnerledger/pkg/logger"
	"partnerledger/pkg/validator"
)

type fixedRateSource struct {
	rates domain.RateSet
}

func (s *fixedRateSource) GetEffectiveRates(ctx context.Context, partnerID uuid.UUID) (domain.RateSet, error) {
	return s.rates, nil
}

// memoryLedger appends drafts in memory so handler tests see real commission
// service behavior without a database.
type memoryLedger struct {
	txs []*domain.WalletTransaction
}

func (l *memoryLedger) Post(ctx context.Context, draft wallet.Draft) (*domain.WalletTransaction, error) {
	now := time.Now().UTC()
	wtx := &domain.WalletTransaction{
		ID:             uuid.New(),
		PartnerID:      draft.PartnerID,
		Type:           draft.Type,
		Amount:         draft.Amount,
		Description:    draft.Description,
		Status:         domain.TransactionStatusCompleted,
		RelatedOrderID: draft.RelatedOrderID,
		Metadata:       draft.Metadata,
		CreatedAt:      now,
		CompletedAt:    &now,
	}
	l.txs = append(l.txs, wtx)
	return wtx, nil
}

func (l *memoryLedger) FindByRelatedOrder(ctx context.Context, orderID string) ([]*domain.WalletTransaction, error) {
	var out []*domain.WalletTransaction
	for _, tx := range l.txs {
		if tx.RelatedOrderID != nil && *tx.RelatedOrderID == orderID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func newOrderHooksHandler(ledger *memoryLedger) *OrderHooksHandler {
	rates := domain.RateSet{
		Buy:  map[domain.Category]decimal.Decimal{},
		Sell: map[domain.Category]decimal.Decimal{},
	}
	for _, c := range domain.Categories() {
		rates.Buy[c] = decimal.NewFromInt(5)
		rates.Sell[c] = decimal.NewFromInt(5)
	}
	resolver := commission.NewResolver(&fixedRateSource{rates: rates})
	service := commission.NewService(resolver, ledger, logger.NewNop())
	return NewOrderHooksHandler(service, validator.New(), logger.NewNop())
}

func postJSON(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestOrderAcceptedAppliesCommission(t *testing.T) {
	ledger := &memoryLedger{}
	handler := newOrderHooksHandler(ledger)
	partnerID := uuid.New()

	body := fmt.Sprintf(`{"order_id":"ORD-2001","partner_id":"%s","order_type":"buy","category":"mobile","order_value":"10000"}`, partnerID)
	rec := postJSON(t, handler.OrderAccepted, body)

	assert.Equal(t, http.StatusOK, rec.Code)

	var wtx domain.WalletTransaction
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wtx))
	assert.Equal(t, domain.TransactionTypeCommission, wtx.Type)
	assert.True(t, wtx.Amount.Equal(decimal.NewFromInt(-500)), "amount = %s", wtx.Amount)
	assert.Len(t, ledger.txs, 1)
}

func TestOrderAcceptedRetryDoesNotDoubleCharge(t *testing.T) {
	ledger := &memoryLedger{}
	handler := newOrderHooksHandler(ledger)
	partnerID := uuid.New()

	body := fmt.Sprintf(`{"order_id":"ORD-2002","partner_id":"%s","order_type":"sell","category":"laptop","order_value":"2500"}`, partnerID)
	first := postJSON(t, handler.OrderAccepted, body)
	second := postJSON(t, handler.OrderAccepted, body)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Len(t, ledger.txs, 1)
}

func TestOrderAcceptedZeroValueSucceedsWithoutCharge(t *testing.T) {
	ledger := &memoryLedger{}
	handler := newOrderHooksHandler(ledger)

	body := fmt.Sprintf(`{"order_id":"ORD-2006","partner_id":"%s","order_type":"buy","category":"mobile","order_value":"0"}`, uuid.New())
	rec := postJSON(t, handler.OrderAccepted, body)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["charged"])
	assert.Empty(t, ledger.txs)
}

func TestOrderAcceptedRejectsUnknownCategory(t *testing.T) {
	ledger := &memoryLedger{}
	handler := newOrderHooksHandler(ledger)

	body := fmt.Sprintf(`{"order_id":"ORD-2003","partner_id":"%s","order_type":"buy","category":"furniture","order_value":"100"}`, uuid.New())
	rec := postJSON(t, handler.OrderAccepted, body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, ledger.txs)
}

func TestOrderAcceptedRejectsMalformedBody(t *testing.T) {
	handler := newOrderHooksHandler(&memoryLedger{})

	rec := postJSON(t, handler.OrderAccepted, `{"order_id":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrderCancelledReversesCommission(t *testing.T) {
	ledger := &memoryLedger{}
	handler := newOrderHooksHandler(ledger)
	partnerID := uuid.New()

	accept := fmt.Sprintf(`{"order_id":"ORD-2004","partner_id":"%s","order_type":"buy","category":"tablet","order_value":"10000"}`, partnerID)
	postJSON(t, handler.OrderAccepted, accept)

	rec := postJSON(t, handler.OrderCancelled, `{"order_id":"ORD-2004"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, ledger.txs, 2)

	net := decimal.Zero
	for _, tx := range ledger.txs {
		net = net.Add(tx.Amount)
	}
	assert.True(t, net.IsZero(), "net after reversal = %s", net)
}

func TestOrderCancelledWithoutCommissionIsNoOp(t *testing.T) {
	ledger := &memoryLedger{}
	handler := newOrderHooksHandler(ledger)

	rec := postJSON(t, handler.OrderCancelled, `{"order_id":"ORD-2005"}`)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["reversed"])
	assert.Empty(t, ledger.txs)
}
