// Package commission resolves commission rates and applies them to the ledger
// on order lifecycle transitions.
package commission

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"partnerledger/internal/domain"
	"partnerledger/pkg/errors"
)

// RateSource yields the rate set that applies to a partner, override-aware.
type RateSource interface {
	GetEffectiveRates(ctx context.Context, partnerID uuid.UUID) (domain.RateSet, error)
}

// Resolution is the outcome of resolving a commission for one order.
type Resolution struct {
	Rate   decimal.Decimal `json:"rate"`
	Amount decimal.Decimal `json:"amount"`
}

type Resolver struct {
	rates RateSource
}

func NewResolver(rates RateSource) *Resolver {
	return &Resolver{rates: rates}
}

var oneHundred = decimal.NewFromInt(100)

// Resolve computes the commission for an order: orderValue * rate / 100,
// rounded half-up to 2 decimal places. A zero-value order yields a zero
// commission without error.
func (r *Resolver) Resolve(ctx context.Context, partnerID uuid.UUID, orderType domain.OrderType, category domain.Category, orderValue decimal.Decimal) (*Resolution, error) {
	if orderType != domain.OrderTypeBuy && orderType != domain.OrderTypeSell {
		return nil, errors.ErrUnknownOrderType
	}
	if !domain.IsKnownCategory(category) {
		return nil, errors.ErrUnknownCategory
	}
	if orderValue.IsNegative() {
		return nil, errors.ErrInvalidOrderValue
	}

	rateSet, err := r.rates.GetEffectiveRates(ctx, partnerID)
	if err != nil {
		return nil, err
	}

	rate, ok := rateSet.Rate(orderType, category)
	if !ok {
		return nil, errors.ErrUnknownCategory
	}

	amount := orderValue.Mul(rate).Div(oneHundred).Round(2)
	return &Resolution{Rate: rate, Amount: amount}, nil
}
