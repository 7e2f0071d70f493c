package commission

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"partnerledger/internal/domain"
	"partnerledger/internal/wallet"
	"partnerledger/pkg/logger"
)

// Ledger is the slice of the wallet service the commission flow needs.
type Ledger interface {
	Post(ctx context.Context, draft wallet.Draft) (*domain.WalletTransaction, error)
	FindByRelatedOrder(ctx context.Context, orderID string) ([]*domain.WalletTransaction, error)
}

// Service applies commissions on order acceptance and reverses them on
// rejection or cancellation. Both hooks are idempotent per order ID, so a
// caller retrying after a timeout cannot double-charge a partner.
type Service struct {
	resolver *Resolver
	ledger   Ledger
	logger   logger.Logger
}

func NewService(resolver *Resolver, ledger Ledger, log logger.Logger) *Service {
	return &Service{
		resolver: resolver,
		ledger:   ledger,
		logger:   log,
	}
}

// OnOrderAccepted charges the partner the platform's cut: a negative
// commission entry tied to the order. If a live (not yet reversed) commission
// already exists for the order, the existing entry is returned unchanged. A
// zero-value order resolves to a zero commission and posts nothing.
//
// A resolution failure propagates to the caller, which must abort the status
// transition rather than accept the order with no commission recorded.
func (s *Service) OnOrderAccepted(ctx context.Context, orderID string, partnerID uuid.UUID, orderType domain.OrderType, category domain.Category, orderValue decimal.Decimal) (*domain.WalletTransaction, error) {
	existing, err := s.ledger.FindByRelatedOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if live := liveCommission(existing); live != nil {
		s.logger.Info("Commission already applied", map[string]interface{}{
			"order_id":       orderID,
			"transaction_id": live.ID,
		})
		return live, nil
	}

	resolution, err := s.resolver.Resolve(ctx, partnerID, orderType, category, orderValue)
	if err != nil {
		return nil, err
	}
	if resolution.Amount.IsZero() {
		s.logger.Info("Zero commission resolved, nothing to post", map[string]interface{}{
			"order_id":   orderID,
			"partner_id": partnerID,
			"rate":       resolution.Rate.String(),
		})
		return nil, nil
	}

	wtx, err := s.ledger.Post(ctx, wallet.Draft{
		PartnerID:      partnerID,
		Type:           domain.TransactionTypeCommission,
		Amount:         resolution.Amount.Neg(),
		Description:    fmt.Sprintf("Commission on %s order %s (%s)", orderType, orderID, category),
		RelatedOrderID: &orderID,
		Metadata: domain.Metadata{
			"rate":        resolution.Rate.String(),
			"order_value": orderValue.String(),
			"order_type":  string(orderType),
			"category":    string(category),
			"event":       "accept",
		},
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Commission applied", map[string]interface{}{
		"order_id":       orderID,
		"partner_id":     partnerID,
		"transaction_id": wtx.ID,
		"amount":         wtx.Amount.String(),
	})
	return wtx, nil
}

// OnOrderRejectedOrCancelled posts a compensating reversal for the order's
// live commission. An order with no live commission is a no-op: either it was
// never charged, or every charge is already paired with a reversal, in which
// case the latest reversal is returned for the caller's benefit.
func (s *Service) OnOrderRejectedOrCancelled(ctx context.Context, orderID string) (*domain.WalletTransaction, error) {
	existing, err := s.ledger.FindByRelatedOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	live := liveCommission(existing)
	if live == nil {
		return latestReversal(existing), nil
	}

	wtx, err := s.ledger.Post(ctx, wallet.Draft{
		PartnerID:      live.PartnerID,
		Type:           domain.TransactionTypeCommissionReversal,
		Amount:         live.Amount.Neg(),
		Description:    fmt.Sprintf("Commission reversal for order %s", orderID),
		RelatedOrderID: &orderID,
		Metadata: domain.Metadata{
			domain.MetadataKeyReversalOf: live.ID.String(),
			"event":                      "reject_or_cancel",
		},
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Commission reversed", map[string]interface{}{
		"order_id":       orderID,
		"partner_id":     live.PartnerID,
		"transaction_id": wtx.ID,
		"reversal_of":    live.ID,
	})
	return wtx, nil
}

// liveCommission returns the latest completed commission entry not yet paired
// with a reversal. An order re-accepted after a reversal carries several
// commission entries; only an unpaired one counts as a live charge.
func liveCommission(txs []*domain.WalletTransaction) *domain.WalletTransaction {
	reversed := make(map[string]bool)
	for _, tx := range txs {
		if tx.Type != domain.TransactionTypeCommissionReversal {
			continue
		}
		if id, ok := tx.Metadata[domain.MetadataKeyReversalOf].(string); ok {
			reversed[id] = true
		}
	}

	var live *domain.WalletTransaction
	for _, tx := range txs {
		if tx.Type == domain.TransactionTypeCommission &&
			tx.Status == domain.TransactionStatusCompleted &&
			!reversed[tx.ID.String()] {
			live = tx
		}
	}
	return live
}

func latestReversal(txs []*domain.WalletTransaction) *domain.WalletTransaction {
	var reversal *domain.WalletTransaction
	for _, tx := range txs {
		if tx.Type == domain.TransactionTypeCommissionReversal {
			reversal = tx
		}
	}
	return reversal
}
