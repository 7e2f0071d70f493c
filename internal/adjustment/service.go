// Package adjustment posts manually-entered credits and debits to partner
// wallets. It is the only path that moves money outside the commission flow,
// so every movement must carry a description for the audit trail.
package adjustment

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"partnerledger/internal/domain"
	"partnerledger/internal/wallet"
	"partnerledger/pkg/errors"
	"partnerledger/pkg/logger"
)

// Kind selects the direction of a manual adjustment.
type Kind string

const (
	KindCredit Kind = "credit"
	KindDebit  Kind = "debit"
)

// Ledger is the slice of the wallet service adjustments need.
type Ledger interface {
	Post(ctx context.Context, draft wallet.Draft) (*domain.WalletTransaction, error)
}

type Service struct {
	ledger Ledger
	logger logger.Logger
}

func NewService(ledger Ledger, log logger.Logger) *Service {
	return &Service{
		ledger: ledger,
		logger: log,
	}
}

// Request describes a manual adjustment. Amount is always positive; Kind
// determines the ledger sign.
type Request struct {
	PartnerID     uuid.UUID       `json:"partner_id" validate:"required"`
	Kind          Kind            `json:"kind" validate:"required,oneof=credit debit"`
	Amount        decimal.Decimal `json:"amount" validate:"required"`
	Description   string          `json:"description" validate:"required"`
	PaymentMethod string          `json:"payment_method"`
	AdjustedBy    uuid.UUID       `json:"adjusted_by"`
}

// Adjust validates and posts the adjustment as a completed ledger entry.
// Validation failures occur before any ledger write.
func (s *Service) Adjust(ctx context.Context, req Request) (*domain.WalletTransaction, error) {
	if req.Kind != KindCredit && req.Kind != KindDebit {
		return nil, errors.ErrInvalidTransactionType
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.ErrInvalidAmount
	}
	if strings.TrimSpace(req.Description) == "" {
		return nil, errors.ErrMissingDescription
	}

	amount := req.Amount
	txType := domain.TransactionTypeAdminCredit
	if req.Kind == KindDebit {
		amount = amount.Neg()
		txType = domain.TransactionTypeAdminDebit
	}

	wtx, err := s.ledger.Post(ctx, wallet.Draft{
		PartnerID:     req.PartnerID,
		Type:          txType,
		Amount:        amount,
		Description:   req.Description,
		PaymentMethod: req.PaymentMethod,
		Metadata: domain.Metadata{
			"adjusted_by": req.AdjustedBy.String(),
		},
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Manual adjustment posted", map[string]interface{}{
		"transaction_id": wtx.ID,
		"partner_id":     req.PartnerID,
		"kind":           req.Kind,
		"amount":         wtx.Amount.String(),
		"adjusted_by":    req.AdjustedBy,
	})
	return wtx, nil
}
