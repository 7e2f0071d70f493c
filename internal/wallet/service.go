// Package wallet maintains each partner's append-only transaction ledger.
//
// The ledger is the source of truth: balances are derived sums over completed
// entries, never stored counters. Corrections are compensating entries.
package wallet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"partnerledger/internal/domain"
	"partnerledger/pkg/cache"
	"partnerledger/pkg/errors"
	"partnerledger/pkg/logger"
)

// ListFilter narrows List/Count results. Zero values mean "no filter".
type ListFilter struct {
	Types    []domain.TransactionType
	Statuses []domain.TransactionStatus
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

// Repository is the persistence contract for the ledger.
type Repository interface {
	Insert(ctx context.Context, wtx *domain.WalletTransaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.WalletTransaction, error)
	FindByRelatedOrder(ctx context.Context, orderID string) ([]*domain.WalletTransaction, error)
	List(ctx context.Context, partnerID uuid.UUID, filter ListFilter) ([]*domain.WalletTransaction, error)
	Count(ctx context.Context, partnerID uuid.UUID, filter ListFilter) (int, error)
	Summary(ctx context.Context, partnerID uuid.UUID) (*domain.PartnerWallet, error)
	SettleStatus(ctx context.Context, id uuid.UUID, target domain.TransactionStatus) (bool, error)
}

// Cache fronts the derived balance. It is an optimization only; a miss always
// recomputes from the ledger.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Publisher receives every ledger change for live admin-console feeds.
type Publisher interface {
	Publish(partnerID uuid.UUID, event string, wtx *domain.WalletTransaction)
}

type Service struct {
	repo      Repository
	cache     Cache
	publisher Publisher
	cacheTTL  time.Duration
	logger    logger.Logger
}

func NewService(repo Repository, c Cache, pub Publisher, cacheTTL time.Duration, log logger.Logger) *Service {
	return &Service{
		repo:      repo,
		cache:     c,
		publisher: pub,
		cacheTTL:  cacheTTL,
		logger:    log,
	}
}

// Draft describes a transaction before it is assigned an ID and appended.
type Draft struct {
	PartnerID      uuid.UUID
	Type           domain.TransactionType
	Amount         decimal.Decimal
	Description    string
	PaymentMethod  string
	RelatedOrderID *string
	Metadata       domain.Metadata
}

// Post appends a transaction to the partner's ledger. Payouts start pending
// until an external confirmation settles them; everything else completes
// immediately. The append is atomic: the entry is durably recorded or nothing
// is observable.
func (s *Service) Post(ctx context.Context, draft Draft) (*domain.WalletTransaction, error) {
	if draft.PartnerID == uuid.Nil {
		return nil, errors.ErrMissingPartner
	}
	if !isKnownType(draft.Type) {
		return nil, errors.ErrInvalidTransactionType
	}
	if draft.Amount.IsZero() {
		return nil, errors.ErrInvalidTransactionAmount
	}

	now := time.Now().UTC()
	wtx := &domain.WalletTransaction{
		ID:             uuid.New(),
		PartnerID:      draft.PartnerID,
		Type:           draft.Type,
		Amount:         draft.Amount,
		Description:    strings.TrimSpace(draft.Description),
		PaymentMethod:  draft.PaymentMethod,
		Status:         domain.TransactionStatusCompleted,
		RelatedOrderID: draft.RelatedOrderID,
		Metadata:       draft.Metadata,
		CreatedAt:      now,
	}

	if draft.Type == domain.TransactionTypePayout {
		wtx.Status = domain.TransactionStatusPending
	} else {
		completedAt := now
		wtx.CompletedAt = &completedAt
	}

	if err := s.repo.Insert(ctx, wtx); err != nil {
		return nil, err
	}

	s.invalidateBalance(ctx, wtx.PartnerID)
	s.publish(wtx.PartnerID, "posted", wtx)

	s.logger.Info("Ledger entry posted", map[string]interface{}{
		"transaction_id": wtx.ID,
		"partner_id":     wtx.PartnerID,
		"type":           wtx.Type,
		"amount":         wtx.Amount.String(),
		"status":         wtx.Status,
	})
	return wtx, nil
}

// RequestPayout posts a pending withdrawal. The amount is given as a positive
// figure and recorded as a negative ledger entry once completed.
func (s *Service) RequestPayout(ctx context.Context, partnerID uuid.UUID, amount decimal.Decimal, paymentMethod, description string) (*domain.WalletTransaction, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.ErrInvalidAmount
	}
	return s.Post(ctx, Draft{
		PartnerID:     partnerID,
		Type:          domain.TransactionTypePayout,
		Amount:        amount.Neg(),
		Description:   description,
		PaymentMethod: paymentMethod,
	})
}

// GetBalance returns the sum of completed amounts for the partner. The cached
// value is only ever a previously computed aggregate; any write for the same
// partner drops it.
func (s *Service) GetBalance(ctx context.Context, partnerID uuid.UUID) (decimal.Decimal, error) {
	key := balanceKey(partnerID)
	if s.cache != nil {
		var cached decimal.Decimal
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		} else if err != cache.ErrMiss {
			s.logger.Warn("Balance cache read failed", map[string]interface{}{
				"partner_id": partnerID,
				"error":      err.Error(),
			})
		}
	}

	summary, err := s.repo.Summary(ctx, partnerID)
	if err != nil {
		return decimal.Decimal{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, summary.Balance, s.cacheTTL); err != nil {
			s.logger.Warn("Balance cache write failed", map[string]interface{}{
				"partner_id": partnerID,
				"error":      err.Error(),
			})
		}
	}
	return summary.Balance, nil
}

// GetWallet returns the full derived wallet view.
func (s *Service) GetWallet(ctx context.Context, partnerID uuid.UUID) (*domain.PartnerWallet, error) {
	return s.repo.Summary(ctx, partnerID)
}

// GetTransaction returns a single ledger entry.
func (s *Service) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.WalletTransaction, error) {
	return s.repo.FindByID(ctx, id)
}

// FindByRelatedOrder returns every ledger entry tied to an order, oldest first.
func (s *Service) FindByRelatedOrder(ctx context.Context, orderID string) ([]*domain.WalletTransaction, error) {
	return s.repo.FindByRelatedOrder(ctx, orderID)
}

// ListTransactions returns a page of the partner's ledger, most recent first,
// along with the total count matching the filter.
func (s *Service) ListTransactions(ctx context.Context, partnerID uuid.UUID, filter ListFilter) ([]*domain.WalletTransaction, int, error) {
	txs, err := s.repo.List(ctx, partnerID, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.Count(ctx, partnerID, filter)
	if err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

// MarkCompleted settles a pending transaction. Calling it again once the
// transaction is completed is a no-op.
func (s *Service) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	return s.settle(ctx, id, domain.TransactionStatusCompleted)
}

// MarkFailed voids a pending transaction. Failed entries never count toward
// the balance. Calling it again once failed is a no-op.
func (s *Service) MarkFailed(ctx context.Context, id uuid.UUID) error {
	return s.settle(ctx, id, domain.TransactionStatusFailed)
}

func (s *Service) settle(ctx context.Context, id uuid.UUID, target domain.TransactionStatus) error {
	changed, err := s.repo.SettleStatus(ctx, id, target)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	wtx, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	s.invalidateBalance(ctx, wtx.PartnerID)
	s.publish(wtx.PartnerID, "settled", wtx)

	s.logger.Info("Ledger entry settled", map[string]interface{}{
		"transaction_id": id,
		"partner_id":     wtx.PartnerID,
		"status":         target,
	})
	return nil
}

func (s *Service) invalidateBalance(ctx context.Context, partnerID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, balanceKey(partnerID)); err != nil {
		s.logger.Warn("Balance cache invalidation failed", map[string]interface{}{
			"partner_id": partnerID,
			"error":      err.Error(),
		})
	}
}

func (s *Service) publish(partnerID uuid.UUID, event string, wtx *domain.WalletTransaction) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(partnerID, event, wtx)
}

func balanceKey(partnerID uuid.UUID) string {
	return fmt.Sprintf("wallet:balance:%s", partnerID)
}

func isKnownType(t domain.TransactionType) bool {
	switch t {
	case domain.TransactionTypeCommission,
		domain.TransactionTypeCommissionReversal,
		domain.TransactionTypeAdminCredit,
		domain.TransactionTypeAdminDebit,
		domain.TransactionTypePayout,
		domain.TransactionTypeOrderPayment,
		domain.TransactionTypeRefund:
		return true
	}
	return false
}
