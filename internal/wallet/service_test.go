package wallet

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"partnerledger/internal/domain"
	"partnerledger/pkg/errors"
	"partnerledger/pkg/logger"
)

// fakeRepository is an in-memory ledger with the same settlement semantics as
// the Postgres repository, so invariants can be checked over full sequences of
// operations.
type fakeRepository struct {
	txs []*domain.WalletTransaction
}

func (f *fakeRepository) Insert(ctx context.Context, wtx *domain.WalletTransaction) error {
	clone := *wtx
	f.txs = append(f.txs, &clone)
	return nil
}

func (f *fakeRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.WalletTransaction, error) {
	for _, tx := range f.txs {
		if tx.ID == id {
			return tx, nil
		}
	}
	return nil, errors.ErrTransactionNotFound
}

func (f *fakeRepository) FindByRelatedOrder(ctx context.Context, orderID string) ([]*domain.WalletTransaction, error) {
	var out []*domain.WalletTransaction
	for _, tx := range f.txs {
		if tx.RelatedOrderID != nil && *tx.RelatedOrderID == orderID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (f *fakeRepository) List(ctx context.Context, partnerID uuid.UUID, filter ListFilter) ([]*domain.WalletTransaction, error) {
	var out []*domain.WalletTransaction
	for _, tx := range f.txs {
		if tx.PartnerID == partnerID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (f *fakeRepository) Count(ctx context.Context, partnerID uuid.UUID, filter ListFilter) (int, error) {
	txs, _ := f.List(ctx, partnerID, filter)
	return len(txs), nil
}

func (f *fakeRepository) Summary(ctx context.Context, partnerID uuid.UUID) (*domain.PartnerWallet, error) {
	summary := &domain.PartnerWallet{PartnerID: partnerID}
	for _, tx := range f.txs {
		if tx.PartnerID != partnerID {
			continue
		}
		summary.TransactionCount++
		switch tx.Status {
		case domain.TransactionStatusCompleted:
			summary.Balance = summary.Balance.Add(tx.Amount)
			if tx.Amount.IsPositive() {
				summary.TotalEarnings = summary.TotalEarnings.Add(tx.Amount)
			}
			if tx.Type == domain.TransactionTypePayout {
				summary.TotalWithdrawals = summary.TotalWithdrawals.Add(tx.Amount.Abs())
			}
			if tx.Type == domain.TransactionTypeCommission {
				summary.TotalCommission = summary.TotalCommission.Add(tx.Amount.Abs())
			}
		case domain.TransactionStatusPending:
			if tx.Type == domain.TransactionTypePayout {
				summary.PendingPayouts = summary.PendingPayouts.Add(tx.Amount.Abs())
			}
		}
	}
	return summary, nil
}

func (f *fakeRepository) SettleStatus(ctx context.Context, id uuid.UUID, target domain.TransactionStatus) (bool, error) {
	tx, err := f.FindByID(ctx, id)
	if err != nil {
		return false, err
	}
	if tx.Status == target {
		return false, nil
	}
	if tx.Status != domain.TransactionStatusPending {
		return false, errors.ErrInvalidStatusTransition
	}
	tx.Status = target
	return true, nil
}

func newTestService(repo Repository) *Service {
	return NewService(repo, nil, nil, 0, logger.NewNop())
}

func TestPostValidation(t *testing.T) {
	service := newTestService(&fakeRepository{})
	ctx := context.Background()

	_, err := service.Post(ctx, Draft{Type: domain.TransactionTypeAdminCredit, Amount: decimal.NewFromInt(100)})
	assert.ErrorIs(t, err, errors.ErrMissingPartner)

	_, err = service.Post(ctx, Draft{PartnerID: uuid.New(), Type: "gift_card", Amount: decimal.NewFromInt(100)})
	assert.ErrorIs(t, err, errors.ErrInvalidTransactionType)

	_, err = service.Post(ctx, Draft{PartnerID: uuid.New(), Type: domain.TransactionTypeAdminCredit, Amount: decimal.Zero})
	assert.ErrorIs(t, err, errors.ErrInvalidTransactionAmount)
}

func TestPostStatusByType(t *testing.T) {
	service := newTestService(&fakeRepository{})
	ctx := context.Background()
	partnerID := uuid.New()

	credit, err := service.Post(ctx, Draft{PartnerID: partnerID, Type: domain.TransactionTypeAdminCredit, Amount: decimal.NewFromInt(100)})
	assert.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCompleted, credit.Status)
	assert.NotNil(t, credit.CompletedAt)

	payout, err := service.Post(ctx, Draft{PartnerID: partnerID, Type: domain.TransactionTypePayout, Amount: decimal.NewFromInt(-100)})
	assert.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusPending, payout.Status)
	assert.Nil(t, payout.CompletedAt)
}

func TestBalanceIsSumOfCompletedEntries(t *testing.T) {
	repo := &fakeRepository{}
	service := newTestService(repo)
	ctx := context.Background()
	partnerID := uuid.New()

	_, err := service.Post(ctx, Draft{PartnerID: partnerID, Type: domain.TransactionTypeOrderPayment, Amount: decimal.NewFromInt(2000), Description: "order settled"})
	assert.NoError(t, err)
	_, err = service.Post(ctx, Draft{PartnerID: partnerID, Type: domain.TransactionTypeCommission, Amount: decimal.NewFromInt(-500), Description: "commission"})
	assert.NoError(t, err)
	payout, err := service.RequestPayout(ctx, partnerID, decimal.NewFromInt(300), "bank_transfer", "weekly payout")
	assert.NoError(t, err)

	// Pending payout must not move the balance yet.
	balance, err := service.GetBalance(ctx, partnerID)
	assert.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(1500)), "balance = %s", balance)

	w, err := service.GetWallet(ctx, partnerID)
	assert.NoError(t, err)
	assert.True(t, w.PendingPayouts.Equal(decimal.NewFromInt(300)))

	assert.NoError(t, service.MarkCompleted(ctx, payout.ID))

	balance, err = service.GetBalance(ctx, partnerID)
	assert.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(1200)), "balance = %s", balance)
}

func TestFailedPayoutRestoresNothing(t *testing.T) {
	repo := &fakeRepository{}
	service := newTestService(repo)
	ctx := context.Background()
	partnerID := uuid.New()

	_, err := service.Post(ctx, Draft{PartnerID: partnerID, Type: domain.TransactionTypeAdminCredit, Amount: decimal.NewFromInt(1000), Description: "opening credit"})
	assert.NoError(t, err)
	payout, err := service.RequestPayout(ctx, partnerID, decimal.NewFromInt(400), "upi", "payout")
	assert.NoError(t, err)

	assert.NoError(t, service.MarkFailed(ctx, payout.ID))

	// A failed entry never counts toward the balance.
	balance, err := service.GetBalance(ctx, partnerID)
	assert.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(1000)), "balance = %s", balance)

	w, err := service.GetWallet(ctx, partnerID)
	assert.NoError(t, err)
	assert.True(t, w.PendingPayouts.IsZero())
}

func TestSettleIsIdempotent(t *testing.T) {
	repo := &fakeRepository{}
	service := newTestService(repo)
	ctx := context.Background()
	partnerID := uuid.New()

	payout, err := service.RequestPayout(ctx, partnerID, decimal.NewFromInt(250), "bank_transfer", "payout")
	assert.NoError(t, err)

	assert.NoError(t, service.MarkCompleted(ctx, payout.ID))
	assert.NoError(t, service.MarkCompleted(ctx, payout.ID))

	balance, err := service.GetBalance(ctx, partnerID)
	assert.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(-250)), "balance = %s", balance)
}

func TestSettleRejectsCrossTransition(t *testing.T) {
	repo := &fakeRepository{}
	service := newTestService(repo)
	ctx := context.Background()

	payout, err := service.RequestPayout(ctx, uuid.New(), decimal.NewFromInt(250), "bank_transfer", "payout")
	assert.NoError(t, err)

	assert.NoError(t, service.MarkFailed(ctx, payout.ID))
	assert.ErrorIs(t, service.MarkCompleted(ctx, payout.ID), errors.ErrInvalidStatusTransition)
}

func TestRequestPayoutValidation(t *testing.T) {
	service := newTestService(&fakeRepository{})
	ctx := context.Background()

	_, err := service.RequestPayout(ctx, uuid.New(), decimal.Zero, "upi", "payout")
	assert.ErrorIs(t, err, errors.ErrInvalidAmount)

	_, err = service.RequestPayout(ctx, uuid.New(), decimal.NewFromInt(-10), "upi", "payout")
	assert.ErrorIs(t, err, errors.ErrInvalidAmount)
}

func TestRequestPayoutRecordsNegativeAmount(t *testing.T) {
	repo := &fakeRepository{}
	service := newTestService(repo)

	payout, err := service.RequestPayout(context.Background(), uuid.New(), decimal.NewFromInt(750), "bank_transfer", "payout")

	assert.NoError(t, err)
	assert.True(t, payout.Amount.Equal(decimal.NewFromInt(-750)))
	assert.Equal(t, "bank_transfer", payout.PaymentMethod)
}

func TestFindByRelatedOrder(t *testing.T) {
	repo := &fakeRepository{}
	service := newTestService(repo)
	ctx := context.Background()
	partnerID := uuid.New()
	orderID := "ORD-4001"

	_, err := service.Post(ctx, Draft{PartnerID: partnerID, Type: domain.TransactionTypeCommission, Amount: decimal.NewFromInt(-500), RelatedOrderID: &orderID})
	assert.NoError(t, err)
	_, err = service.Post(ctx, Draft{PartnerID: partnerID, Type: domain.TransactionTypeAdminCredit, Amount: decimal.NewFromInt(100)})
	assert.NoError(t, err)

	txs, err := service.FindByRelatedOrder(ctx, orderID)
	assert.NoError(t, err)
	assert.Len(t, txs, 1)
	assert.Equal(t, domain.TransactionTypeCommission, txs[0].Type)

	none, err := service.FindByRelatedOrder(ctx, "ORD-4002")
	assert.NoError(t, err)
	assert.Empty(t, none)
}

func TestListTransactionsReturnsTotal(t *testing.T) {
	repo := &fakeRepository{}
	service := newTestService(repo)
	ctx := context.Background()
	partnerID := uuid.New()

	for i := 0; i < 3; i++ {
		_, err := service.Post(ctx, Draft{PartnerID: partnerID, Type: domain.TransactionTypeAdminCredit, Amount: decimal.NewFromInt(10)})
		assert.NoError(t, err)
	}

	txs, total, err := service.ListTransactions(ctx, partnerID, ListFilter{})
	assert.NoError(t, err)
	assert.Len(t, txs, 3)
	assert.Equal(t, 3, total)
}
