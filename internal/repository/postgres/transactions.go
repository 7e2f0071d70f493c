package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"partnerledger/internal/domain"
	"partnerledger/internal/wallet"
	"partnerledger/pkg/errors"
)

const transactionColumns = `
	id, partner_id, type, amount, COALESCE(description, '') AS description,
	COALESCE(payment_method, '') AS payment_method, status, related_order_id,
	metadata, created_at, completed_at
`

// TransactionRepository persists the append-only wallet ledger. Entries are
// inserted, never updated, except for the pending -> completed/failed status
// settlement of payouts.
type TransactionRepository struct {
	db *sqlx.DB
}

func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Insert appends a transaction to the ledger. Postings for the same partner
// are serialized with a transaction-scoped advisory lock; different partners
// proceed in parallel.
func (r *TransactionRepository) Insert(ctx context.Context, wtx *domain.WalletTransaction) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Persistence("begin ledger insert", err)
	}
	defer tx.Rollback()

	if err := lockPartner(ctx, tx, wtx.PartnerID); err != nil {
		return err
	}

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO wallet_transactions (
			id, partner_id, type, amount, description, payment_method,
			status, related_order_id, metadata, created_at, completed_at
		) VALUES (
			:id, :partner_id, :type, :amount, :description, :payment_method,
			:status, :related_order_id, :metadata, :created_at, :completed_at
		)
	`, wtx)
	if err != nil {
		return errors.Persistence("insert wallet transaction", err)
	}

	if err := tx.Commit(); err != nil {
		return errors.Persistence("commit ledger insert", err)
	}
	return nil
}

// lockPartner serializes writes for one partner's ledger. The lock is released
// automatically when the surrounding transaction commits or rolls back.
func lockPartner(ctx context.Context, tx *sqlx.Tx, partnerID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, partnerID.String())
	return errors.Persistence("acquire partner lock", err)
}

func (r *TransactionRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.WalletTransaction, error) {
	wtx := &domain.WalletTransaction{}
	query := `SELECT ` + transactionColumns + ` FROM wallet_transactions WHERE id = $1`
	err := r.db.GetContext(ctx, wtx, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrTransactionNotFound
	}
	if err != nil {
		return nil, errors.Persistence("find wallet transaction", err)
	}
	return wtx, nil
}

// FindByRelatedOrder returns every ledger entry tied to an order, oldest first.
func (r *TransactionRepository) FindByRelatedOrder(ctx context.Context, orderID string) ([]*domain.WalletTransaction, error) {
	var txs []*domain.WalletTransaction
	query := `
		SELECT ` + transactionColumns + `
		FROM wallet_transactions
		WHERE related_order_id = $1
		ORDER BY created_at ASC
	`
	err := r.db.SelectContext(ctx, &txs, query, orderID)
	if err != nil {
		return nil, errors.Persistence("find transactions by order", err)
	}
	return txs, nil
}

// List returns a partner's transactions, most recent first.
func (r *TransactionRepository) List(ctx context.Context, partnerID uuid.UUID, filter wallet.ListFilter) ([]*domain.WalletTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM wallet_transactions WHERE partner_id = $1`
	args := []interface{}{partnerID}
	query, args = applyFilter(query, args, filter)

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)

	var txs []*domain.WalletTransaction
	err := r.db.SelectContext(ctx, &txs, query, args...)
	if err != nil {
		return nil, errors.Persistence("list wallet transactions", err)
	}
	return txs, nil
}

// Count returns the number of transactions matching the filter.
func (r *TransactionRepository) Count(ctx context.Context, partnerID uuid.UUID, filter wallet.ListFilter) (int, error) {
	query := `SELECT COUNT(*) FROM wallet_transactions WHERE partner_id = $1`
	args := []interface{}{partnerID}
	query, args = applyFilter(query, args, filter)

	var count int
	err := r.db.GetContext(ctx, &count, query, args...)
	if err != nil {
		return 0, errors.Persistence("count wallet transactions", err)
	}
	return count, nil
}

func applyFilter(query string, args []interface{}, filter wallet.ListFilter) (string, []interface{}) {
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		query += fmt.Sprintf(" AND type = ANY($%d)", len(args)+1)
		args = append(args, pq.Array(types))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		query += fmt.Sprintf(" AND status = ANY($%d)", len(args)+1)
		args = append(args, pq.Array(statuses))
	}
	if filter.From != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", len(args)+1)
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		query += fmt.Sprintf(" AND created_at < $%d", len(args)+1)
		args = append(args, *filter.To)
	}
	return query, args
}

// Summary computes the derived wallet view in one aggregate query. Balance is
// the sum of completed amounts and can never drift from the ledger.
func (r *TransactionRepository) Summary(ctx context.Context, partnerID uuid.UUID) (*domain.PartnerWallet, error) {
	summary := &domain.PartnerWallet{PartnerID: partnerID}
	query := `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE status = 'completed'), 0) AS balance,
			COALESCE(SUM(amount) FILTER (WHERE status = 'completed' AND amount > 0), 0) AS total_earnings,
			COALESCE(ABS(SUM(amount) FILTER (WHERE status = 'completed' AND type = 'payout')), 0) AS total_withdrawals,
			COALESCE(ABS(SUM(amount) FILTER (WHERE status = 'completed' AND type = 'commission')), 0) AS total_commission,
			COALESCE(ABS(SUM(amount) FILTER (WHERE status = 'pending' AND type = 'payout')), 0) AS pending_payouts,
			COUNT(*) AS transaction_count,
			MAX(created_at) AS last_transaction_at
		FROM wallet_transactions
		WHERE partner_id = $1
	`
	err := r.db.GetContext(ctx, summary, query, partnerID)
	if err != nil {
		return nil, errors.Persistence("summarize wallet", err)
	}
	return summary, nil
}

// SettleStatus moves a pending transaction to completed or failed. It reports
// changed=false without error when the transaction is already in the target
// state, so retries are harmless.
func (r *TransactionRepository) SettleStatus(ctx context.Context, id uuid.UUID, target domain.TransactionStatus) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, errors.Persistence("begin settle", err)
	}
	defer tx.Rollback()

	var current struct {
		PartnerID uuid.UUID                `db:"partner_id"`
		Status    domain.TransactionStatus `db:"status"`
	}
	err = tx.GetContext(ctx, &current, `
		SELECT partner_id, status FROM wallet_transactions WHERE id = $1 FOR UPDATE
	`, id)
	if err == sql.ErrNoRows {
		return false, errors.ErrTransactionNotFound
	}
	if err != nil {
		return false, errors.Persistence("lock transaction for settle", err)
	}

	if current.Status == target {
		return false, nil
	}
	if current.Status != domain.TransactionStatusPending {
		return false, errors.ErrInvalidStatusTransition
	}

	if err := lockPartner(ctx, tx, current.PartnerID); err != nil {
		return false, err
	}

	var completedAt *time.Time
	if target == domain.TransactionStatusCompleted {
		now := time.Now().UTC()
		completedAt = &now
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE wallet_transactions SET status = $1, completed_at = $2 WHERE id = $3
	`, target, completedAt, id)
	if err != nil {
		return false, errors.Persistence("settle transaction", err)
	}

	if err := tx.Commit(); err != nil {
		return false, errors.Persistence("commit settle", err)
	}
	return true, nil
}
