// Package domain defines the commission and wallet ledger data model.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderType distinguishes purchase orders from sale orders.
type OrderType string

const (
	OrderTypeBuy  OrderType = "buy"
	OrderTypeSell OrderType = "sell"
)

// Category is a product category. The set is closed at any point in time;
// adding a category requires a coordinated rate-table update.
type Category string

const (
	CategoryMobile      Category = "mobile"
	CategoryTablet      Category = "tablet"
	CategoryLaptop      Category = "laptop"
	CategoryAccessories Category = "accessories"
)

// Categories lists every known category.
func Categories() []Category {
	return []Category{CategoryMobile, CategoryTablet, CategoryLaptop, CategoryAccessories}
}

// IsKnownCategory reports whether c is in the closed category set.
func IsKnownCategory(c Category) bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// RateSet holds commission percentages for every order type and category.
// Rates are percentages in [0, 100], stored as decimals.
type RateSet struct {
	Buy  map[Category]decimal.Decimal `json:"buy"`
	Sell map[Category]decimal.Decimal `json:"sell"`
}

// Rate returns the percentage for the given order type and category.
func (rs RateSet) Rate(orderType OrderType, category Category) (decimal.Decimal, bool) {
	var rates map[Category]decimal.Decimal
	switch orderType {
	case OrderTypeBuy:
		rates = rs.Buy
	case OrderTypeSell:
		rates = rs.Sell
	default:
		return decimal.Decimal{}, false
	}
	rate, ok := rates[category]
	return rate, ok
}

func (rs RateSet) Value() (driver.Value, error) {
	return json.Marshal(rs)
}

func (rs *RateSet) Scan(value interface{}) error {
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, rs)
}

// CommissionSettings is the singleton global rate configuration. Version is
// bumped on every write and checked on update to reject concurrent edits.
type CommissionSettings struct {
	ID           uuid.UUID `json:"id" db:"id"`
	DefaultRates RateSet   `json:"default_rates" db:"default_rates"`
	Version      int64     `json:"version" db:"version"`
	UpdatedBy    uuid.UUID `json:"updated_by" db:"updated_by"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// PartnerOverride replaces the global defaults entirely for one partner while
// active. Deactivated overrides are kept for audit and never consulted.
type PartnerOverride struct {
	ID        uuid.UUID `json:"id" db:"id"`
	PartnerID uuid.UUID `json:"partner_id" db:"partner_id"`
	Rates     RateSet   `json:"rates" db:"rates"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedBy uuid.UUID `json:"created_by" db:"created_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type TransactionType string

const (
	TransactionTypeCommission         TransactionType = "commission"
	TransactionTypeCommissionReversal TransactionType = "commission_reversal"
	TransactionTypeAdminCredit        TransactionType = "admin_credit"
	TransactionTypeAdminDebit         TransactionType = "admin_debit"
	TransactionTypePayout             TransactionType = "payout"
	TransactionTypeOrderPayment       TransactionType = "order_payment"
	TransactionTypeRefund             TransactionType = "refund"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// WalletTransaction is one entry in a partner's append-only ledger. Amount is
// signed: positive credits the partner, negative debits them. An entry is
// immutable once completed; corrections are new compensating entries.
type WalletTransaction struct {
	ID             uuid.UUID         `json:"id" db:"id"`
	PartnerID      uuid.UUID         `json:"partner_id" db:"partner_id"`
	Type           TransactionType   `json:"type" db:"type"`
	Amount         decimal.Decimal   `json:"amount" db:"amount"`
	Description    string            `json:"description" db:"description"`
	PaymentMethod  string            `json:"payment_method" db:"payment_method"`
	Status         TransactionStatus `json:"status" db:"status"`
	RelatedOrderID *string           `json:"related_order_id,omitempty" db:"related_order_id"`
	Metadata       Metadata          `json:"metadata" db:"metadata"`
	CreatedAt      time.Time         `json:"created_at" db:"created_at"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty" db:"completed_at"`
}

// PartnerWallet is a derived view over the ledger, never a stored balance.
// Balance is the sum of completed amounts; the other figures are filtered sums.
type PartnerWallet struct {
	PartnerID         uuid.UUID       `json:"partner_id" db:"partner_id"`
	Balance           decimal.Decimal `json:"balance" db:"balance"`
	TotalEarnings     decimal.Decimal `json:"total_earnings" db:"total_earnings"`
	TotalWithdrawals  decimal.Decimal `json:"total_withdrawals" db:"total_withdrawals"`
	TotalCommission   decimal.Decimal `json:"total_commission" db:"total_commission"`
	PendingPayouts    decimal.Decimal `json:"pending_payouts" db:"pending_payouts"`
	TransactionCount  int64           `json:"transaction_count" db:"transaction_count"`
	LastTransactionAt *time.Time      `json:"last_transaction_at,omitempty" db:"last_transaction_at"`
}

// Metadata is a JSON-compatible map
type Metadata map[string]interface{}

func (m Metadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *Metadata) Scan(value interface{}) error {
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, &m)
}

// MetadataKeyReversalOf links a reversal entry to the transaction it compensates.
const MetadataKeyReversalOf = "reversal_of"
