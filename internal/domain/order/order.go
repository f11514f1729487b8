package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/loyalty-engine/internal/domain/campaign"
	"github.com/xenking/loyalty-engine/internal/domain/customer"
	"github.com/xenking/loyalty-engine/internal/domain/points"
	"github.com/xenking/loyalty-engine/internal/domain/pricing"
)

// Sentinel errors for the preview/complete flow.
var (
	ErrEmptyItems   = errors.New("items required")
	ErrInvalidToken = errors.New("invalid or expired reservation token")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// DuplicateOrderError indicates the order number was already committed.
// The order number is the caller-supplied idempotency key.
type DuplicateOrderError struct {
	OrderNumber string
}

func (e *DuplicateOrderError) Error() string {
	return fmt.Sprintf("order %s already exists", e.OrderNumber)
}

// InsufficientPointsError indicates the customer's live balance no longer
// covers the reserved point spend. Raised at commit time even when the
// preview passed, closing the race where the balance changed in between.
type InsufficientPointsError struct {
	Requested int64
	Available int64
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points: requested %d, available %d", e.Requested, e.Available)
}

// Transaction is the durable result of a commit. Immutable once created.
type Transaction struct {
	ID            string
	OrderNumber   string
	CustomerID    string
	Subtotal      decimal.Decimal
	DiscountTotal decimal.Decimal
	FinalTotal    decimal.Decimal
	PointsUsed    int64
	PointsEarned  int64

	PaymentMethod    string
	PaymentReference string
	Notes            string
	CreatedAt        time.Time
}

// Store is the persistence boundary for commits. Everything inside InTx
// happens in one database transaction: partial application (points deducted
// but order missing) must be impossible.
type Store interface {
	OrderNumberExists(ctx context.Context, orderNumber string) (bool, error)
	InTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error

	// UpdateTier is a post-commit, best-effort write; its failure never
	// affects an already committed order.
	UpdateTier(ctx context.Context, customerID string, tier customer.Tier) error
}

// TxStore exposes the writes available inside the commit transaction.
type TxStore interface {
	// GetCustomerForUpdate loads the customer with a row lock, serializing
	// concurrent commits for the same customer.
	GetCustomerForUpdate(ctx context.Context, id string) (*customer.Customer, error)

	// GetCampaign re-reads a campaign inside the transaction to observe
	// concurrent admin edits.
	GetCampaign(ctx context.Context, id string) (*campaign.Campaign, error)
	CountUsage(ctx context.Context, campaignID string) (int, error)
	CountCustomerUsage(ctx context.Context, campaignID, customerID string) (int, error)

	CreateTransaction(ctx context.Context, t *Transaction) error
	CreateItems(ctx context.Context, transactionID string, lines []pricing.Line) error
	CreateCampaignUsage(ctx context.Context, rec campaign.UsageRecord) error
	CreateStampUsage(ctx context.Context, rec campaign.StampUsage) error

	// RedeemGrant marks an unredeemed grant redeemed and reports whether
	// this transaction won the update.
	RedeemGrant(ctx context.Context, grantID string, at time.Time) (bool, error)

	AppendLedger(ctx context.Context, entry points.LedgerEntry) error
	UpdateCustomerCounters(ctx context.Context, customerID string, balance int64, spent decimal.Decimal, visitAt time.Time) error
}
