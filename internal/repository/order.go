package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/loyalty-engine/internal/domain/campaign"
	"github.com/xenking/loyalty-engine/internal/domain/customer"
	"github.com/xenking/loyalty-engine/internal/domain/order"
	"github.com/xenking/loyalty-engine/internal/domain/points"
	"github.com/xenking/loyalty-engine/internal/domain/pricing"
)

const (
	orderNumberExistsSQL = `SELECT EXISTS(SELECT 1 FROM transactions WHERE order_number = $1)`

	updateTierSQL = `UPDATE customers SET tier = $2 WHERE id = $1`

	createTransactionSQL = `INSERT INTO transactions (id, order_number, customer_id,
		subtotal, discount_total, final_total, points_used, points_earned,
		payment_method, payment_reference, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	createItemSQL = `INSERT INTO transaction_items (transaction_id, product_id,
		name, unit_price, quantity, line_total, is_free)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	createCampaignUsageSQL = `INSERT INTO campaign_usages (id, campaign_id,
		customer_id, transaction_id, discount, used_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	createStampUsageSQL = `INSERT INTO stamp_usages (id, campaign_id,
		customer_id, transaction_id, free_product_id, used_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	redeemGrantSQL = `UPDATE reward_grants SET redeemed = TRUE, redeemed_at = $2
		WHERE id = $1 AND NOT redeemed`

	appendLedgerSQL = `INSERT INTO point_ledger (customer_id, amount, type,
		source, balance, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	// The points >= guard backs up the FOR UPDATE read: the balance can
	// never be driven negative even if callers miscount.
	updateCountersSQL = `UPDATE customers
		SET points = $2, total_spent = total_spent + $3,
		    visit_count = visit_count + 1, last_visit = $4
		WHERE id = $1 AND $2 >= 0`
)

var _ order.Store = (*OrderStore)(nil)

// OrderStore implements order.Store backed by PostgreSQL. All commit writes
// run inside a single pgx transaction opened by InTx.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore returns an OrderStore that uses the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// OrderNumberExists reports whether the idempotency key was already used.
func (s *OrderStore) OrderNumberExists(ctx context.Context, orderNumber string) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, orderNumberExistsSQL, orderNumber).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking order number %q: %w", orderNumber, err)
	}
	return exists, nil
}

// UpdateTier writes the customer's tier outside any commit transaction.
func (s *OrderStore) UpdateTier(ctx context.Context, customerID string, tier customer.Tier) error {
	if _, err := s.pool.Exec(ctx, updateTierSQL, customerID, tier); err != nil {
		return fmt.Errorf("updating tier for customer %q: %w", customerID, err)
	}
	return nil
}

// InTx runs fn inside one database transaction. Any error from fn rolls
// everything back; no partial commit state can survive.
func (s *OrderStore) InTx(ctx context.Context, fn func(ctx context.Context, tx order.TxStore) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &txStore{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// txStore implements order.TxStore over a live pgx transaction.
type txStore struct {
	tx pgx.Tx
}

var _ order.TxStore = (*txStore)(nil)

func (t *txStore) GetCustomerForUpdate(ctx context.Context, id string) (*customer.Customer, error) {
	return scanCustomer(t.tx.QueryRow(ctx, getCustomerForUpdateSQL, id), id)
}

func (t *txStore) GetCampaign(ctx context.Context, id string) (*campaign.Campaign, error) {
	return scanCampaignRow(t.tx.QueryRow(ctx, getCampaignSQL, id))
}

func (t *txStore) CountUsage(ctx context.Context, campaignID string) (int, error) {
	var n int
	if err := t.tx.QueryRow(ctx, countUsageSQL, campaignID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting usage for campaign %q: %w", campaignID, err)
	}
	return n, nil
}

func (t *txStore) CountCustomerUsage(ctx context.Context, campaignID, customerID string) (int, error) {
	var n int
	if err := t.tx.QueryRow(ctx, countCustomerUsageSQL, campaignID, customerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting customer usage for campaign %q: %w", campaignID, err)
	}
	return n, nil
}

func (t *txStore) CreateTransaction(ctx context.Context, o *order.Transaction) error {
	_, err := t.tx.Exec(ctx, createTransactionSQL,
		o.ID, o.OrderNumber, o.CustomerID,
		o.Subtotal, o.DiscountTotal, o.FinalTotal, o.PointsUsed, o.PointsEarned,
		o.PaymentMethod, o.PaymentReference, o.Notes, o.CreatedAt,
	)
	if err != nil {
		// The pre-commit existence check races with concurrent commits; the
		// unique index on order_number is the authoritative guard.
		if isDuplicateOrderNumber(err) {
			return &order.DuplicateOrderError{OrderNumber: o.OrderNumber}
		}
		return fmt.Errorf("creating transaction %q: %w", o.ID, err)
	}
	return nil
}

// isDuplicateOrderNumber reports whether err is the unique violation raised
// when a concurrent commit inserted the same order number first.
func isDuplicateOrderNumber(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == "23505" &&
		pgErr.ConstraintName == "transactions_order_number_key"
}

func (t *txStore) CreateItems(ctx context.Context, transactionID string, lines []pricing.Line) error {
	for _, l := range lines {
		lineTotal := l.LineTotal
		if l.IsFree {
			lineTotal = decimal.Zero
		}
		_, err := t.tx.Exec(ctx, createItemSQL,
			transactionID, l.ProductID, l.Name, l.UnitPrice, l.Quantity, lineTotal, l.IsFree,
		)
		if err != nil {
			return fmt.Errorf("creating item %q: %w", l.ProductID, err)
		}
	}
	return nil
}

func (t *txStore) CreateCampaignUsage(ctx context.Context, rec campaign.UsageRecord) error {
	_, err := t.tx.Exec(ctx, createCampaignUsageSQL,
		rec.ID, rec.CampaignID, rec.CustomerID, rec.TransactionID, rec.Discount, rec.UsedAt,
	)
	if err != nil {
		return fmt.Errorf("creating campaign usage: %w", err)
	}
	return nil
}

func (t *txStore) CreateStampUsage(ctx context.Context, rec campaign.StampUsage) error {
	_, err := t.tx.Exec(ctx, createStampUsageSQL,
		rec.ID, rec.CampaignID, rec.CustomerID, rec.TransactionID, rec.FreeProductID, rec.UsedAt,
	)
	if err != nil {
		return fmt.Errorf("creating stamp usage: %w", err)
	}
	return nil
}

func (t *txStore) RedeemGrant(ctx context.Context, grantID string, at time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, redeemGrantSQL, grantID, at)
	if err != nil {
		return false, fmt.Errorf("redeeming grant %q: %w", grantID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txStore) AppendLedger(ctx context.Context, e points.LedgerEntry) error {
	_, err := t.tx.Exec(ctx, appendLedgerSQL,
		e.CustomerID, e.Amount, e.Type, e.Source, e.Balance, e.ExpiresAt, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("appending ledger entry: %w", err)
	}
	return nil
}

func (t *txStore) UpdateCustomerCounters(ctx context.Context, customerID string, balance int64, spent decimal.Decimal, visitAt time.Time) error {
	tag, err := t.tx.Exec(ctx, updateCountersSQL, customerID, balance, spent, visitAt)
	if err != nil {
		return fmt.Errorf("updating counters for customer %q: %w", customerID, err)
	}
	if tag.RowsAffected() != 1 {
		return errors.Errorf("customer %s counters not updated", customerID)
	}
	return nil
}
