package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/loyalty-engine/internal/domain/pricing"
)

// Free lines never advance a stamp card, so they are filtered here rather
// than in the calculator.
const listPaidItemsSQL = `SELECT ti.product_id, COALESCE(p.category, ''), ti.quantity
	FROM transaction_items ti
	JOIN transactions t ON t.id = ti.transaction_id
	LEFT JOIN products p ON p.id = ti.product_id
	WHERE t.customer_id = $1 AND NOT ti.is_free AND t.created_at >= $2`

var _ pricing.HistoryReader = (*HistoryRepository)(nil)

// HistoryRepository implements pricing.HistoryReader backed by PostgreSQL.
type HistoryRepository struct {
	pool *pgxpool.Pool
}

// NewHistoryRepository returns a HistoryRepository that uses the given pool.
func NewHistoryRepository(pool *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{pool: pool}
}

// ListPaidItems returns all non-free purchased lines for the customer since
// the given time.
func (r *HistoryRepository) ListPaidItems(ctx context.Context, customerID string, since time.Time) ([]pricing.PaidItem, error) {
	rows, err := r.pool.Query(ctx, listPaidItemsSQL, customerID, since)
	if err != nil {
		return nil, fmt.Errorf("listing paid items for customer %q: %w", customerID, err)
	}
	defer rows.Close()

	var out []pricing.PaidItem
	for rows.Next() {
		var it pricing.PaidItem
		if err := rows.Scan(&it.ProductID, &it.Category, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scanning paid item: %w", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating paid items: %w", err)
	}
	return out, nil
}
