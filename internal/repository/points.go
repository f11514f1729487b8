package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/loyalty-engine/internal/domain/points"
)

const listLedgerSQL = `SELECT id, customer_id, amount, type, source, balance,
	expires_at, created_at
	FROM point_ledger WHERE customer_id = $1
	ORDER BY id DESC LIMIT $2`

var _ points.Repository = (*LedgerRepository)(nil)

// LedgerRepository implements points.Repository backed by PostgreSQL.
// Writes happen only through the commit transaction (see order.go).
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository returns a LedgerRepository that uses the given pool.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// ListByCustomer returns the most recent ledger entries, newest first.
func (r *LedgerRepository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]points.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, listLedgerSQL, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing ledger for customer %q: %w", customerID, err)
	}
	defer rows.Close()

	var out []points.LedgerEntry
	for rows.Next() {
		var e points.LedgerEntry
		err := rows.Scan(
			&e.ID, &e.CustomerID, &e.Amount, &e.Type, &e.Source,
			&e.Balance, &e.ExpiresAt, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning ledger entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ledger entries: %w", err)
	}
	return out, nil
}
