package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/loyalty-engine/internal/domain/customer"
)

const (
	getCustomerSQL = `SELECT id, name, email, birth_date, points, tier,
		total_spent, visit_count, last_visit, created_at
		FROM customers WHERE id = $1`

	getCustomerForUpdateSQL = getCustomerSQL + ` FOR UPDATE`
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// GetByID returns a single customer or customer.ErrNotFound.
func (r *CustomerRepository) GetByID(ctx context.Context, id string) (*customer.Customer, error) {
	return scanCustomer(r.pool.QueryRow(ctx, getCustomerSQL, id), id)
}

func scanCustomer(row pgx.Row, id string) (*customer.Customer, error) {
	var c customer.Customer
	err := row.Scan(
		&c.ID, &c.Name, &c.Email, &c.BirthDate, &c.Points, &c.Tier,
		&c.TotalSpent, &c.VisitCount, &c.LastVisit, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("getting customer %q: %w", id, err)
	}
	return &c, nil
}
