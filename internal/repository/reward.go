package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/loyalty-engine/internal/domain/reward"
)

const (
	getRewardSQL = `SELECT id, name, type, value, points_cost, active
		FROM reward_catalog WHERE id = $1`

	findGrantSQL = `SELECT id, customer_id, reward_id, redeemed, redeemed_at,
		expires_at, granted_at
		FROM reward_grants
		WHERE customer_id = $1 AND reward_id = $2 AND NOT redeemed
		ORDER BY granted_at
		LIMIT 1`
)

var _ reward.Repository = (*RewardRepository)(nil)

// RewardRepository implements reward.Repository backed by PostgreSQL.
type RewardRepository struct {
	pool *pgxpool.Pool
}

// NewRewardRepository returns a RewardRepository that uses the given pool.
func NewRewardRepository(pool *pgxpool.Pool) *RewardRepository {
	return &RewardRepository{pool: pool}
}

// GetCatalogEntry returns a reward definition or reward.ErrNotFound.
func (r *RewardRepository) GetCatalogEntry(ctx context.Context, id string) (*reward.CatalogEntry, error) {
	var e reward.CatalogEntry
	err := r.pool.QueryRow(ctx, getRewardSQL, id).
		Scan(&e.ID, &e.Name, &e.Type, &e.Value, &e.PointsCost, &e.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, reward.ErrNotFound
		}
		return nil, fmt.Errorf("getting reward %q: %w", id, err)
	}
	return &e, nil
}

// FindGrant returns the customer's oldest unredeemed grant for the reward,
// or nil when none exists.
func (r *RewardRepository) FindGrant(ctx context.Context, customerID, rewardID string) (*reward.Grant, error) {
	var g reward.Grant
	err := r.pool.QueryRow(ctx, findGrantSQL, customerID, rewardID).Scan(
		&g.ID, &g.CustomerID, &g.RewardID, &g.Redeemed, &g.RedeemedAt,
		&g.ExpiresAt, &g.GrantedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding grant for reward %q: %w", rewardID, err)
	}
	return &g, nil
}
