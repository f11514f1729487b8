package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xenking/loyalty-engine/internal/domain/campaign"
)

const (
	campaignColumns = `id, name, code, type, discount_type, value, min_purchase,
		max_usage, max_usage_per_customer, points_multiplier,
		buy_quantity, get_quantity, target_products, free_products, valid_days,
		valid_from, valid_until, starts_at, ends_at, active`

	getCampaignSQL = `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`

	getCampaignsByIDsSQL = `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = ANY($1)`

	listActiveStampSQL = `SELECT ` + campaignColumns + ` FROM campaigns
		WHERE type = 'STAMP' AND active
		AND (starts_at IS NULL OR starts_at <= now())
		AND (ends_at IS NULL OR ends_at >= now())`

	countUsageSQL = `SELECT COUNT(*) FROM campaign_usages WHERE campaign_id = $1`

	countCustomerUsageSQL = `SELECT COUNT(*) FROM campaign_usages
		WHERE campaign_id = $1 AND customer_id = $2`

	countStampUsageSQL = `SELECT COUNT(*) FROM stamp_usages
		WHERE campaign_id = $1 AND customer_id = $2`
)

var _ campaign.Repository = (*CampaignRepository)(nil)

// CampaignRepository implements campaign.Repository backed by PostgreSQL.
type CampaignRepository struct {
	pool *pgxpool.Pool
}

// NewCampaignRepository returns a CampaignRepository that uses the given pool.
func NewCampaignRepository(pool *pgxpool.Pool) *CampaignRepository {
	return &CampaignRepository{pool: pool}
}

// GetByID returns a single campaign. A row with malformed configuration
// yields a typed *campaign.ConfigError.
func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*campaign.Campaign, error) {
	return scanCampaignRow(r.pool.QueryRow(ctx, getCampaignSQL, id))
}

// GetByIDs batch-fetches campaigns. Rows with malformed configuration are
// skipped with a warning so the remaining campaigns still load.
func (r *CampaignRepository) GetByIDs(ctx context.Context, ids []string) ([]campaign.Campaign, error) {
	rows, err := r.pool.Query(ctx, getCampaignsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting campaigns by ids: %w", err)
	}
	defer rows.Close()

	return collectCampaigns(ctx, rows)
}

// ListActiveStamp returns all stamp campaigns currently inside their date
// range.
func (r *CampaignRepository) ListActiveStamp(ctx context.Context) ([]campaign.Campaign, error) {
	rows, err := r.pool.Query(ctx, listActiveStampSQL)
	if err != nil {
		return nil, fmt.Errorf("listing stamp campaigns: %w", err)
	}
	defer rows.Close()

	return collectCampaigns(ctx, rows)
}

// CountUsage returns the total redemption count for a campaign.
func (r *CampaignRepository) CountUsage(ctx context.Context, campaignID string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countUsageSQL, campaignID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting usage for campaign %q: %w", campaignID, err)
	}
	return n, nil
}

// CountCustomerUsage returns one customer's redemption count for a campaign.
func (r *CampaignRepository) CountCustomerUsage(ctx context.Context, campaignID, customerID string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countCustomerUsageSQL, campaignID, customerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting customer usage for campaign %q: %w", campaignID, err)
	}
	return n, nil
}

// CountStampUsage returns one customer's stamp redemption count. Counted
// separately from campaign usage: stamp progress derives from purchased
// quantity, not usage rows.
func (r *CampaignRepository) CountStampUsage(ctx context.Context, campaignID, customerID string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countStampUsageSQL, campaignID, customerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting stamp usage for campaign %q: %w", campaignID, err)
	}
	return n, nil
}

func collectCampaigns(ctx context.Context, rows pgx.Rows) ([]campaign.Campaign, error) {
	var out []campaign.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			var cfgErr *campaign.ConfigError
			if errors.As(err, &cfgErr) {
				zctx.From(ctx).Warn("Skipping campaign with malformed configuration",
					zap.String("campaign_id", cfgErr.CampaignID),
					zap.Error(cfgErr),
				)
				continue
			}
			return nil, err
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating campaigns: %w", err)
	}
	return out, nil
}

func scanCampaignRow(row pgx.Row) (*campaign.Campaign, error) {
	c, err := scanCampaign(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, campaign.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// scanCampaign maps one row to a domain campaign, decoding the JSONB sets
// into typed slices. Decoding failures become *campaign.ConfigError so that
// malformed rows are a load-time variant, not a per-call surprise.
func scanCampaign(row pgx.Row) (*campaign.Campaign, error) {
	var (
		c                            campaign.Campaign
		targetsRaw, freeRaw, daysRaw []byte
	)
	err := row.Scan(
		&c.ID, &c.Name, &c.Code, &c.Type, &c.DiscountType, &c.Value, &c.MinPurchase,
		&c.MaxUsage, &c.MaxUsagePerCustomer, &c.PointsMultiplier,
		&c.BuyQuantity, &c.GetQuantity, &targetsRaw, &freeRaw, &daysRaw,
		&c.ValidFrom, &c.ValidUntil, &c.StartsAt, &c.EndsAt, &c.Active,
	)
	if err != nil {
		return nil, err
	}

	if c.ValidFrom != "" {
		if _, err := campaign.ClockMinutes(c.ValidFrom); err != nil {
			return nil, &campaign.ConfigError{CampaignID: c.ID, Field: "valid_from", Err: err}
		}
	}
	if c.ValidUntil != "" {
		if _, err := campaign.ClockMinutes(c.ValidUntil); err != nil {
			return nil, &campaign.ConfigError{CampaignID: c.ID, Field: "valid_until", Err: err}
		}
	}

	if err := json.Unmarshal(targetsRaw, &c.TargetProducts); err != nil {
		return nil, &campaign.ConfigError{CampaignID: c.ID, Field: "target_products", Err: err}
	}
	if err := json.Unmarshal(freeRaw, &c.FreeProducts); err != nil {
		return nil, &campaign.ConfigError{CampaignID: c.ID, Field: "free_products", Err: err}
	}
	var days []int
	if err := json.Unmarshal(daysRaw, &days); err != nil {
		return nil, &campaign.ConfigError{CampaignID: c.ID, Field: "valid_days", Err: err}
	}
	for _, d := range days {
		if d < 0 || d > 6 {
			return nil, &campaign.ConfigError{
				CampaignID: c.ID,
				Field:      "valid_days",
				Err:        fmt.Errorf("weekday out of range: %d", d),
			}
		}
		c.ValidDays = append(c.ValidDays, time.Weekday(d))
	}

	return &c, nil
}
