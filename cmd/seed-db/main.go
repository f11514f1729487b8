// Command seed-db loads demo products, customers, campaigns and the reward
// catalog from JSON files into PostgreSQL. All inserts are upserts, so the
// command is safe to re-run.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/loyalty-engine/internal/repository"
)

type productJSON struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category"`
}

type customerJSON struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	BirthDate string `json:"birthDate,omitempty"`
	Points    int64  `json:"points"`
	Tier      string `json:"tier"`
}

type campaignJSON struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	Code                string          `json:"code,omitempty"`
	Type                string          `json:"type"`
	DiscountType        string          `json:"discountType,omitempty"`
	Value               decimal.Decimal `json:"value"`
	MinPurchase         decimal.Decimal `json:"minPurchase"`
	MaxUsage            int             `json:"maxUsage"`
	MaxUsagePerCustomer int             `json:"maxUsagePerCustomer"`
	PointsMultiplier    decimal.Decimal `json:"pointsMultiplier"`
	BuyQuantity         int             `json:"buyQuantity"`
	GetQuantity         int             `json:"getQuantity"`
	TargetProducts      []string        `json:"targetProducts"`
	FreeProducts        []string        `json:"freeProducts"`
	ValidDays           []int           `json:"validDays"`
	ValidFrom           string          `json:"validFrom,omitempty"`
	ValidUntil          string          `json:"validUntil,omitempty"`
	StartsAt            *time.Time      `json:"startsAt,omitempty"`
	EndsAt              *time.Time      `json:"endsAt,omitempty"`
	Active              bool            `json:"active"`
}

type rewardJSON struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Type       string          `json:"type"`
	Value      decimal.Decimal `json:"value"`
	PointsCost int64           `json:"pointsCost"`
	Active     bool            `json:"active"`
	// GrantTo pre-grants this reward to the listed customers.
	GrantTo []string `json:"grantTo,omitempty"`
}

func main() {
	var (
		databaseURL string
		seedDir     string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedDir, "seed-dir", "db/seed", "directory containing seed JSON files")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seedDir); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedDir string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, filepath.Join(seedDir, "products.json")); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCustomers(ctx, pool, filepath.Join(seedDir, "customers.json")); err != nil {
		return errors.Wrap(err, "seed customers")
	}
	if err := seedCampaigns(ctx, pool, filepath.Join(seedDir, "campaigns.json")); err != nil {
		return errors.Wrap(err, "seed campaigns")
	}
	if err := seedRewards(ctx, pool, filepath.Join(seedDir, "rewards.json")); err != nil {
		return errors.Wrap(err, "seed rewards")
	}

	return nil
}

func readSeedFile[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return items, nil
}

const upsertProductSQL = `
INSERT INTO products (id, name, price, category)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET name = $2, price = $3, category = $4`

func seedProducts(ctx context.Context, pool *pgxpool.Pool, path string) error {
	products, err := readSeedFile[productJSON](path)
	if err != nil {
		return err
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if _, err := pool.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Price, p.Category); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
	}
	return nil
}

const upsertCustomerSQL = `
INSERT INTO customers (id, name, email, birth_date, points, tier)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET name = $2, email = $3, birth_date = $4, points = $5, tier = $6`

func seedCustomers(ctx context.Context, pool *pgxpool.Pool, path string) error {
	customers, err := readSeedFile[customerJSON](path)
	if err != nil {
		return err
	}

	slog.Info("upserting customers", slog.Int("count", len(customers)))

	for _, c := range customers {
		var birthDate *time.Time
		if c.BirthDate != "" {
			d, err := time.Parse("2006-01-02", c.BirthDate)
			if err != nil {
				return errors.Wrapf(err, "parse birth date for customer %s", c.ID)
			}
			birthDate = &d
		}
		tier := c.Tier
		if tier == "" {
			tier = "BRONZE"
		}
		if _, err := pool.Exec(ctx, upsertCustomerSQL, c.ID, c.Name, c.Email, birthDate, c.Points, tier); err != nil {
			return errors.Wrapf(err, "upsert customer %s", c.ID)
		}
	}
	return nil
}

const upsertCampaignSQL = `
INSERT INTO campaigns (
    id, name, code, type, discount_type, value, min_purchase,
    max_usage, max_usage_per_customer, points_multiplier,
    buy_quantity, get_quantity, target_products, free_products, valid_days,
    valid_from, valid_until, starts_at, ends_at, active
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
ON CONFLICT (id) DO UPDATE SET
    name = $2, code = $3, type = $4, discount_type = $5, value = $6,
    min_purchase = $7, max_usage = $8, max_usage_per_customer = $9,
    points_multiplier = $10, buy_quantity = $11, get_quantity = $12,
    target_products = $13, free_products = $14, valid_days = $15,
    valid_from = $16, valid_until = $17, starts_at = $18, ends_at = $19, active = $20`

func seedCampaigns(ctx context.Context, pool *pgxpool.Pool, path string) error {
	campaigns, err := readSeedFile[campaignJSON](path)
	if err != nil {
		return err
	}

	slog.Info("upserting campaigns", slog.Int("count", len(campaigns)))

	for _, c := range campaigns {
		targets, err := jsonArray(c.TargetProducts)
		if err != nil {
			return errors.Wrapf(err, "campaign %s target products", c.ID)
		}
		free, err := jsonArray(c.FreeProducts)
		if err != nil {
			return errors.Wrapf(err, "campaign %s free products", c.ID)
		}
		days, err := jsonArray(c.ValidDays)
		if err != nil {
			return errors.Wrapf(err, "campaign %s valid days", c.ID)
		}
		multiplier := c.PointsMultiplier
		if multiplier.IsZero() {
			multiplier = decimal.NewFromInt(1)
		}

		if _, err := pool.Exec(ctx, upsertCampaignSQL,
			c.ID, c.Name, c.Code, c.Type, c.DiscountType, c.Value, c.MinPurchase,
			c.MaxUsage, c.MaxUsagePerCustomer, multiplier,
			c.BuyQuantity, c.GetQuantity, targets, free, days,
			c.ValidFrom, c.ValidUntil, c.StartsAt, c.EndsAt, c.Active,
		); err != nil {
			return errors.Wrapf(err, "upsert campaign %s", c.ID)
		}
	}
	return nil
}

const upsertRewardSQL = `
INSERT INTO reward_catalog (id, name, type, value, points_cost, active)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET name = $2, type = $3, value = $4, points_cost = $5, active = $6`

const grantRewardSQL = `
INSERT INTO reward_grants (id, customer_id, reward_id)
SELECT $1, $2, $3
WHERE NOT EXISTS (
    SELECT 1 FROM reward_grants
    WHERE customer_id = $2 AND reward_id = $3 AND NOT redeemed
)`

func seedRewards(ctx context.Context, pool *pgxpool.Pool, path string) error {
	rewards, err := readSeedFile[rewardJSON](path)
	if err != nil {
		return err
	}

	slog.Info("upserting rewards", slog.Int("count", len(rewards)))

	for _, rw := range rewards {
		if _, err := pool.Exec(ctx, upsertRewardSQL,
			rw.ID, rw.Name, rw.Type, rw.Value, rw.PointsCost, rw.Active,
		); err != nil {
			return errors.Wrapf(err, "upsert reward %s", rw.ID)
		}

		for _, customerID := range rw.GrantTo {
			if _, err := pool.Exec(ctx, grantRewardSQL, uuid.New(), customerID, rw.ID); err != nil {
				return errors.Wrapf(err, "grant reward %s to %s", rw.ID, customerID)
			}
		}
	}
	return nil
}

func jsonArray[T any](items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}
