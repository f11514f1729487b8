package customer

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested customer does not exist.
var ErrNotFound = errors.New("customer not found")

// Tier is a customer loyalty level. Each tier grants a point-earning
// multiplier used by the pricing pipeline.
type Tier string

const (
	TierBronze   Tier = "BRONZE"
	TierSilver   Tier = "SILVER"
	TierGold     Tier = "GOLD"
	TierPlatinum Tier = "PLATINUM"
)

// Multiplier returns the point-earning multiplier for the tier.
// Unknown tiers fall back to the bronze multiplier.
func (t Tier) Multiplier() decimal.Decimal {
	switch t {
	case TierSilver:
		return decimal.NewFromFloat(1.25)
	case TierGold:
		return decimal.NewFromFloat(1.5)
	case TierPlatinum:
		return decimal.NewFromInt(2)
	default:
		return decimal.NewFromInt(1)
	}
}

// tierThresholds maps lifetime spend to the tier it unlocks, checked from
// highest to lowest by EvaluateTier.
var tierThresholds = []struct {
	tier  Tier
	spend decimal.Decimal
}{
	{TierPlatinum, decimal.NewFromInt(5000)},
	{TierGold, decimal.NewFromInt(2000)},
	{TierSilver, decimal.NewFromInt(500)},
	{TierBronze, decimal.Zero},
}

// EvaluateTier returns the tier a customer qualifies for at the given
// lifetime spend.
func EvaluateTier(totalSpent decimal.Decimal) Tier {
	for _, t := range tierThresholds {
		if totalSpent.GreaterThanOrEqual(t.spend) {
			return t.tier
		}
	}
	return TierBronze
}

// Customer holds the loyalty state for a single customer. Points, TotalSpent,
// VisitCount and LastVisit are mutated only inside the commit transaction.
type Customer struct {
	ID         string
	Name       string
	Email      string
	BirthDate  *time.Time
	Points     int64
	Tier       Tier
	TotalSpent decimal.Decimal
	VisitCount int
	LastVisit  *time.Time
	CreatedAt  time.Time
}

// BirthdayMonth reports whether the customer's birthday falls in the month
// of the given time. Customers without a recorded birth date never match.
func (c *Customer) BirthdayMonth(now time.Time) bool {
	return c.BirthDate != nil && c.BirthDate.Month() == now.Month()
}

// Repository defines persistence operations for customers.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Customer, error)
}
