package campaign

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported campaign kinds.
type Type string

const (
	// TypeDiscount applies a plain discount rule to the order.
	TypeDiscount Type = "DISCOUNT"
	// TypeStamp is a Buy-X-Get-Y stamp card: every BuyQuantity qualifying
	// paid units earn one free item from the campaign's free-product set.
	TypeStamp Type = "STAMP"
	// TypeLoyaltyPoints multiplies the points earned on the final total.
	TypeLoyaltyPoints Type = "LOYALTY_POINTS"
	// TypeTimeBased is a discount restricted to weekdays and a clock window.
	TypeTimeBased Type = "TIME_BASED"
	// TypeBirthday is a discount available during the customer's birth month.
	TypeBirthday Type = "BIRTHDAY"
)

// DiscountType enumerates the discount strategies for non-stamp campaigns.
type DiscountType string

const (
	// DiscountPercentage applies a percentage of the remaining order total.
	DiscountPercentage DiscountType = "PERCENTAGE"
	// DiscountFixed applies a fixed amount capped at the remaining total.
	DiscountFixed DiscountType = "FIXED_AMOUNT"
)

// ErrNotFound is returned when a requested campaign does not exist.
var ErrNotFound = errors.New("campaign not found")

// ConfigError indicates a campaign row carries a malformed configuration,
// e.g. an unparseable target-product set. Detected at load time; callers
// skip the campaign with a warning instead of failing the whole computation.
type ConfigError struct {
	CampaignID string
	Field      string
	Err        error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("campaign %s: malformed %s: %v", e.CampaignID, e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Campaign is a promotion configured by an admin. Read-only to the pricing
// engine; always re-read at commit time to observe concurrent edits.
type Campaign struct {
	ID           string
	Name         string
	Code         string
	Type         Type
	DiscountType DiscountType
	Value        decimal.Decimal
	MinPurchase  decimal.Decimal

	// MaxUsage and MaxUsagePerCustomer cap redemptions of non-stamp
	// campaigns; zero means unlimited.
	MaxUsage            int
	MaxUsagePerCustomer int

	// PointsMultiplier applies to LOYALTY_POINTS campaigns only.
	PointsMultiplier decimal.Decimal

	// Stamp-card fields. TargetProducts is the qualifying product/category
	// set; FreeProducts is the set redeemable once a stamp is earned.
	BuyQuantity    int
	GetQuantity    int
	TargetProducts []string
	FreeProducts   []string

	// ValidDays and the clock window restrict TIME_BASED campaigns.
	// ValidFrom and ValidUntil are "15:04" clock strings; an empty string
	// leaves that side of the window open.
	ValidDays  []time.Weekday
	ValidFrom  string
	ValidUntil string

	StartsAt *time.Time
	EndsAt   *time.Time
	Active   bool
}

// ActiveAt reports whether the campaign is enabled and inside its date range.
func (c *Campaign) ActiveAt(now time.Time) bool {
	if !c.Active {
		return false
	}
	if c.StartsAt != nil && now.Before(*c.StartsAt) {
		return false
	}
	if c.EndsAt != nil && now.After(*c.EndsAt) {
		return false
	}
	return true
}

// ValidOnDay reports whether a TIME_BASED campaign is valid on the weekday
// of the given time. Campaigns with an empty day set are valid every day.
func (c *Campaign) ValidOnDay(now time.Time) bool {
	if len(c.ValidDays) == 0 {
		return true
	}
	for _, d := range c.ValidDays {
		if d == now.Weekday() {
			return true
		}
	}
	return false
}

// ValidAtClock reports whether a TIME_BASED campaign is valid at the clock
// time of the given moment. Malformed bounds are rejected at load, so a
// parse failure here leaves that bound open.
func (c *Campaign) ValidAtClock(now time.Time) bool {
	minute := now.Hour()*60 + now.Minute()
	if c.ValidFrom != "" {
		if from, err := ClockMinutes(c.ValidFrom); err == nil && minute < from {
			return false
		}
	}
	if c.ValidUntil != "" {
		if until, err := ClockMinutes(c.ValidUntil); err == nil && minute > until {
			return false
		}
	}
	return true
}

// ClockMinutes parses a "15:04" clock string into minutes from midnight.
func ClockMinutes(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Targets reports whether the given product or category qualifies for the
// campaign's stamp progress. An empty target set matches everything.
func (c *Campaign) Targets(productID, category string) bool {
	if len(c.TargetProducts) == 0 {
		return true
	}
	for _, t := range c.TargetProducts {
		if t == productID || t == category {
			return true
		}
	}
	return false
}

// UsageRecord is one redemption of a non-stamp campaign by a customer.
type UsageRecord struct {
	ID            string
	CampaignID    string
	CustomerID    string
	TransactionID string
	Discount      decimal.Decimal
	UsedAt        time.Time
}

// StampUsage is one stamp redemption. Counted separately from UsageRecord:
// stamp progress derives from purchased item quantity, not usage count.
type StampUsage struct {
	ID            string
	CampaignID    string
	CustomerID    string
	TransactionID string
	FreeProductID string
	UsedAt        time.Time
}

// Repository provides campaign lookup and usage counting.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Campaign, error)
	GetByIDs(ctx context.Context, ids []string) ([]Campaign, error)
	ListActiveStamp(ctx context.Context) ([]Campaign, error)

	CountUsage(ctx context.Context, campaignID string) (int, error)
	CountCustomerUsage(ctx context.Context, campaignID, customerID string) (int, error)
	CountStampUsage(ctx context.Context, campaignID, customerID string) (int, error)
}
