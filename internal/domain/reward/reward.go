package reward

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested reward does not exist.
var ErrNotFound = errors.New("reward not found")

// Type enumerates reward kinds. Only DISCOUNT rewards participate in the
// pricing pipeline.
type Type string

const (
	TypeDiscount Type = "DISCOUNT"
	TypeFreeItem Type = "FREE_ITEM"
)

// CatalogEntry is a reward definition. Rewards with a non-zero PointsCost
// can be bought with points at redemption time; others must be pre-granted.
type CatalogEntry struct {
	ID         string
	Name       string
	Type       Type
	Value      decimal.Decimal
	PointsCost int64
	Active     bool
}

// Grant is a reward owned by a customer.
type Grant struct {
	ID         string
	CustomerID string
	RewardID   string
	Redeemed   bool
	RedeemedAt *time.Time
	ExpiresAt  *time.Time
	GrantedAt  time.Time
}

// Usable reports whether the grant can still be redeemed at the given time.
func (g *Grant) Usable(now time.Time) bool {
	if g.Redeemed {
		return false
	}
	if g.ExpiresAt != nil && now.After(*g.ExpiresAt) {
		return false
	}
	return true
}

// Repository provides reward catalog and grant lookup.
type Repository interface {
	GetCatalogEntry(ctx context.Context, id string) (*CatalogEntry, error)
	// FindGrant returns the customer's oldest usable grant for the reward,
	// or nil when the customer owns none.
	FindGrant(ctx context.Context, customerID, rewardID string) (*Grant, error)
}
