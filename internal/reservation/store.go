// Package reservation holds computed pricing breakdowns behind opaque,
// single-use, time-boxed tokens. The store is the sole mechanism preventing
// a priced breakdown from being committed twice and the sole guarantee that
// the amount charged matches what the customer was shown.
package reservation

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/loyalty-engine/internal/domain/pricing"
)

// DefaultTTL is how long a reservation stays consumable after creation.
// There is no cancellation API; expired tokens simply fail consumption.
const DefaultTTL = 15 * time.Minute

// ErrNotFound is returned when a token is unknown, already consumed, or
// expired. Callers are expected to re-preview.
var ErrNotFound = errors.New("reservation not found or expired")

// Reservation is the payload held behind a token.
type Reservation struct {
	Token      string             `json:"token"`
	CustomerID string             `json:"customerId"`
	Selections pricing.Selections `json:"selections"`
	Breakdown  pricing.Breakdown  `json:"breakdown"`
	CreatedAt  time.Time          `json:"createdAt"`
	ExpiresAt  time.Time          `json:"expiresAt"`
}

// Info is the non-destructive status of a token.
type Info struct {
	Valid     bool          `json:"valid"`
	ExpiresAt time.Time     `json:"expiresAt"`
	Remaining time.Duration `json:"-"`
}

// Store issues and consumes reservation tokens.
//
// Consume must be atomic: under concurrent calls with the same token exactly
// one caller receives the reservation, every other caller gets ErrNotFound.
type Store interface {
	// Create stores the reservation and returns its opaque token. The
	// store fills Token, CreatedAt and ExpiresAt.
	Create(ctx context.Context, res *Reservation) (string, error)
	// Consume atomically retrieves and invalidates the reservation.
	Consume(ctx context.Context, token string) (*Reservation, error)
	// Peek reports token status without mutating state.
	Peek(ctx context.Context, token string) (*Info, error)
}
