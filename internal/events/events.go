// Package events defines the typed events the commit orchestrator publishes
// after a transaction commits, and a small in-process bus that decouples
// consumers (notifications, segment recompute, tier service) from commit
// success. Publishing never blocks and never fails a commit.
package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event is implemented by every published event type.
type Event interface {
	EventName() string
}

// PointsEarned is published when a committed transaction credits points.
type PointsEarned struct {
	CustomerID    string
	TransactionID string
	Points        int64
	Balance       int64
	At            time.Time
}

func (PointsEarned) EventName() string { return "points.earned" }

// PointsSpent is published when a committed transaction debits points.
type PointsSpent struct {
	CustomerID    string
	TransactionID string
	Points        int64
	Balance       int64
	At            time.Time
}

func (PointsSpent) EventName() string { return "points.spent" }

// TransactionCompleted is published for every committed transaction.
type TransactionCompleted struct {
	CustomerID    string
	TransactionID string
	OrderNumber   string
	FinalTotal    decimal.Decimal
	At            time.Time
}

func (TransactionCompleted) EventName() string { return "transaction.completed" }

// MilestoneReached is published when a commit pushes a customer counter
// across one of the fixed milestone thresholds.
type MilestoneReached struct {
	CustomerID string
	Kind       string
	Threshold  int64
	At         time.Time
}

func (MilestoneReached) EventName() string { return "milestone.reached" }

// TierUpgraded is published when the post-commit re-evaluation promotes a
// customer to a higher tier.
type TierUpgraded struct {
	CustomerID string
	From       string
	To         string
	At         time.Time
}

func (TierUpgraded) EventName() string { return "tier.upgraded" }
