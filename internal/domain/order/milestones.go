package order

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xenking/loyalty-engine/internal/domain/customer"
)

// Achievement kinds.
const (
	AchievementSpend       = "SPEND"
	AchievementVisits      = "VISITS"
	AchievementPoints      = "POINTS"
	AchievementTierUpgrade = "TIER_UPGRADE"
)

// milestoneThresholds is the fixed ladder every counter is checked against.
var milestoneThresholds = []int64{100, 500, 1000, 2500, 5000}

// Achievement is a milestone crossing detected after a commit.
type Achievement struct {
	Kind      string `json:"kind"`
	Threshold int64  `json:"threshold,omitempty"`
	Message   string `json:"message"`
}

// detectMilestones compares pre-commit counters with post-commit counters
// and reports every threshold crossed by this transaction. Pure computation;
// it can observe but never touch persistent state.
func detectMilestones(before *customer.Customer, t *Transaction, balance int64) []Achievement {
	var out []Achievement

	spentBefore := before.TotalSpent
	spentAfter := spentBefore.Add(t.FinalTotal)
	for _, th := range milestoneThresholds {
		limit := decimal.NewFromInt(th)
		if spentBefore.LessThan(limit) && spentAfter.GreaterThanOrEqual(limit) {
			out = append(out, Achievement{
				Kind:      AchievementSpend,
				Threshold: th,
				Message:   fmt.Sprintf("lifetime spend passed %d", th),
			})
		}
	}

	visitsBefore := int64(before.VisitCount)
	visitsAfter := visitsBefore + 1
	for _, th := range milestoneThresholds {
		if visitsBefore < th && visitsAfter >= th {
			out = append(out, Achievement{
				Kind:      AchievementVisits,
				Threshold: th,
				Message:   fmt.Sprintf("visit number %d", th),
			})
		}
	}

	for _, th := range milestoneThresholds {
		if before.Points < th && balance >= th {
			out = append(out, Achievement{
				Kind:      AchievementPoints,
				Threshold: th,
				Message:   fmt.Sprintf("point balance passed %d", th),
			})
		}
	}

	return out
}
