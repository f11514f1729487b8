package order

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xenking/loyalty-engine/internal/domain/customer"
)

func TestDetectMilestones(t *testing.T) {
	tests := []struct {
		name    string
		before  customer.Customer
		final   string
		balance int64
		want    []Achievement
	}{
		{
			name:    "no crossing",
			before:  customer.Customer{TotalSpent: dec("10.00"), VisitCount: 3, Points: 50},
			final:   "20.00",
			balance: 60,
			want:    nil,
		},
		{
			name:    "spend crosses one threshold",
			before:  customer.Customer{TotalSpent: dec("90.00"), VisitCount: 3, Points: 0},
			final:   "20.00",
			balance: 0,
			want:    []Achievement{{Kind: AchievementSpend, Threshold: 100}},
		},
		{
			name:    "spend crosses two thresholds at once",
			before:  customer.Customer{TotalSpent: dec("50.00"), VisitCount: 3, Points: 0},
			final:   "600.00",
			balance: 0,
			want: []Achievement{
				{Kind: AchievementSpend, Threshold: 100},
				{Kind: AchievementSpend, Threshold: 500},
			},
		},
		{
			name:    "visit milestone",
			before:  customer.Customer{TotalSpent: dec("10000.00"), VisitCount: 99, Points: 0},
			final:   "5.00",
			balance: 0,
			want:    []Achievement{{Kind: AchievementVisits, Threshold: 100}},
		},
		{
			name:    "points milestone",
			before:  customer.Customer{TotalSpent: dec("10000.00"), VisitCount: 5, Points: 95},
			final:   "5.00",
			balance: 105,
			want:    []Achievement{{Kind: AchievementPoints, Threshold: 100}},
		},
		{
			name:    "spending points never triggers a points milestone",
			before:  customer.Customer{TotalSpent: dec("10000.00"), VisitCount: 5, Points: 600},
			final:   "5.00",
			balance: 400,
			want:    nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &Transaction{FinalTotal: dec(tt.final)}
			got := detectMilestones(&tt.before, tr, tt.balance)

			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Len(t, got, len(tt.want))
			for i, w := range tt.want {
				assert.Equal(t, w.Kind, got[i].Kind)
				assert.Equal(t, w.Threshold, got[i].Threshold)
			}
		})
	}
}

func TestTierRankOrdering(t *testing.T) {
	assert.Greater(t, tierRank(customer.TierSilver), tierRank(customer.TierBronze))
	assert.Greater(t, tierRank(customer.TierGold), tierRank(customer.TierSilver))
	assert.Greater(t, tierRank(customer.TierPlatinum), tierRank(customer.TierGold))
}
