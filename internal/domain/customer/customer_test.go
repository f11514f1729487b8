package customer

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestEvaluateTier(t *testing.T) {
	tests := []struct {
		spent string
		want  Tier
	}{
		{"0", TierBronze},
		{"499.99", TierBronze},
		{"500", TierSilver},
		{"1999.99", TierSilver},
		{"2000", TierGold},
		{"4999.99", TierGold},
		{"5000", TierPlatinum},
		{"100000", TierPlatinum},
	}
	for _, tt := range tests {
		t.Run(tt.spent, func(t *testing.T) {
			got := EvaluateTier(decimal.RequireFromString(tt.spent))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTierMultiplier(t *testing.T) {
	assert.True(t, decimal.NewFromInt(1).Equal(TierBronze.Multiplier()))
	assert.True(t, decimal.NewFromFloat(1.25).Equal(TierSilver.Multiplier()))
	assert.True(t, decimal.NewFromFloat(1.5).Equal(TierGold.Multiplier()))
	assert.True(t, decimal.NewFromInt(2).Equal(TierPlatinum.Multiplier()))

	// Unknown tiers fall back to bronze.
	assert.True(t, decimal.NewFromInt(1).Equal(Tier("DIAMOND").Multiplier()))
}

func TestBirthdayMonth(t *testing.T) {
	birthday := time.Date(1990, time.March, 25, 0, 0, 0, 0, time.UTC)
	c := Customer{BirthDate: &birthday}

	march := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	april := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, c.BirthdayMonth(march))
	assert.False(t, c.BirthdayMonth(april))

	noBirthday := Customer{}
	assert.False(t, noBirthday.BirthdayMonth(march))
}
