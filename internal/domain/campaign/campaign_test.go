package campaign

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestActiveAt(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	before := now.Add(-time.Hour)
	after := now.Add(time.Hour)

	tests := []struct {
		name string
		c    Campaign
		want bool
	}{
		{"active no window", Campaign{Active: true}, true},
		{"disabled", Campaign{Active: false}, false},
		{"inside window", Campaign{Active: true, StartsAt: &before, EndsAt: &after}, true},
		{"not started", Campaign{Active: true, StartsAt: &after}, false},
		{"already ended", Campaign{Active: true, EndsAt: &before}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.c.ActiveAt(now))
		})
	}
}

func TestValidOnDay(t *testing.T) {
	tuesday := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	c := Campaign{ValidDays: []time.Weekday{time.Monday, time.Tuesday}}
	assert.True(t, c.ValidOnDay(tuesday))

	c.ValidDays = []time.Weekday{time.Saturday, time.Sunday}
	assert.False(t, c.ValidOnDay(tuesday))

	// Empty day set means valid every day.
	c.ValidDays = nil
	assert.True(t, c.ValidOnDay(tuesday))
}

func TestValidAtClock(t *testing.T) {
	at := func(hour, minute int) time.Time {
		return time.Date(2026, 3, 10, hour, minute, 0, 0, time.UTC)
	}
	c := Campaign{ValidFrom: "15:00", ValidUntil: "18:00"}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before window", at(12, 0), false},
		{"window opens", at(15, 0), true},
		{"inside window", at(16, 30), true},
		{"window closes", at(18, 0), true},
		{"after window", at(18, 1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.ValidAtClock(tt.now))
		})
	}

	// Open bounds leave that side unrestricted.
	from := Campaign{ValidFrom: "15:00"}
	assert.True(t, from.ValidAtClock(at(23, 59)))
	assert.False(t, from.ValidAtClock(at(14, 59)))

	open := Campaign{}
	assert.True(t, open.ValidAtClock(at(3, 0)))
}

func TestClockMinutes(t *testing.T) {
	m, err := ClockMinutes("15:04")
	assert.NoError(t, err)
	assert.Equal(t, 15*60+4, m)

	_, err = ClockMinutes("25:00")
	assert.Error(t, err)
	_, err = ClockMinutes("afternoon")
	assert.Error(t, err)
}

func TestTargets(t *testing.T) {
	c := Campaign{TargetProducts: []string{"espresso", "coffee"}}

	assert.True(t, c.Targets("espresso", "drinks"), "matches product id")
	assert.True(t, c.Targets("latte", "coffee"), "matches category")
	assert.False(t, c.Targets("croissant", "bakery"))

	// Empty target set matches everything.
	open := Campaign{}
	assert.True(t, open.Targets("anything", "whatever"))
}
