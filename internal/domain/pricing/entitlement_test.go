package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/loyalty-engine/internal/domain/campaign"
)

type mockCampaignRepo struct {
	active     []campaign.Campaign
	stampUsage map[string]int
	listErr    error
}

func (m *mockCampaignRepo) GetByID(_ context.Context, id string) (*campaign.Campaign, error) {
	for i := range m.active {
		if m.active[i].ID == id {
			return &m.active[i], nil
		}
	}
	return nil, campaign.ErrNotFound
}

func (m *mockCampaignRepo) GetByIDs(_ context.Context, ids []string) ([]campaign.Campaign, error) {
	var out []campaign.Campaign
	for _, id := range ids {
		for i := range m.active {
			if m.active[i].ID == id {
				out = append(out, m.active[i])
			}
		}
	}
	return out, nil
}

func (m *mockCampaignRepo) ListActiveStamp(_ context.Context) ([]campaign.Campaign, error) {
	return m.active, m.listErr
}

func (m *mockCampaignRepo) CountUsage(_ context.Context, _ string) (int, error) {
	return 0, nil
}

func (m *mockCampaignRepo) CountCustomerUsage(_ context.Context, _, _ string) (int, error) {
	return 0, nil
}

func (m *mockCampaignRepo) CountStampUsage(_ context.Context, campaignID, _ string) (int, error) {
	return m.stampUsage[campaignID], nil
}

type mockHistory struct {
	items []PaidItem
	err   error
}

func (m *mockHistory) ListPaidItems(_ context.Context, _ string, _ time.Time) ([]PaidItem, error) {
	return m.items, m.err
}

func stampCampaign(id string, buy int, targets, free []string) campaign.Campaign {
	return campaign.Campaign{
		ID:             id,
		Name:           id,
		Type:           campaign.TypeStamp,
		BuyQuantity:    buy,
		GetQuantity:    1,
		TargetProducts: targets,
		FreeProducts:   free,
		Active:         true,
	}
}

func TestForCampaign_AvailableFromHistory(t *testing.T) {
	camp := stampCampaign("card", 5, []string{"coffee"}, []string{"espresso"})
	repo := &mockCampaignRepo{stampUsage: map[string]int{"card": 1}}
	history := &mockHistory{items: []PaidItem{
		{ProductID: "latte", Category: "coffee", Quantity: 7},
		{ProductID: "espresso", Category: "coffee", Quantity: 5},
		{ProductID: "croissant", Category: "bakery", Quantity: 3},
	}}

	calc := NewCalculator(repo, history)
	e, err := calc.ForCampaign(context.Background(), "c1", &camp)

	require.NoError(t, err)
	// 12 qualifying units / 5 = 2 earned, 1 used.
	assert.Equal(t, 2, e.Earned)
	assert.Equal(t, 1, e.Used)
	assert.Equal(t, 1, e.Available)
	assert.Equal(t, []string{"espresso"}, e.FreeProducts)
}

func TestForCampaign_AvailableNeverNegative(t *testing.T) {
	camp := stampCampaign("card", 5, nil, []string{"espresso"})
	repo := &mockCampaignRepo{stampUsage: map[string]int{"card": 3}}
	history := &mockHistory{items: []PaidItem{
		{ProductID: "latte", Category: "coffee", Quantity: 5},
	}}

	calc := NewCalculator(repo, history)
	e, err := calc.ForCampaign(context.Background(), "c1", &camp)

	require.NoError(t, err)
	assert.Equal(t, 1, e.Earned)
	assert.Equal(t, 3, e.Used)
	assert.Equal(t, 0, e.Available)
}

func TestForCampaign_EmptyTargetsMatchEverything(t *testing.T) {
	camp := stampCampaign("card", 2, nil, []string{"espresso"})
	repo := &mockCampaignRepo{stampUsage: map[string]int{}}
	history := &mockHistory{items: []PaidItem{
		{ProductID: "anything", Category: "whatever", Quantity: 4},
	}}

	calc := NewCalculator(repo, history)
	e, err := calc.ForCampaign(context.Background(), "c1", &camp)

	require.NoError(t, err)
	assert.Equal(t, 2, e.Available)
}

func TestForCampaign_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		camp campaign.Campaign
	}{
		{"wrong type", campaign.Campaign{ID: "x", Type: campaign.TypeDiscount}},
		{"zero buy quantity", stampCampaign("x", 0, nil, []string{"espresso"})},
		{"no free products", stampCampaign("x", 5, nil, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calc := NewCalculator(&mockCampaignRepo{}, &mockHistory{})
			_, err := calc.ForCampaign(context.Background(), "c1", &tt.camp)

			var cfgErr *campaign.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, "x", cfgErr.CampaignID)
		})
	}
}

func TestForCustomer_SkipsMalformedCampaigns(t *testing.T) {
	good := stampCampaign("good", 2, nil, []string{"espresso"})
	broken := stampCampaign("broken", 0, nil, []string{"espresso"})

	repo := &mockCampaignRepo{
		active:     []campaign.Campaign{broken, good},
		stampUsage: map[string]int{},
	}
	history := &mockHistory{items: []PaidItem{
		{ProductID: "latte", Category: "coffee", Quantity: 4},
	}}

	calc := NewCalculator(repo, history)
	entitlements, err := calc.ForCustomer(context.Background(), "c1")

	require.NoError(t, err)
	require.Len(t, entitlements, 1)
	assert.Equal(t, "good", entitlements[0].CampaignID)
	assert.Equal(t, 2, entitlements[0].Available)
}

func TestForCustomer_HistoryError(t *testing.T) {
	repo := &mockCampaignRepo{
		active: []campaign.Campaign{stampCampaign("card", 2, nil, []string{"espresso"})},
	}
	history := &mockHistory{err: errors.New("db down")}

	calc := NewCalculator(repo, history)
	_, err := calc.ForCustomer(context.Background(), "c1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "list paid items")
}
