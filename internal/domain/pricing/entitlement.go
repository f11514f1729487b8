package pricing

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/loyalty-engine/internal/domain/campaign"
)

// Entitlement is a currently available stamp-card credit: the customer may
// claim Available free items from the campaign's free-product set.
type Entitlement struct {
	CampaignID   string   `json:"campaignId"`
	CampaignName string   `json:"campaignName"`
	Available    int      `json:"available"`
	Earned       int      `json:"earned"`
	Used         int      `json:"used"`
	FreeProducts []string `json:"freeProducts"`
}

// PaidItem is one historical purchased line, pre-filtered to non-free lines
// by the reader.
type PaidItem struct {
	ProductID string
	Category  string
	Quantity  int
}

// HistoryReader supplies the purchase history the calculator derives stamp
// progress from. Implementations must exclude free lines: free items never
// advance a stamp card.
type HistoryReader interface {
	ListPaidItems(ctx context.Context, customerID string, since time.Time) ([]PaidItem, error)
}

// Calculator derives stamp entitlements from purchase history. It is
// read-only: redeeming a stamp is recorded by the commit, never here.
type Calculator struct {
	campaigns campaign.Repository
	history   HistoryReader
	now       func() time.Time
}

// NewCalculator creates a Calculator over the given repositories.
func NewCalculator(campaigns campaign.Repository, history HistoryReader) *Calculator {
	return &Calculator{campaigns: campaigns, history: history, now: time.Now}
}

// ForCustomer computes entitlements across all active stamp campaigns.
// Campaigns with a malformed configuration are skipped with a logged
// warning; the remaining entitlements still compute.
func (c *Calculator) ForCustomer(ctx context.Context, customerID string) ([]Entitlement, error) {
	active, err := c.campaigns.ListActiveStamp(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list stamp campaigns")
	}

	entitlements := make([]Entitlement, 0, len(active))
	for i := range active {
		e, err := c.ForCampaign(ctx, customerID, &active[i])
		if err != nil {
			var cfgErr *campaign.ConfigError
			if errors.As(err, &cfgErr) {
				zctx.From(ctx).Warn("Skipping malformed stamp campaign",
					zap.String("campaign_id", cfgErr.CampaignID),
					zap.Error(cfgErr),
				)
				continue
			}
			return nil, err
		}
		entitlements = append(entitlements, *e)
	}
	return entitlements, nil
}

// ForCampaign computes the entitlement for a single stamp campaign:
//
//	available = max(0, floor(qualifyingPaidQty / buyQuantity) - stampsUsed)
//
// where qualifyingPaidQty sums non-free purchased quantities matching the
// campaign's target set since the campaign start.
func (c *Calculator) ForCampaign(ctx context.Context, customerID string, camp *campaign.Campaign) (*Entitlement, error) {
	if camp.Type != campaign.TypeStamp {
		return nil, &campaign.ConfigError{
			CampaignID: camp.ID,
			Field:      "type",
			Err:        errors.Errorf("expected %s, got %s", campaign.TypeStamp, camp.Type),
		}
	}
	if camp.BuyQuantity <= 0 {
		return nil, &campaign.ConfigError{
			CampaignID: camp.ID,
			Field:      "buyQuantity",
			Err:        errors.Errorf("must be positive, got %d", camp.BuyQuantity),
		}
	}
	if len(camp.FreeProducts) == 0 {
		return nil, &campaign.ConfigError{
			CampaignID: camp.ID,
			Field:      "freeProducts",
			Err:        errors.New("empty free-product set"),
		}
	}

	since := time.Time{}
	if camp.StartsAt != nil {
		since = *camp.StartsAt
	}

	items, err := c.history.ListPaidItems(ctx, customerID, since)
	if err != nil {
		return nil, errors.Wrapf(err, "list paid items for customer %s", customerID)
	}

	qualifying := 0
	for _, it := range items {
		if camp.Targets(it.ProductID, it.Category) {
			qualifying += it.Quantity
		}
	}

	used, err := c.campaigns.CountStampUsage(ctx, camp.ID, customerID)
	if err != nil {
		return nil, errors.Wrapf(err, "count stamp usage for campaign %s", camp.ID)
	}

	earned := qualifying / camp.BuyQuantity
	available := max(0, earned-used)

	return &Entitlement{
		CampaignID:   camp.ID,
		CampaignName: camp.Name,
		Available:    available,
		Earned:       earned,
		Used:         used,
		FreeProducts: camp.FreeProducts,
	}, nil
}
