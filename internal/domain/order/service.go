package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/loyalty-engine/internal/domain/campaign"
	"github.com/xenking/loyalty-engine/internal/domain/customer"
	"github.com/xenking/loyalty-engine/internal/domain/pricing"
	"github.com/xenking/loyalty-engine/internal/domain/product"
	"github.com/xenking/loyalty-engine/internal/domain/reward"
	"github.com/xenking/loyalty-engine/internal/events"
	"github.com/xenking/loyalty-engine/internal/reservation"
)

// ItemSelection is one requested order line.
type ItemSelection struct {
	ProductID string
	Quantity  int
}

// PreviewRequest holds the input for pricing an order.
type PreviewRequest struct {
	CustomerID string
	Items      []ItemSelection
	Selections pricing.Selections
}

// TokenInfo describes the issued reservation token.
type TokenInfo struct {
	ExpiresAt        time.Time `json:"expiresAt"`
	ExpiresInSeconds int64     `json:"expiresInSeconds"`
	Valid            bool      `json:"valid"`
}

// PreviewResult is the priced breakdown plus the token that reserves it.
type PreviewResult struct {
	Breakdown pricing.Breakdown
	Token     string
	TokenInfo TokenInfo
}

// Service implements the two-phase preview/complete protocol.
type Service struct {
	products     product.Repository
	customers    customer.Repository
	campaigns    campaign.Repository
	rewards      reward.Repository
	entitlements *pricing.Calculator
	reservations reservation.Store
	store        Store
	bus          *events.Bus

	basePointRate decimal.Decimal
	now           func() time.Time
}

// ServiceConfig holds non-dependency configuration for the Service.
type ServiceConfig struct {
	// BasePointRate is the fraction of the final total earned as points
	// before multipliers; zero falls back to pricing.DefaultBasePointRate.
	BasePointRate decimal.Decimal
}

// NewService creates a Service with the required collaborators.
func NewService(
	cfg ServiceConfig,
	products product.Repository,
	customers customer.Repository,
	campaigns campaign.Repository,
	rewards reward.Repository,
	entitlements *pricing.Calculator,
	reservations reservation.Store,
	store Store,
	bus *events.Bus,
) *Service {
	rate := cfg.BasePointRate
	if rate.IsZero() {
		rate = pricing.DefaultBasePointRate
	}
	return &Service{
		products:      products,
		customers:     customers,
		campaigns:     campaigns,
		rewards:       rewards,
		entitlements:  entitlements,
		reservations:  reservations,
		store:         store,
		bus:           bus,
		basePointRate: rate,
		now:           time.Now,
	}
}

// Preview resolves items, validates selections, runs the stacking pipeline
// and reserves the result under a token. It has zero observable side effects
// on shared state: nothing here mutates customers, campaigns or ledgers.
func (s *Service) Preview(ctx context.Context, req PreviewRequest) (*PreviewResult, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	lines, err := s.resolveLines(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	cust, err := s.customers.GetByID(ctx, req.CustomerID)
	if err != nil {
		return nil, errors.Wrapf(err, "get customer %s", req.CustomerID)
	}

	now := s.now()
	var preNotes []pricing.Note

	campaignFacts, notes, err := s.resolveCampaigns(ctx, req.Selections.CampaignIDs, req.CustomerID)
	if err != nil {
		return nil, err
	}
	preNotes = append(preNotes, notes...)

	stampFacts, notes, err := s.resolveStamps(ctx, req.Selections.RedeemStampIDs, req.CustomerID)
	if err != nil {
		return nil, err
	}
	preNotes = append(preNotes, notes...)

	rewardFacts, notes, err := s.resolveRewards(ctx, req.Selections.RewardIDs, req.CustomerID, now)
	if err != nil {
		return nil, err
	}
	preNotes = append(preNotes, notes...)

	breakdown := pricing.Compute(pricing.Input{
		Customer:      *cust,
		Lines:         lines,
		Campaigns:     campaignFacts,
		Stamps:        stampFacts,
		Rewards:       rewardFacts,
		UsePoints:     req.Selections.UsePoints,
		BasePointRate: s.basePointRate,
		Now:           now,
	})
	breakdown.Warnings = append(preNotes, breakdown.Warnings...)

	res := &reservation.Reservation{
		CustomerID: req.CustomerID,
		Selections: req.Selections,
		Breakdown:  breakdown,
	}
	token, err := s.reservations.Create(ctx, res)
	if err != nil {
		return nil, errors.Wrap(err, "create reservation")
	}

	return &PreviewResult{
		Breakdown: breakdown,
		Token:     token,
		TokenInfo: TokenInfo{
			ExpiresAt:        res.ExpiresAt,
			ExpiresInSeconds: int64(res.ExpiresAt.Sub(now).Seconds()),
			Valid:            true,
		},
	}, nil
}

// resolveLines validates quantities and batch-fetches products.
func (s *Service) resolveLines(ctx context.Context, items []ItemSelection) ([]pricing.Line, error) {
	ids := make([]string, len(items))
	for i, item := range items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids[i] = item.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	lines := make([]pricing.Line, len(items))
	for i, item := range items {
		p, ok := byID[item.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		qty := decimal.NewFromInt(int64(item.Quantity))
		lines[i] = pricing.Line{
			ProductID: p.ID,
			Name:      p.Name,
			Category:  p.Category,
			UnitPrice: p.Price,
			Quantity:  item.Quantity,
			LineTotal: p.Price.Mul(qty),
		}
	}
	return lines, nil
}

// resolveCampaigns loads selected campaigns with their current usage counts.
// Unknown ids become warnings, not failures.
func (s *Service) resolveCampaigns(ctx context.Context, ids []string, customerID string) ([]pricing.CampaignFact, []pricing.Note, error) {
	if len(ids) == 0 {
		return nil, nil, nil
	}

	loaded, err := s.campaigns.GetByIDs(ctx, ids)
	if err != nil {
		return nil, nil, errors.Wrap(err, "get campaigns")
	}
	byID := make(map[string]campaign.Campaign, len(loaded))
	for _, c := range loaded {
		byID[c.ID] = c
	}

	var (
		facts []pricing.CampaignFact
		notes []pricing.Note
	)
	for _, id := range ids {
		c, ok := byID[id]
		if !ok {
			notes = append(notes, pricing.Note{
				Code:    pricing.CodeCampaignNotFound,
				Message: "campaign " + id + " not found",
			})
			continue
		}

		fact := pricing.CampaignFact{Campaign: c}
		if c.MaxUsage > 0 {
			fact.TotalUsage, err = s.campaigns.CountUsage(ctx, c.ID)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "count usage for campaign %s", c.ID)
			}
		}
		if c.MaxUsagePerCustomer > 0 {
			fact.CustomerUsage, err = s.campaigns.CountCustomerUsage(ctx, c.ID, customerID)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "count customer usage for campaign %s", c.ID)
			}
		}
		facts = append(facts, fact)
	}
	return facts, notes, nil
}

// resolveStamps validates requested stamp redemptions against computed
// entitlements and resolves the free product for each. Requesting the same
// campaign twice consumes two entitlements when available.
func (s *Service) resolveStamps(ctx context.Context, ids []string, customerID string) ([]pricing.StampFact, []pricing.Note, error) {
	if len(ids) == 0 {
		return nil, nil, nil
	}

	var (
		facts    []pricing.StampFact
		notes    []pricing.Note
		consumed = make(map[string]int)
	)
	for _, id := range ids {
		camp, err := s.campaigns.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, campaign.ErrNotFound) {
				notes = append(notes, pricing.Note{
					Code:    pricing.CodeCampaignNotFound,
					Message: "stamp campaign " + id + " not found",
				})
				continue
			}
			return nil, nil, errors.Wrapf(err, "get stamp campaign %s", id)
		}

		ent, err := s.entitlements.ForCampaign(ctx, customerID, camp)
		if err != nil {
			var cfgErr *campaign.ConfigError
			if errors.As(err, &cfgErr) {
				notes = append(notes, pricing.Note{
					Code:    pricing.CodeMalformedCampaign,
					Message: cfgErr.Error(),
				})
				continue
			}
			return nil, nil, err
		}

		available := ent.Available - consumed[id]
		consumed[id]++

		freeID := camp.FreeProducts[0]
		free, err := s.products.GetByID(ctx, freeID)
		if err != nil {
			if errors.Is(err, product.ErrNotFound) {
				notes = append(notes, pricing.Note{
					Code:    pricing.CodeMalformedCampaign,
					Message: "campaign " + id + " free product " + freeID + " not found",
				})
				continue
			}
			return nil, nil, errors.Wrapf(err, "get free product %s", freeID)
		}

		facts = append(facts, pricing.StampFact{
			Campaign:      *camp,
			Available:     available,
			FreeProductID: free.ID,
			FreeName:      free.Name,
			FreeCategory:  free.Category,
			FreePrice:     free.Price,
		})
	}
	return facts, notes, nil
}

// resolveRewards loads selected rewards and the customer's usable grants.
func (s *Service) resolveRewards(ctx context.Context, ids []string, customerID string, now time.Time) ([]pricing.RewardFact, []pricing.Note, error) {
	if len(ids) == 0 {
		return nil, nil, nil
	}

	var (
		facts []pricing.RewardFact
		notes []pricing.Note
	)
	for _, id := range ids {
		entry, err := s.rewards.GetCatalogEntry(ctx, id)
		if err != nil {
			if errors.Is(err, reward.ErrNotFound) {
				notes = append(notes, pricing.Note{
					Code:    pricing.CodeRewardNotOwned,
					Message: "reward " + id + " not found",
				})
				continue
			}
			return nil, nil, errors.Wrapf(err, "get reward %s", id)
		}

		grant, err := s.rewards.FindGrant(ctx, customerID, id)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "find grant for reward %s", id)
		}
		if grant != nil && !grant.Usable(now) {
			grant = nil
		}

		facts = append(facts, pricing.RewardFact{Entry: *entry, Grant: grant})
	}
	return facts, notes, nil
}
