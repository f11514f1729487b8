// Package pricing implements the order pricing engine: the stamp entitlement
// calculator and the discount stacking pipeline. Everything here is pure
// computation over pre-loaded facts; persistence and reservation handling
// live in the order package.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/loyalty-engine/internal/domain/campaign"
	"github.com/xenking/loyalty-engine/internal/domain/customer"
	"github.com/xenking/loyalty-engine/internal/domain/reward"
)

// PointValue is the currency value of a single loyalty point (1 point = 0.1).
var PointValue = decimal.New(1, -1)

// DefaultBasePointRate is the fraction of the final total earned as points
// before tier and campaign multipliers.
var DefaultBasePointRate = decimal.New(1, -1)

// Line is a resolved order line. Free lines granted by stamp redemptions
// carry the catalog price in UnitPrice but contribute zero to the total owed.
type Line struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"lineTotal"`
	IsFree    bool            `json:"isFree"`
}

// Selections holds everything the customer chose to apply to the order.
type Selections struct {
	UsePoints      int64    `json:"usePoints,omitempty"`
	CampaignIDs    []string `json:"campaignIds,omitempty"`
	RedeemStampIDs []string `json:"redeemStampIds,omitempty"`
	RewardIDs      []string `json:"rewardIds,omitempty"`
}

// Note is a coded warning or soft error attached to a breakdown.
type Note struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Warning and error codes.
const (
	CodeCampaignInactive    = "CAMPAIGN_INACTIVE"
	CodeCampaignNotFound    = "CAMPAIGN_NOT_FOUND"
	CodeMinPurchaseNotMet   = "MIN_PURCHASE_NOT_MET"
	CodeUsageCapReached     = "USAGE_CAP_REACHED"
	CodeCustomerCapReached  = "CUSTOMER_CAP_REACHED"
	CodeStampUnavailable    = "STAMP_UNAVAILABLE"
	CodeMalformedCampaign   = "MALFORMED_CAMPAIGN"
	CodeRewardNotOwned      = "REWARD_NOT_OWNED"
	CodeRewardUnaffordable  = "REWARD_UNAFFORDABLE"
	CodeInsufficientPoints  = "INSUFFICIENT_POINTS"
	CodeCapLostConcurrently = "USAGE_CAP_LOST"
)

// AppliedCampaign records one campaign discount taken during stage one.
type AppliedCampaign struct {
	CampaignID string          `json:"campaignId"`
	Name       string          `json:"name"`
	Discount   decimal.Decimal `json:"discount"`
}

// StampRedemption records one free item granted during stage two.
type StampRedemption struct {
	CampaignID    string          `json:"campaignId"`
	FreeProductID string          `json:"freeProductId"`
	Name          string          `json:"name"`
	Value         decimal.Decimal `json:"value"`
}

// AppliedReward records one reward discount taken during stage three.
// PointsCost is non-zero when the reward was bought with points rather than
// pre-granted; the cost is deducted at commit time.
type AppliedReward struct {
	RewardID   string          `json:"rewardId"`
	GrantID    string          `json:"grantId,omitempty"`
	Name       string          `json:"name"`
	Discount   decimal.Decimal `json:"discount"`
	PointsCost int64           `json:"pointsCost,omitempty"`
}

// Breakdown is the complete result of the stacking pipeline. It is the
// payload reserved under a token by preview and replayed by commit.
type Breakdown struct {
	Lines    []Line          `json:"lines"`
	Subtotal decimal.Decimal `json:"subtotal"`

	Campaigns []AppliedCampaign `json:"campaigns,omitempty"`
	Stamps    []StampRedemption `json:"stamps,omitempty"`
	Rewards   []AppliedReward   `json:"rewards,omitempty"`

	// PointsUsed is what the point redemption stage actually charges,
	// PointsValue the currency amount it removed from the total.
	PointsUsed  int64           `json:"pointsUsed"`
	PointsValue decimal.Decimal `json:"pointsValue"`

	TotalDiscount decimal.Decimal `json:"totalDiscount"`
	FinalTotal    decimal.Decimal `json:"finalTotal"`

	// PointsToEarn is computed on the final total after all four stages.
	PointsToEarn int64 `json:"pointsToEarn"`

	// LoyaltyMultiplier is the applied LOYALTY_POINTS campaign multiplier
	// (the maximum among selected ones; multipliers do not stack).
	LoyaltyMultiplier decimal.Decimal `json:"loyaltyMultiplier"`

	Warnings []Note `json:"warnings,omitempty"`
	// Errors flag rule violations that must block completion, e.g. spending
	// more points than the customer holds. The breakdown is still complete.
	Errors []Note `json:"errors,omitempty"`
}

// Blocked reports whether the breakdown carries errors that must prevent
// completion.
func (b *Breakdown) Blocked() bool { return len(b.Errors) > 0 }

// CampaignFact pairs a selected campaign with its current usage counts, as
// observed at preview time. Counts are re-validated inside the commit
// transaction; these values only drive preview warnings.
type CampaignFact struct {
	Campaign      campaign.Campaign
	TotalUsage    int
	CustomerUsage int
}

// StampFact is a selected stamp redemption with its entitlement already
// validated and the free product resolved against the catalog.
type StampFact struct {
	Campaign      campaign.Campaign
	Available     int
	FreeProductID string
	FreeName      string
	FreeCategory  string
	FreePrice     decimal.Decimal
}

// RewardFact is a selected reward with ownership resolved.
type RewardFact struct {
	Entry reward.CatalogEntry
	// Grant is nil when the customer owns no usable grant; the reward may
	// still be bought with points when Entry.PointsCost > 0.
	Grant *reward.Grant
}

// Input carries everything the stacking pipeline needs. The pipeline itself
// performs no I/O.
type Input struct {
	Customer  customer.Customer
	Lines     []Line
	Campaigns []CampaignFact
	Stamps    []StampFact
	Rewards   []RewardFact
	UsePoints int64

	BasePointRate decimal.Decimal
	Now           time.Time
}
