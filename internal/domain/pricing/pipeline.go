package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xenking/loyalty-engine/internal/domain/campaign"
	"github.com/xenking/loyalty-engine/internal/domain/reward"
)

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// state is the immutable value threaded through the pipeline stages. Each
// stage receives a state and returns a new one; nothing is mutated in place,
// which keeps the fixed stage order (campaigns, stamps, rewards, points)
// testable in isolation.
type state struct {
	remaining decimal.Decimal
	discount  decimal.Decimal
}

// take removes amount from the remaining total and accumulates it as
// discount. Amounts are clamped so the remainder never goes negative.
func (s state) take(amount decimal.Decimal) (state, decimal.Decimal) {
	amount = decimal.Min(amount, s.remaining)
	amount = floorAtZero(amount)
	return state{
		remaining: s.remaining.Sub(amount),
		discount:  s.discount.Add(amount),
	}, amount
}

// credit accumulates a discount without touching the remaining total. Stamp
// free items are priced for discount accounting but never owed.
func (s state) credit(amount decimal.Decimal) state {
	return state{
		remaining: s.remaining,
		discount:  s.discount.Add(floorAtZero(amount)),
	}
}

// Compute runs the discount stacking pipeline over the given input. The
// stage order is fixed and non-commutative: campaign discounts, then stamp
// redemptions, then reward redemptions, then point redemption, each
// operating on the remainder left by the previous stage. Points to earn are
// computed last, on the final remaining amount.
func Compute(in Input) Breakdown {
	b := Breakdown{
		Lines:             in.Lines,
		Subtotal:          subtotal(in.Lines),
		LoyaltyMultiplier: decimal.NewFromInt(1),
	}

	st := state{remaining: b.Subtotal, discount: zero}

	st = applyCampaigns(st, in, &b)
	st = applyStamps(st, in, &b)
	st = applyRewards(st, in, &b)
	st = applyPoints(st, in, &b)

	b.TotalDiscount = st.discount.Round(2)
	b.FinalTotal = floorAtZero(st.remaining).Round(2)

	rate := in.BasePointRate
	if rate.IsZero() {
		rate = DefaultBasePointRate
	}
	b.PointsToEarn = earnedPoints(b.FinalTotal, rate, in.Customer.Tier.Multiplier(), b.LoyaltyMultiplier)

	// Reward point costs and the point redemption draw on the same balance.
	// A combined overdraft would be refused at commit, so surface it here.
	if cost := appliedRewardCost(b.Rewards); cost > 0 {
		if spend := b.PointsUsed + cost; spend > in.Customer.Points {
			b.fail(CodeInsufficientPoints, "combined point spend of %d exceeds balance of %d", spend, in.Customer.Points)
		}
	}

	return b
}

func appliedRewardCost(rewards []AppliedReward) int64 {
	var sum int64
	for _, r := range rewards {
		sum += r.PointsCost
	}
	return sum
}

// applyCampaigns is stage one: campaign discounts. Violated preconditions
// (inactive, window, minimum purchase, usage caps) drop the selection with a
// warning and the pipeline continues. LOYALTY_POINTS campaigns contribute no
// discount; the highest multiplier among them scales the points earned.
func applyCampaigns(st state, in Input, b *Breakdown) state {
	for _, f := range in.Campaigns {
		c := f.Campaign

		if c.Type == campaign.TypeLoyaltyPoints {
			if !c.ActiveAt(in.Now) {
				b.warn(CodeCampaignInactive, "campaign %s is not active", c.ID)
				continue
			}
			if c.PointsMultiplier.GreaterThan(b.LoyaltyMultiplier) {
				b.LoyaltyMultiplier = c.PointsMultiplier
			}
			continue
		}

		if ok := validateCampaign(st, in, b, f); !ok {
			continue
		}

		var amount decimal.Decimal
		switch c.DiscountType {
		case campaign.DiscountPercentage:
			amount = st.remaining.Mul(c.Value).Div(hundred)
		case campaign.DiscountFixed:
			amount = c.Value
		default:
			b.warn(CodeMalformedCampaign, "campaign %s has unsupported discount type %q", c.ID, c.DiscountType)
			continue
		}

		var taken decimal.Decimal
		st, taken = st.take(amount.Round(2))
		b.Campaigns = append(b.Campaigns, AppliedCampaign{
			CampaignID: c.ID,
			Name:       c.Name,
			Discount:   taken,
		})
	}
	return st
}

// validateCampaign checks stage-one preconditions for a discount-bearing
// campaign. Every failed check is a warning, never a hard error.
func validateCampaign(st state, in Input, b *Breakdown, f CampaignFact) bool {
	c := f.Campaign

	if !c.ActiveAt(in.Now) {
		b.warn(CodeCampaignInactive, "campaign %s is not active", c.ID)
		return false
	}

	switch c.Type {
	case campaign.TypeDiscount:
	case campaign.TypeTimeBased:
		if !c.ValidOnDay(in.Now) {
			b.warn(CodeCampaignInactive, "campaign %s is not valid today", c.ID)
			return false
		}
		if !c.ValidAtClock(in.Now) {
			b.warn(CodeCampaignInactive, "campaign %s is not valid at this time of day", c.ID)
			return false
		}
	case campaign.TypeBirthday:
		if !in.Customer.BirthdayMonth(in.Now) {
			b.warn(CodeCampaignInactive, "campaign %s applies only during the birthday month", c.ID)
			return false
		}
	default:
		b.warn(CodeCampaignInactive, "campaign %s of type %s cannot be applied as a discount", c.ID, c.Type)
		return false
	}

	if c.MinPurchase.IsPositive() && st.remaining.LessThan(c.MinPurchase) {
		b.warn(CodeMinPurchaseNotMet, "campaign %s requires a minimum purchase of %s", c.ID, c.MinPurchase.StringFixed(2))
		return false
	}
	if c.MaxUsage > 0 && f.TotalUsage >= c.MaxUsage {
		b.warn(CodeUsageCapReached, "campaign %s has reached its usage limit", c.ID)
		return false
	}
	if c.MaxUsagePerCustomer > 0 && f.CustomerUsage >= c.MaxUsagePerCustomer {
		b.warn(CodeCustomerCapReached, "campaign %s usage limit reached for this customer", c.ID)
		return false
	}
	return true
}

// applyStamps is stage two: each redeemed stamp adds a free item line whose
// catalog price counts entirely as discount but contributes nothing to the
// amount owed.
func applyStamps(st state, in Input, b *Breakdown) state {
	for _, f := range in.Stamps {
		if f.Available < 1 {
			b.warn(CodeStampUnavailable, "no stamps available for campaign %s", f.Campaign.ID)
			continue
		}

		b.Lines = append(b.Lines, Line{
			ProductID: f.FreeProductID,
			Name:      f.FreeName,
			Category:  f.FreeCategory,
			UnitPrice: f.FreePrice,
			Quantity:  1,
			LineTotal: zero,
			IsFree:    true,
		})
		b.Stamps = append(b.Stamps, StampRedemption{
			CampaignID:    f.Campaign.ID,
			FreeProductID: f.FreeProductID,
			Name:          f.FreeName,
			Value:         f.FreePrice,
		})
		st = st.credit(f.FreePrice)
	}
	return st
}

// applyRewards is stage three: owned or points-purchasable DISCOUNT rewards.
// Rewards the customer neither owns nor can afford are warnings.
func applyRewards(st state, in Input, b *Breakdown) state {
	for _, f := range in.Rewards {
		e := f.Entry
		if e.Type != reward.TypeDiscount || !e.Active {
			b.warn(CodeRewardNotOwned, "reward %s cannot be redeemed", e.ID)
			continue
		}

		grantID := ""
		pointsCost := int64(0)
		switch {
		case f.Grant != nil:
			grantID = f.Grant.ID
		case e.PointsCost > 0 && e.PointsCost <= in.Customer.Points:
			pointsCost = e.PointsCost
		case e.PointsCost > 0:
			b.warn(CodeRewardUnaffordable, "reward %s costs %d points", e.ID, e.PointsCost)
			continue
		default:
			b.warn(CodeRewardNotOwned, "reward %s is not owned by this customer", e.ID)
			continue
		}

		var taken decimal.Decimal
		st, taken = st.take(e.Value)
		b.Rewards = append(b.Rewards, AppliedReward{
			RewardID:   e.ID,
			GrantID:    grantID,
			Name:       e.Name,
			Discount:   taken,
			PointsCost: pointsCost,
		})
	}
	return st
}

// applyPoints is stage four and always runs last, on whatever the previous
// stages left. Requesting more points than the customer holds is an error:
// the breakdown is still returned, but the request is never silently
// clamped and completion must be refused.
func applyPoints(st state, in Input, b *Breakdown) state {
	if in.UsePoints <= 0 {
		return st
	}

	if in.UsePoints > in.Customer.Points {
		b.fail(CodeInsufficientPoints, "requested %d points but only %d available", in.UsePoints, in.Customer.Points)
	}

	value := decimal.NewFromInt(in.UsePoints).Mul(PointValue)
	st, applied := st.take(value)

	// Charge only the points actually needed to cover the applied amount.
	b.PointsUsed = applied.Div(PointValue).Ceil().IntPart()
	b.PointsValue = applied

	return st
}

// earnedPoints computes floor(final * rate * tierMult * loyaltyMult).
func earnedPoints(final, rate, tierMult, loyaltyMult decimal.Decimal) int64 {
	return final.Mul(rate).Mul(tierMult).Mul(loyaltyMult).Floor().IntPart()
}

func subtotal(lines []Line) decimal.Decimal {
	sum := zero
	for _, l := range lines {
		sum = sum.Add(l.LineTotal)
	}
	return sum
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}

func (b *Breakdown) warn(code, format string, args ...any) {
	b.Warnings = append(b.Warnings, Note{Code: code, Message: fmt.Sprintf(format, args...)})
}

func (b *Breakdown) fail(code, format string, args ...any) {
	b.Errors = append(b.Errors, Note{Code: code, Message: fmt.Sprintf(format, args...)})
}
