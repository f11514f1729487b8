package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/loyalty-engine/internal/domain/campaign"
	"github.com/xenking/loyalty-engine/internal/domain/customer"
	"github.com/xenking/loyalty-engine/internal/domain/points"
	"github.com/xenking/loyalty-engine/internal/domain/pricing"
	"github.com/xenking/loyalty-engine/internal/events"
	"github.com/xenking/loyalty-engine/internal/reservation"
)

// pointExpiry is how long newly earned points stay valid.
const pointExpiry = 365 * 24 * time.Hour

// CompleteRequest holds the input for committing a reservation.
type CompleteRequest struct {
	ReservationToken string
	OrderNumber      string
	PaymentMethod    string
	PaymentReference string
	Notes            string
}

// Summary condenses the committed amounts for the response.
type Summary struct {
	Subtotal      decimal.Decimal `json:"subtotal"`
	TotalDiscount decimal.Decimal `json:"totalDiscount"`
	FinalTotal    decimal.Decimal `json:"finalTotal"`
	PointsUsed    int64           `json:"pointsUsed"`
	PointsEarned  int64           `json:"pointsEarned"`
	PointsBalance int64           `json:"pointsBalance"`
}

// Receipt is the customer-facing record of the committed order.
type Receipt struct {
	OrderNumber   string          `json:"orderNumber"`
	Lines         []pricing.Line  `json:"lines"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TotalDiscount decimal.Decimal `json:"totalDiscount"`
	FinalTotal    decimal.Decimal `json:"finalTotal"`
	PaymentMethod string          `json:"paymentMethod,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// CompleteResult is the outcome of a successful commit.
type CompleteResult struct {
	TransactionID string
	OrderNumber   string
	Summary       Summary
	// Warnings report partial application, e.g. a usage cap lost to a
	// concurrent commit between preview and completion.
	Warnings []pricing.Note
	// Achievements are best-effort post-commit detections; absent when the
	// post-commit phase fails.
	Achievements []Achievement
	Receipt      Receipt
}

// Complete materializes a reservation into persistent state. Each step is a
// precondition for the next: idempotency guard, atomic token consume, fresh
// balance re-check, then one database transaction for every write. Post-
// commit effects (milestones, tier re-evaluation, events) can never roll
// back the committed order.
func (s *Service) Complete(ctx context.Context, req CompleteRequest) (*CompleteResult, error) {
	exists, err := s.store.OrderNumberExists(ctx, req.OrderNumber)
	if err != nil {
		return nil, errors.Wrap(err, "check order number")
	}
	if exists {
		return nil, &DuplicateOrderError{OrderNumber: req.OrderNumber}
	}

	res, err := s.reservations.Consume(ctx, req.ReservationToken)
	if err != nil {
		if errors.Is(err, reservation.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, errors.Wrap(err, "consume reservation")
	}

	now := s.now()
	b := &res.Breakdown
	pointsToSpend := b.PointsUsed + rewardPointCost(b.Rewards)

	t := &Transaction{
		ID:               uuid.New().String(),
		OrderNumber:      req.OrderNumber,
		CustomerID:       res.CustomerID,
		Subtotal:         b.Subtotal,
		DiscountTotal:    b.TotalDiscount,
		FinalTotal:       b.FinalTotal,
		PointsUsed:       pointsToSpend,
		PointsEarned:     b.PointsToEarn,
		PaymentMethod:    req.PaymentMethod,
		PaymentReference: req.PaymentReference,
		Notes:            req.Notes,
		CreatedAt:        now,
	}

	var (
		before   *customer.Customer
		balance  int64
		warnings []pricing.Note
	)
	err = s.store.InTx(ctx, func(ctx context.Context, tx TxStore) error {
		cust, err := tx.GetCustomerForUpdate(ctx, res.CustomerID)
		if err != nil {
			return err
		}
		before = cust

		// Re-check against the live balance, not the preview snapshot.
		if pointsToSpend > cust.Points {
			return &InsufficientPointsError{Requested: pointsToSpend, Available: cust.Points}
		}

		if err := tx.CreateTransaction(ctx, t); err != nil {
			return errors.Wrap(err, "create transaction")
		}
		if err := tx.CreateItems(ctx, t.ID, b.Lines); err != nil {
			return errors.Wrap(err, "create items")
		}

		warnings, err = s.writeCampaignUsages(ctx, tx, t, b.Campaigns)
		if err != nil {
			return err
		}

		for _, st := range b.Stamps {
			rec := campaign.StampUsage{
				ID:            uuid.New().String(),
				CampaignID:    st.CampaignID,
				CustomerID:    res.CustomerID,
				TransactionID: t.ID,
				FreeProductID: st.FreeProductID,
				UsedAt:        now,
			}
			if err := tx.CreateStampUsage(ctx, rec); err != nil {
				return errors.Wrapf(err, "create stamp usage for campaign %s", st.CampaignID)
			}
		}

		for _, rw := range b.Rewards {
			if rw.GrantID == "" {
				continue
			}
			won, err := tx.RedeemGrant(ctx, rw.GrantID, now)
			if err != nil {
				return errors.Wrapf(err, "redeem grant %s", rw.GrantID)
			}
			if !won {
				warnings = append(warnings, pricing.Note{
					Code:    pricing.CodeCapLostConcurrently,
					Message: "reward " + rw.RewardID + " was redeemed concurrently",
				})
			}
		}

		balance = cust.Points
		if pointsToSpend > 0 {
			balance -= pointsToSpend
			entry := points.LedgerEntry{
				CustomerID: res.CustomerID,
				Amount:     -pointsToSpend,
				Type:       points.Spent,
				Source:     t.ID,
				Balance:    balance,
				CreatedAt:  now,
			}
			if err := tx.AppendLedger(ctx, entry); err != nil {
				return errors.Wrap(err, "append spent ledger entry")
			}
		}
		if t.PointsEarned > 0 {
			balance += t.PointsEarned
			expiry := now.Add(pointExpiry)
			entry := points.LedgerEntry{
				CustomerID: res.CustomerID,
				Amount:     t.PointsEarned,
				Type:       points.Earned,
				Source:     t.ID,
				Balance:    balance,
				ExpiresAt:  &expiry,
				CreatedAt:  now,
			}
			if err := tx.AppendLedger(ctx, entry); err != nil {
				return errors.Wrap(err, "append earned ledger entry")
			}
		}

		if err := tx.UpdateCustomerCounters(ctx, res.CustomerID, balance, t.FinalTotal, now); err != nil {
			return errors.Wrap(err, "update customer counters")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	achievements := s.afterCommit(ctx, before, t, balance)

	return &CompleteResult{
		TransactionID: t.ID,
		OrderNumber:   t.OrderNumber,
		Summary: Summary{
			Subtotal:      t.Subtotal,
			TotalDiscount: t.DiscountTotal,
			FinalTotal:    t.FinalTotal,
			PointsUsed:    t.PointsUsed,
			PointsEarned:  t.PointsEarned,
			PointsBalance: balance,
		},
		Warnings:     warnings,
		Achievements: achievements,
		Receipt: Receipt{
			OrderNumber:   t.OrderNumber,
			Lines:         b.Lines,
			Subtotal:      t.Subtotal,
			TotalDiscount: t.DiscountTotal,
			FinalTotal:    t.FinalTotal,
			PaymentMethod: t.PaymentMethod,
			CreatedAt:     t.CreatedAt,
		},
	}, nil
}

// writeCampaignUsages re-validates usage caps against the fresh campaign row
// inside the transaction, immediately before writing each usage record. A
// cap exceeded by a concurrent commit drops that campaign's record, not the
// whole order, and is surfaced as a partial-application warning.
func (s *Service) writeCampaignUsages(ctx context.Context, tx TxStore, t *Transaction, applied []pricing.AppliedCampaign) ([]pricing.Note, error) {
	var warnings []pricing.Note
	for _, ac := range applied {
		c, err := tx.GetCampaign(ctx, ac.CampaignID)
		if err != nil {
			if errors.Is(err, campaign.ErrNotFound) {
				warnings = append(warnings, pricing.Note{
					Code:    pricing.CodeCapLostConcurrently,
					Message: "campaign " + ac.CampaignID + " no longer exists",
				})
				continue
			}
			return nil, errors.Wrapf(err, "reload campaign %s", ac.CampaignID)
		}

		if c.MaxUsage > 0 {
			n, err := tx.CountUsage(ctx, c.ID)
			if err != nil {
				return nil, errors.Wrapf(err, "recount usage for campaign %s", c.ID)
			}
			if n >= c.MaxUsage {
				warnings = append(warnings, pricing.Note{
					Code:    pricing.CodeCapLostConcurrently,
					Message: "campaign " + c.ID + " usage cap was reached by a concurrent order",
				})
				continue
			}
		}
		if c.MaxUsagePerCustomer > 0 {
			n, err := tx.CountCustomerUsage(ctx, c.ID, t.CustomerID)
			if err != nil {
				return nil, errors.Wrapf(err, "recount customer usage for campaign %s", c.ID)
			}
			if n >= c.MaxUsagePerCustomer {
				warnings = append(warnings, pricing.Note{
					Code:    pricing.CodeCapLostConcurrently,
					Message: "campaign " + c.ID + " per-customer cap was reached by a concurrent order",
				})
				continue
			}
		}

		rec := campaign.UsageRecord{
			ID:            uuid.New().String(),
			CampaignID:    c.ID,
			CustomerID:    t.CustomerID,
			TransactionID: t.ID,
			Discount:      ac.Discount,
			UsedAt:        t.CreatedAt,
		}
		if err := tx.CreateCampaignUsage(ctx, rec); err != nil {
			return nil, errors.Wrapf(err, "create usage record for campaign %s", c.ID)
		}
	}
	return warnings, nil
}

// afterCommit runs the post-commit phase: milestone detection, tier
// re-evaluation and event publication. Failures are logged and degrade to
// missing achievements; the committed order is never affected.
func (s *Service) afterCommit(ctx context.Context, before *customer.Customer, t *Transaction, balance int64) []Achievement {
	lg := zctx.From(ctx)

	achievements := detectMilestones(before, t, balance)
	for _, a := range achievements {
		s.bus.Publish(events.MilestoneReached{
			CustomerID: t.CustomerID,
			Kind:       a.Kind,
			Threshold:  a.Threshold,
			At:         t.CreatedAt,
		})
	}

	newSpent := before.TotalSpent.Add(t.FinalTotal)
	newTier := customer.EvaluateTier(newSpent)
	if tierRank(newTier) > tierRank(before.Tier) {
		if err := s.store.UpdateTier(ctx, t.CustomerID, newTier); err != nil {
			lg.Error("Tier upgrade failed after commit",
				zap.String("customer_id", t.CustomerID),
				zap.String("tier", string(newTier)),
				zap.Error(err),
			)
		} else {
			achievements = append(achievements, Achievement{
				Kind:    AchievementTierUpgrade,
				Message: "upgraded to " + string(newTier),
			})
			s.bus.Publish(events.TierUpgraded{
				CustomerID: t.CustomerID,
				From:       string(before.Tier),
				To:         string(newTier),
				At:         t.CreatedAt,
			})
		}
	}

	if t.PointsUsed > 0 {
		s.bus.Publish(events.PointsSpent{
			CustomerID:    t.CustomerID,
			TransactionID: t.ID,
			Points:        t.PointsUsed,
			Balance:       balance,
			At:            t.CreatedAt,
		})
	}
	if t.PointsEarned > 0 {
		s.bus.Publish(events.PointsEarned{
			CustomerID:    t.CustomerID,
			TransactionID: t.ID,
			Points:        t.PointsEarned,
			Balance:       balance,
			At:            t.CreatedAt,
		})
	}
	s.bus.Publish(events.TransactionCompleted{
		CustomerID:    t.CustomerID,
		TransactionID: t.ID,
		OrderNumber:   t.OrderNumber,
		FinalTotal:    t.FinalTotal,
		At:            t.CreatedAt,
	})

	return achievements
}

func rewardPointCost(rewards []pricing.AppliedReward) int64 {
	var sum int64
	for _, r := range rewards {
		sum += r.PointsCost
	}
	return sum
}

func tierRank(t customer.Tier) int {
	switch t {
	case customer.TierPlatinum:
		return 3
	case customer.TierGold:
		return 2
	case customer.TierSilver:
		return 1
	default:
		return 0
	}
}
