package events

import (
	"context"

	"go.uber.org/zap"
)

// LogHandler returns a Handler that writes one structured line per event.
// It stands in for downstream consumers like notification senders.
func LogHandler(lg *zap.Logger) Handler {
	return func(_ context.Context, ev Event) error {
		switch e := ev.(type) {
		case PointsEarned:
			lg.Info("Points earned",
				zap.String("customer_id", e.CustomerID),
				zap.Int64("points", e.Points),
				zap.Int64("balance", e.Balance),
			)
		case PointsSpent:
			lg.Info("Points spent",
				zap.String("customer_id", e.CustomerID),
				zap.Int64("points", e.Points),
				zap.Int64("balance", e.Balance),
			)
		case TransactionCompleted:
			lg.Info("Transaction completed",
				zap.String("customer_id", e.CustomerID),
				zap.String("transaction_id", e.TransactionID),
				zap.String("order_number", e.OrderNumber),
				zap.String("final_total", e.FinalTotal.String()),
			)
		case MilestoneReached:
			lg.Info("Milestone reached",
				zap.String("customer_id", e.CustomerID),
				zap.String("kind", e.Kind),
				zap.Int64("threshold", e.Threshold),
			)
		case TierUpgraded:
			lg.Info("Tier upgraded",
				zap.String("customer_id", e.CustomerID),
				zap.String("from", e.From),
				zap.String("to", e.To),
			)
		default:
			lg.Info("Event", zap.String("event", ev.EventName()))
		}
		return nil
	}
}
