// Package points models the append-only point ledger. Entries are never
// edited or deleted; corrections are new entries. The sum of all amounts for
// a customer must always equal the customer's current balance, and every
// entry snapshots the running balance it produced.
package points

import (
	"context"
	"time"
)

// EntryType classifies a ledger entry.
type EntryType string

const (
	// Earned points are credited after a committed transaction.
	Earned EntryType = "EARNED"
	// Spent points are debited when redeemed against an order.
	Spent EntryType = "SPENT"
	// Expired points are debited by the expiry sweep.
	Expired EntryType = "EXPIRED"
)

// LedgerEntry is one immutable balance change.
type LedgerEntry struct {
	ID         int64
	CustomerID string
	// Amount is signed: positive for EARNED, negative for SPENT/EXPIRED.
	Amount int64
	Type   EntryType
	// Source references the transaction or process that produced the entry.
	Source string
	// Balance is the customer's balance immediately after this entry.
	Balance   int64
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// Repository provides read access to the ledger. Appending happens only
// inside the commit transaction (see the order package).
type Repository interface {
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]LedgerEntry, error)
}
