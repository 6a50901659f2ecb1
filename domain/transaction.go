package domain

import "github.com/shopspring/decimal"

// TransactionLine is one ledger entry written by a sale or an order.
// Lines are never updated after insert.
type TransactionLine struct {
	ID        int64           `db:"id" json:"id"`
	Receipt   string          `db:"receipt" json:"receipt"`
	ListingID int64           `db:"listing_id" json:"listing_id"`
	Quantity  int64           `db:"quantity" json:"quantity"`
	Price     decimal.Decimal `db:"price" json:"price"`
	ActorID   int64           `db:"actor_id" json:"actor_id"`
	Fulfilled *bool           `db:"fulfilled" json:"fulfilled,omitempty"`
	CreatedAt string          `db:"created_at" json:"created_at"`
}
