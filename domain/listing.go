package domain

import "github.com/shopspring/decimal"

// Listing is a pharmacy's stock of one catalog entry.
type Listing struct {
	ID             int64           `db:"id" json:"id"`
	CatalogEntryID int64           `db:"catalog_entry_id" json:"catalog_entry_id"`
	PharmacyID     int64           `db:"pharmacy_id" json:"pharmacy_id"`
	Price          decimal.Decimal `db:"price" json:"price"`
	Amount         int64           `db:"amount" json:"amount"`
	Reserved       int64           `db:"reserved" json:"reserved"`
	CreatedAt      string          `db:"created_at" json:"created_at"`
	UpdatedAt      string          `db:"updated_at" json:"updated_at"`
}
