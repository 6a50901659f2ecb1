package domain

import "github.com/shopspring/decimal"

type Category struct {
	ID          int64   `db:"id" json:"id"`
	Name        string  `db:"name" json:"name"`
	Description string  `db:"description" json:"description"`
	Image       *string `db:"image" json:"image,omitempty"`
}

// CatalogEntry is the canonical drug record shared by every pharmacy.
type CatalogEntry struct {
	ID             int64           `db:"id" json:"id"`
	Name           string          `db:"name" json:"name"`
	Description    string          `db:"description" json:"description"`
	ReferencePrice decimal.Decimal `db:"reference_price" json:"reference_price"`
	CategoryID     *int64          `db:"category_id" json:"category_id,omitempty"`
	Image          *string         `db:"image" json:"image,omitempty"`
}
