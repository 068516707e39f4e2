package api

import "github.com/shopspring/decimal"

// Item is a product record returned by get_items.
type Item struct {
	ID      string          `json:"id"`
	Brand   string          `json:"brand"`
	Product string          `json:"product"`
	Price   decimal.Decimal `json:"price"`
}
