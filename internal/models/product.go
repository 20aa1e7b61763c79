package models

import "github.com/shopspring/decimal"

// Product is a catalog entry from products.json. A nil Stock means stock is not tracked.
type Product struct {
	ID         string           `json:"id"`
	Slug       string           `json:"slug"`
	Name       string           `json:"name"`
	Brand      string           `json:"brand"`
	PriceCents int64            `json:"price_cents"`
	Price      *decimal.Decimal `json:"price,omitempty"`
	Stock      *int             `json:"stock"`
	Category   string           `json:"category"`
	SkinTypes  []string         `json:"skin_types,omitempty"`
	Tags       []string         `json:"tags,omitempty"`
	Image      string           `json:"image,omitempty"`
}

func (p *Product) Tracked() bool {
	return p.Stock != nil
}

// Available reports whether qty units can be sold.
func (p *Product) Available(qty int) bool {
	return p.Stock == nil || *p.Stock >= qty
}
