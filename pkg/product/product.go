// Package product holds the catalog shapes shared by the guardrails: decoded
// product detail, its variants and their availability.
package product

import (
	"strconv"
	"strings"
	"time"
)

// Availability describes stock for a product or variant. Known is false when the
// backend reported nothing at all.
type Availability struct {
	Known       bool      `json:"known"`
	InStock     bool      `json:"in_stock"`
	Quantity    int       `json:"quantity,omitempty"`
	RestockDate time.Time `json:"restock_date,omitempty"`
}

// Label renders availability for choice labels and compare tables
func (a Availability) Label() string {
	switch {
	case !a.Known:
		return ""
	case a.InStock && a.Quantity > 0:
		return "in stock (" + strconv.Itoa(a.Quantity) + ")"
	case a.InStock:
		return "in stock"
	case !a.RestockDate.IsZero():
		return "back " + a.RestockDate.Format("2006-01-02")
	}
	return "out of stock"
}

// Variant is one purchasable configuration of a product
type Variant struct {
	ID           string                 `json:"id"`
	PartNo       string                 `json:"part_no,omitempty"`
	Name         string                 `json:"name,omitempty"`
	Buyable      bool                   `json:"buyable"`
	Availability Availability           `json:"availability"`
	Attributes   map[string]interface{} `json:"attributes,omitempty"`
}

// Product is decoded product detail
type Product struct {
	ID           string                 `json:"id"`
	PartNo       string                 `json:"part_no,omitempty"`
	Name         string                 `json:"name"`
	Brand        string                 `json:"brand,omitempty"`
	Price        *float64               `json:"price,omitempty"`
	Currency     string                 `json:"currency,omitempty"`
	Buyable      bool                   `json:"buyable"`
	Availability Availability           `json:"availability"`
	Attributes   map[string]interface{} `json:"attributes,omitempty"`
	Variants     []Variant              `json:"variants,omitempty"`
}

// Matches reports whether id names the product itself or one of its variants.
// Identifiers compare case-insensitively against ids and part numbers.
func (p Product) Matches(id string) bool {
	if id == "" {
		return false
	}
	if equalFold(p.ID, id) || equalFold(p.PartNo, id) {
		return true
	}
	_, ok := p.Variant(id)
	return ok
}

// Variant finds a variant by id or part number
func (p Product) Variant(id string) (Variant, bool) {
	for _, v := range p.Variants {
		if equalFold(v.ID, id) || equalFold(v.PartNo, id) {
			return v, true
		}
	}
	return Variant{}, false
}

// BuyableVariants returns the variants flagged buyable, in catalog order
func (p Product) BuyableVariants() []Variant {
	var out []Variant
	for _, v := range p.Variants {
		if v.Buyable {
			out = append(out, v)
		}
	}
	return out
}

func equalFold(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}
