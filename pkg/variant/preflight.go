package variant

import (
	"sort"
	"strings"

	"github.com/harun/shopagent/pkg/product"
	"github.com/harun/shopagent/pkg/session"
)

// Outcome is the preflight decision for a cart target
type Outcome string

const (
	NeedsFetch   Outcome = "needs_fetch"
	Proceed      Outcome = "proceed"
	Disambiguate Outcome = "disambiguate"
	NotBuyable   Outcome = "not_buyable"
)

// Reasons reported with NotBuyable
const (
	ReasonNoBuyableVariant  = "no_buyable_variant"
	ReasonMissingPartNumber = "missing_part_number"
	ReasonProductNotBuyable = "product_not_buyable"
)

// Decision is the result of Preflight. ID is the id to send to the cart, which
// differs from the requested id when Rewritten is set.
type Decision struct {
	Outcome   Outcome          `json:"outcome"`
	ID        string           `json:"id,omitempty"`
	Rewritten bool             `json:"rewritten,omitempty"`
	Reason    string           `json:"reason,omitempty"`
	Choices   []session.Choice `json:"choices,omitempty"`
}

// Preflight decides whether id can go to the cart as-is, given the cached detail
// of the product it belongs to. detail is nil when nothing is cached.
func Preflight(id string, detail *product.Product) Decision {
	if detail == nil {
		return Decision{Outcome: NeedsFetch, ID: id}
	}
	p := *detail

	if v, ok := p.Variant(id); ok && v.Buyable && v.PartNo != "" {
		return Decision{Outcome: Proceed, ID: v.ID, Rewritten: v.ID != id}
	}

	if len(p.Variants) == 0 {
		if !p.Buyable {
			return Decision{Outcome: NotBuyable, ID: id, Reason: ReasonProductNotBuyable}
		}
		return Decision{Outcome: Proceed, ID: p.ID, Rewritten: p.ID != id}
	}

	buyable := p.BuyableVariants()
	if len(buyable) == 0 {
		return Decision{Outcome: NotBuyable, ID: id, Reason: ReasonNoBuyableVariant}
	}

	eligible := make([]product.Variant, 0, len(buyable))
	for _, v := range buyable {
		if v.PartNo != "" {
			eligible = append(eligible, v)
		}
	}
	switch len(eligible) {
	case 0:
		return Decision{Outcome: NotBuyable, ID: id, Reason: ReasonMissingPartNumber}
	case 1:
		return Decision{Outcome: Proceed, ID: eligible[0].ID, Rewritten: eligible[0].ID != id}
	}

	return Decision{Outcome: Disambiguate, ID: id, Choices: Choices(p, eligible)}
}

// Choices ranks variants and numbers them from 1, capped at session.MaxChoices.
// Order: buyable, in stock, highest stock, earliest restock.
func Choices(p product.Product, variants []product.Variant) []session.Choice {
	ranked := append([]product.Variant(nil), variants...)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Buyable != b.Buyable {
			return a.Buyable
		}
		if a.Availability.InStock != b.Availability.InStock {
			return a.Availability.InStock
		}
		if a.Availability.Quantity != b.Availability.Quantity {
			return a.Availability.Quantity > b.Availability.Quantity
		}
		ra, rb := a.Availability.RestockDate, b.Availability.RestockDate
		if ra.IsZero() != rb.IsZero() {
			return !ra.IsZero()
		}
		return ra.Before(rb)
	})
	if len(ranked) > session.MaxChoices {
		ranked = ranked[:session.MaxChoices]
	}

	choices := make([]session.Choice, 0, len(ranked))
	for i, v := range ranked {
		avail := v.Availability
		choice := session.Choice{
			Index:  i + 1,
			Label:  label(p, v),
			ID:     v.ID,
			PartNo: v.PartNo,
		}
		if avail.Known {
			choice.Availability = &avail
		}
		choices = append(choices, choice)
	}
	return choices
}

// label describes a variant by its name or distinguishing attributes
func label(p product.Product, v product.Variant) string {
	var parts []string
	if v.Name != "" && v.Name != p.Name {
		parts = append(parts, v.Name)
	} else if attrs := attributeSummary(v.Attributes); attrs != "" {
		parts = append(parts, attrs)
	} else {
		parts = append(parts, p.Name)
	}
	parts = append(parts, v.PartNo)
	if status := v.Availability.Label(); status != "" {
		parts = append(parts, status)
	}
	return strings.Join(parts, " | ")
}

func attributeSummary(attrs map[string]interface{}) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		if s, ok := attrs[k].(string); ok && s != "" {
			parts = append(parts, k+": "+s)
		}
		if len(parts) == 2 {
			break
		}
	}
	return strings.Join(parts, ", ")
}
