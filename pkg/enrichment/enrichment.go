package enrichment

import (
	"context"

	"github.com/harun/shopagent/pkg/lexicon"
	"github.com/harun/shopagent/pkg/product"
	"github.com/harun/shopagent/pkg/session"
	"golang.org/x/sync/errgroup"
)

const (
	// MaxIDs bounds the products fetched per search
	MaxIDs = 3
	// DefaultConcurrency bounds detail fetches in flight
	DefaultConcurrency = 3
)

// Rules holds the keywords that make detail worth fetching up front
type Rules struct {
	Dimension    []string
	Availability []string
	Purchase     []string
}

// DefaultRules returns the en/de/fr/es/nl keyword lists
func DefaultRules() Rules {
	return Rules{
		Dimension: []string{
			"size", "sizes", "color", "colour", "colors", "colours", "variant", "variants", "dimensions", "width", "length", "fit",
			"größe", "grösse", "größen", "farbe", "farben", "variante", "varianten", "maße", "breite", "länge",
			"taille", "tailles", "couleur", "couleurs", "pointure", "dimensions", "largeur", "longueur",
			"talla", "tallas", "color", "colores", "medidas", "ancho", "largo",
			"maat", "maten", "kleur", "kleuren", "afmetingen", "breedte", "lengte",
		},
		Availability: []string{
			"available", "availability", "in stock", "stock", "deliver", "delivery", "ship", "when",
			"verfügbar", "verfügbarkeit", "lager", "auf lager", "lieferbar", "lieferung",
			"disponible", "disponibilité", "en stock", "livraison",
			"disponibilidad", "existencias", "envío",
			"beschikbaar", "beschikbaarheid", "op voorraad", "voorraad", "levering",
		},
		Purchase: []string{
			"buy", "order", "purchase", "add to cart", "cart", "basket", "checkout",
			"kaufen", "bestellen", "warenkorb",
			"acheter", "commander", "panier",
			"comprar", "pedir", "carrito",
			"kopen", "bestellen", "winkelwagen",
		},
	}
}

// ShouldEnrich reports whether search hits should be followed by detail fetches:
// the message asks about variants, stock or buying, or no hit carries any stock
// signal at all.
func (r Rules) ShouldEnrich(text string, hits []session.SearchHit) bool {
	if len(hits) == 0 {
		return false
	}
	norm := lexicon.Normalize(text)
	for _, list := range [][]string{r.Dimension, r.Availability, r.Purchase} {
		for _, kw := range list {
			if lexicon.ContainsWord(norm, kw) {
				return true
			}
		}
	}
	for _, h := range hits {
		if h.HasAvailability() {
			return false
		}
	}
	return true
}

// PickIDs chooses up to MaxIDs hits to fetch, those without availability first.
// Products already cached in mem are skipped.
func PickIDs(hits []session.SearchHit, mem session.WorkingMemory) []string {
	var lacking, rest []string
	for _, h := range hits {
		if h.ProductID == "" {
			continue
		}
		if _, cached := mem.Details[h.ProductID]; cached {
			continue
		}
		if h.HasAvailability() {
			rest = append(rest, h.ProductID)
		} else {
			lacking = append(lacking, h.ProductID)
		}
	}
	ids := append(lacking, rest...)
	if len(ids) > MaxIDs {
		ids = ids[:MaxIDs]
	}
	return ids
}

// FetchFunc loads detail for one product id
type FetchFunc func(ctx context.Context, id string) (*product.Product, error)

// Fetch loads ids with at most limit calls in flight. Failed or empty fetches are
// skipped; the rest come back in ids order.
func Fetch(ctx context.Context, ids []string, limit int, fetch FetchFunc) []product.Product {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	results := make([]*product.Product, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, id := range ids {
		g.Go(func() error {
			p, err := fetch(gctx, id)
			if err == nil && p != nil {
				results[i] = p
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]product.Product, 0, len(ids))
	for _, p := range results {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out
}
