package commerce

import (
	"strings"
	"time"

	"github.com/harun/shopagent/pkg/product"
	"github.com/harun/shopagent/pkg/session"
	"github.com/tidwall/gjson"
)

// Field priority lists. The first path that exists wins.
var (
	productRoots   = []string{"product", "data.product", "data", "result"}
	searchRoots    = []string{"products", "items", "results", "data.products", "data.items", "data.results", "data"}
	idPaths        = []string{"id", "productId", "product_id", "sku"}
	partNoPaths    = []string{"partNo", "part_no", "partNumber", "part_number", "sku"}
	namePaths      = []string{"name", "title", "displayName", "display_name"}
	brandPaths     = []string{"brand.name", "brand", "manufacturer"}
	pricePaths     = []string{"price.amount", "price.value", "price.net", "price", "salePrice", "sale_price"}
	currencyPaths  = []string{"price.currency", "currency", "price.currencyCode"}
	buyablePaths   = []string{"buyable", "isBuyable", "is_buyable", "purchasable"}
	inStockPaths   = []string{"availability.inStock", "availability.in_stock", "inStock", "in_stock", "stock.inStock"}
	quantityPaths  = []string{"availability.quantity", "availability.stock", "stock.quantity", "stockQuantity", "stock_quantity", "quantity"}
	restockPaths   = []string{"availability.restockDate", "availability.restock_date", "restockDate", "restock_date"}
	attributePaths = []string{"attributes", "properties", "specs", "specifications"}
	variantPaths   = []string{"variants", "skus", "children"}
	colorKeys      = []string{"color", "colour", "Color", "Colour"}
)

// DecodeProduct decodes product detail from a backend payload. ok is false when
// the payload has no recognizable product.
func DecodeProduct(payload string) (product.Product, bool) {
	if !gjson.Valid(payload) {
		return product.Product{}, false
	}
	root := gjson.Parse(payload)
	for _, path := range productRoots {
		if node := root.Get(path); node.IsObject() {
			if p, ok := decodeProduct(node); ok {
				return p, true
			}
		}
	}
	return decodeProduct(root)
}

// DecodeSearch decodes search results into products, skipping entries without an id
func DecodeSearch(payload string) ([]product.Product, bool) {
	if !gjson.Valid(payload) {
		return nil, false
	}
	root := gjson.Parse(payload)

	list := root
	if !root.IsArray() {
		list = gjson.Result{}
		for _, path := range searchRoots {
			if node := root.Get(path); node.IsArray() {
				list = node
				break
			}
		}
	}
	if !list.IsArray() {
		return nil, false
	}

	products := make([]product.Product, 0, len(list.Array()))
	for _, item := range list.Array() {
		if p, ok := decodeProduct(item); ok {
			products = append(products, p)
		}
	}
	return products, true
}

func decodeProduct(node gjson.Result) (product.Product, bool) {
	if !node.IsObject() {
		return product.Product{}, false
	}
	id := first(node, idPaths).String()
	if id == "" {
		return product.Product{}, false
	}

	p := product.Product{
		ID:           id,
		PartNo:       first(node, partNoPaths).String(),
		Name:         first(node, namePaths).String(),
		Brand:        scalarString(first(node, brandPaths)),
		Currency:     first(node, currencyPaths).String(),
		Buyable:      boolOr(first(node, buyablePaths), true),
		Availability: decodeAvailability(node),
		Attributes:   decodeAttributes(node),
	}
	if price := first(node, pricePaths); price.Type == gjson.Number {
		v := price.Float()
		p.Price = &v
	}

	if variants := first(node, variantPaths); variants.IsArray() {
		for _, item := range variants.Array() {
			if v, ok := decodeVariant(item); ok {
				p.Variants = append(p.Variants, v)
			}
		}
	}
	return p, true
}

func decodeVariant(node gjson.Result) (product.Variant, bool) {
	if !node.IsObject() {
		return product.Variant{}, false
	}
	id := first(node, idPaths).String()
	if id == "" {
		return product.Variant{}, false
	}
	return product.Variant{
		ID:           id,
		PartNo:       first(node, partNoPaths).String(),
		Name:         first(node, namePaths).String(),
		Buyable:      boolOr(first(node, buyablePaths), true),
		Availability: decodeAvailability(node),
		Attributes:   decodeAttributes(node),
	}, true
}

func decodeAvailability(node gjson.Result) product.Availability {
	var a product.Availability

	if avail := node.Get("availability"); avail.Type == gjson.String {
		a.Known = true
		switch strings.ToLower(avail.String()) {
		case "in_stock", "instock", "in stock", "available":
			a.InStock = true
		}
	}
	if inStock := first(node, inStockPaths); inStock.Exists() {
		a.Known = true
		a.InStock = inStock.Bool()
	}
	if qty := first(node, quantityPaths); qty.Type == gjson.Number {
		a.Known = true
		a.Quantity = int(qty.Int())
		if !first(node, inStockPaths).Exists() {
			a.InStock = a.Quantity > 0
		}
	}
	if restock := first(node, restockPaths); restock.Exists() {
		if t, ok := parseDate(restock.String()); ok {
			a.Known = true
			a.RestockDate = t
		}
	}
	return a
}

// decodeAttributes accepts an object or a list of {name, value} pairs
func decodeAttributes(node gjson.Result) map[string]interface{} {
	attrs := first(node, attributePaths)
	out := map[string]interface{}{}

	switch {
	case attrs.IsObject():
		attrs.ForEach(func(key, value gjson.Result) bool {
			out[key.String()] = value.Value()
			return true
		})
	case attrs.IsArray():
		for _, item := range attrs.Array() {
			name := first(item, []string{"name", "key", "label"}).String()
			if name == "" {
				continue
			}
			out[name] = first(item, []string{"value", "values"}).Value()
		}
	}

	for _, key := range colorKeys {
		if _, ok := out["color"]; ok {
			break
		}
		if v := node.Get(key); v.Type == gjson.String {
			out["color"] = v.String()
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// SearchHit compacts a decoded product for working memory
func SearchHit(p product.Product) session.SearchHit {
	hit := session.SearchHit{
		ProductID: p.ID,
		PartNo:    p.PartNo,
		Name:      p.Name,
		Brand:     p.Brand,
		Price:     p.Price,
		Currency:  p.Currency,
	}
	for _, key := range colorKeys {
		if v, ok := p.Attributes[key].(string); ok {
			hit.Color = v
			break
		}
	}

	if len(p.Variants) > 0 {
		buyable, inStock := 0, 0
		for _, v := range p.Variants {
			if v.Buyable {
				buyable++
			}
			if v.Availability.InStock {
				inStock++
			}
		}
		hit.BuyableVariants = &buyable
		hit.InStockVariants = &inStock
	} else if p.Availability.Known {
		inStock := 0
		if p.Availability.InStock {
			inStock = 1
		}
		hit.InStockVariants = &inStock
	}
	return hit
}

func first(node gjson.Result, paths []string) gjson.Result {
	for _, path := range paths {
		if v := node.Get(path); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

func scalarString(v gjson.Result) string {
	if v.IsObject() || v.IsArray() {
		return ""
	}
	return v.String()
}

func boolOr(v gjson.Result, fallback bool) bool {
	if !v.Exists() {
		return fallback
	}
	return v.Bool()
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
