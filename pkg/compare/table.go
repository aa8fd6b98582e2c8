package compare

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/harun/shopagent/pkg/product"
)

const missing = "-"

// rowPriority orders the well-known rows; other keys follow alphabetically
var rowPriority = []string{"price", "brand", "color", "size", "material", "weight", "dimensions", "availability"}

// Table is a deterministic side-by-side comparison
type Table struct {
	ProductIDs []string   `json:"product_ids"`
	Headers    []string   `json:"headers"`
	Rows       [][]string `json:"rows"`
}

// BuildTable lays products out feature by feature. Price and brand are
// synthesized as attributes, availability is added when any product knows it.
func (r Rules) BuildTable(products []product.Product) Table {
	t := Table{Headers: []string{"Feature"}}
	columns := make([]map[string]string, len(products))

	keys := map[string]bool{}
	for i, p := range products {
		t.ProductIDs = append(t.ProductIDs, p.ID)
		t.Headers = append(t.Headers, truncate(p.Name, r.MaxHeaderLength))

		col := map[string]string{}
		for k, v := range p.Attributes {
			key := strings.ToLower(strings.TrimSpace(k))
			if key == "" {
				continue
			}
			if s := formatValue(v); s != "" {
				col[key] = s
			}
		}
		if p.Price != nil {
			col["price"] = formatPrice(*p.Price, p.Currency)
		}
		if p.Brand != "" {
			col["brand"] = p.Brand
		}
		if label := p.Availability.Label(); label != "" {
			col["availability"] = label
		}
		for k := range col {
			keys[k] = true
		}
		columns[i] = col
	}

	for _, key := range r.orderRows(keys) {
		row := []string{rowLabel(key)}
		for _, col := range columns {
			value, ok := col[key]
			if !ok {
				value = missing
			}
			row = append(row, value)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func (r Rules) orderRows(keys map[string]bool) []string {
	ordered := make([]string, 0, len(keys))
	for _, k := range rowPriority {
		if keys[k] {
			ordered = append(ordered, k)
		}
	}
	var rest []string
	for k := range keys {
		if !contains(rowPriority, k) {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	ordered = append(ordered, rest...)

	if r.MaxRows > 0 && len(ordered) > r.MaxRows {
		ordered = ordered[:r.MaxRows]
	}
	return ordered
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case bool:
		if val {
			return "Yes"
		}
		return "No"
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case []interface{}:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := formatValue(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	}
	return fmt.Sprint(v)
}

func formatPrice(price float64, currency string) string {
	s := strconv.FormatFloat(price, 'f', 2, 64)
	if currency == "" {
		return s
	}
	return s + " " + currency
}

func rowLabel(key string) string {
	runes := []rune(strings.ReplaceAll(key, "_", " "))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// truncate shortens s to max runes, ending with an ellipsis
func truncate(s string, max int) string {
	runes := []rune(strings.TrimSpace(s))
	if max <= 0 || len(runes) <= max {
		return string(runes)
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return strings.TrimSpace(string(runes[:max-3])) + "..."
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
