package commerce

import (
	"testing"
	"time"

	"github.com/harun/shopagent/pkg/product"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeProduct(t *testing.T) {
	payload := `{
		"product": {
			"productId": "P-100",
			"partNumber": "RS-42",
			"title": "Trail Runner",
			"brand": {"name": "Acme"},
			"price": {"amount": 89.5, "currency": "EUR"},
			"attributes": [{"name": "material", "value": "mesh"}],
			"color": "brown",
			"variants": [
				{"id": "V-1", "partNo": "RS-42-41", "buyable": true, "availability": {"inStock": true, "quantity": 3}},
				{"id": "V-2", "partNo": "RS-42-42", "buyable": true, "stock": {"quantity": 0}, "restockDate": "2026-11-02"},
				{"name": "no id"}
			]
		}
	}`

	p, ok := DecodeProduct(payload)
	require.True(t, ok)
	assert.Equal(t, "P-100", p.ID)
	assert.Equal(t, "RS-42", p.PartNo)
	assert.Equal(t, "Trail Runner", p.Name)
	assert.Equal(t, "Acme", p.Brand)
	require.NotNil(t, p.Price)
	assert.InDelta(t, 89.5, *p.Price, 0.001)
	assert.Equal(t, "EUR", p.Currency)
	assert.True(t, p.Buyable)
	assert.Equal(t, "mesh", p.Attributes["material"])
	assert.Equal(t, "brown", p.Attributes["color"])

	require.Len(t, p.Variants, 2)
	assert.True(t, p.Variants[0].Availability.InStock)
	assert.Equal(t, 3, p.Variants[0].Availability.Quantity)
	assert.False(t, p.Variants[1].Availability.InStock)
	assert.True(t, p.Variants[1].Availability.Known)
	assert.Equal(t, time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC), p.Variants[1].Availability.RestockDate)
}

func TestDecodeProduct_Shapes(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantID  string
		wantOK  bool
	}{
		{name: "bare object", payload: `{"id":"A","name":"Chair","price":10}`, wantID: "A", wantOK: true},
		{name: "data wrapper", payload: `{"data":{"sku":"B","title":"Desk"}}`, wantID: "B", wantOK: true},
		{name: "no id", payload: `{"name":"nameless"}`},
		{name: "not json", payload: `product not found`},
		{name: "array", payload: `[{"id":"A"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := DecodeProduct(tt.payload)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, p.ID)
		})
	}
}

func TestDecodeProduct_StringAvailability(t *testing.T) {
	p, ok := DecodeProduct(`{"id":"A","availability":"in_stock","buyable":false}`)
	require.True(t, ok)
	assert.True(t, p.Availability.Known)
	assert.True(t, p.Availability.InStock)
	assert.False(t, p.Buyable)
}

func TestDecodeSearch(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantIDs []string
		wantOK  bool
	}{
		{name: "products key", payload: `{"products":[{"id":"A"},{"id":"B"}]}`, wantIDs: []string{"A", "B"}, wantOK: true},
		{name: "nested items", payload: `{"data":{"items":[{"productId":"C"},{"title":"skipped"}]}}`, wantIDs: []string{"C"}, wantOK: true},
		{name: "top level array", payload: `[{"id":"D"}]`, wantIDs: []string{"D"}, wantOK: true},
		{name: "empty", payload: `{"products":[]}`, wantIDs: []string{}, wantOK: true},
		{name: "unrecognized", payload: `{"message":"hello"}`},
		{name: "not json", payload: `oops`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			products, ok := DecodeSearch(tt.payload)
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				return
			}
			ids := make([]string, 0, len(products))
			for _, p := range products {
				ids = append(ids, p.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestSearchHit(t *testing.T) {
	p, ok := DecodeProduct(`{"id":"A","partNo":"PA","name":"Shoe","brand":"Acme","color":"brown","price":20,
		"variants":[{"id":"v1","buyable":true,"inStock":true},{"id":"v2","buyable":false,"inStock":false}]}`)
	require.True(t, ok)

	hit := SearchHit(p)
	assert.Equal(t, "A", hit.ProductID)
	assert.Equal(t, "brown", hit.Color)
	require.NotNil(t, hit.BuyableVariants)
	assert.Equal(t, 1, *hit.BuyableVariants)
	require.NotNil(t, hit.InStockVariants)
	assert.Equal(t, 1, *hit.InStockVariants)
	assert.True(t, hit.HasAvailability())

	bare := SearchHit(mustDecode(t, `{"id":"B","name":"Lamp"}`))
	assert.False(t, bare.HasAvailability())
}

func mustDecode(t *testing.T, payload string) product.Product {
	t.Helper()
	p, ok := DecodeProduct(payload)
	require.True(t, ok)
	return p
}
