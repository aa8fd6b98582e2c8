package product

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProduct_Matches(t *testing.T) {
	p := Product{
		ID:     "P-1",
		PartNo: "SHOE-1",
		Variants: []Variant{
			{ID: "P-1-42", PartNo: "SHOE-1-42"},
			{ID: "P-1-43"},
		},
	}

	tests := []struct {
		id   string
		want bool
	}{
		{"P-1", true},
		{"p-1", true},
		{"shoe-1", true},
		{"P-1-42", true},
		{"SHOE-1-42", true},
		{"P-2", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Matches(tt.id))
		})
	}
}

func TestProduct_BuyableVariants(t *testing.T) {
	p := Product{Variants: []Variant{{ID: "a", Buyable: true}, {ID: "b"}, {ID: "c", Buyable: true}}}
	got := p.BuyableVariants()
	assert.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
}

func TestAvailability_Label(t *testing.T) {
	restock := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "", Availability{}.Label())
	assert.Equal(t, "in stock (4)", Availability{Known: true, InStock: true, Quantity: 4}.Label())
	assert.Equal(t, "in stock", Availability{Known: true, InStock: true}.Label())
	assert.Equal(t, "back 2026-03-01", Availability{Known: true, RestockDate: restock}.Label())
	assert.Equal(t, "out of stock", Availability{Known: true}.Label())
}
