package confirmation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifiers(t *testing.T) {
	rules := DefaultRules()

	tests := []struct {
		text   string
		affirm bool
		reject bool
	}{
		{text: "yes", affirm: true},
		{text: "Yes!", affirm: true},
		{text: "yes please", affirm: true},
		{text: "ok, add it", affirm: true},
		{text: "go ahead", affirm: true},
		{text: "Ja", affirm: true},
		{text: "ja bitte", affirm: true},
		{text: "oui", affirm: true},
		{text: "d'accord", affirm: true},
		{text: "sí", affirm: true},
		{text: "vale", affirm: true},
		{text: "prima", affirm: true},
		{text: "no", reject: true},
		{text: "No thanks", reject: true},
		{text: "cancel that", reject: true},
		{text: "nein", reject: true},
		{text: "non merci", reject: true},
		{text: "cancelar", reject: true},
		{text: "nee", reject: true},
		{text: "do not add it", reject: true},
		{text: "show me red ones instead"},
		{text: "yes but in blue"},
		{text: "not sure yet"},
		{text: "   "},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.affirm, rules.IsAffirmation(tt.text), "affirmation")
			assert.Equal(t, tt.reject, rules.IsRejection(tt.text), "rejection")
		})
	}
}

func TestEvaluate_RoundTrip(t *testing.T) {
	rules := DefaultRules()
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	call := Call{
		ToolName:  "cart_add_item",
		Arguments: map[string]interface{}{"product_id": "V1", "quantity": float64(2)},
		ItemLabel: "Trail Runner",
	}

	first := rules.Evaluate(call, nil, "add the trail runner to my cart", "en-US", now)
	require.Equal(t, Ask, first.Action)
	require.NotNil(t, first.Pending)
	assert.Equal(t, "cart_add_item", first.Pending.ToolName)
	assert.Equal(t, Canonical(call.Arguments), first.Pending.CanonicalArgs)
	assert.Equal(t, now.UnixMilli(), first.Pending.CreatedAt)
	assert.Equal(t, "Add 2 × Trail Runner to your cart? Reply yes to confirm or no to cancel.", first.Pending.Prompt)

	assert.Equal(t, Confirmed, rules.Resolve(first.Pending, "yes"))
	assert.Equal(t, Rejected, rules.Resolve(first.Pending, "no"))
	assert.Equal(t, Superseded, rules.Resolve(first.Pending, "what colors are there?"))
	assert.Equal(t, NoPending, rules.Resolve(nil, "yes"))

	assert.Equal(t, Execute, rules.Evaluate(call, first.Pending, "yes", "en", now).Action)
	assert.Equal(t, Cancel, rules.Evaluate(call, first.Pending, "no", "en", now).Action)
}

func TestEvaluate_NeverExecutesWithoutMatchingPending(t *testing.T) {
	rules := DefaultRules()
	now := time.Now()
	call := Call{ToolName: "cart_add_item", Arguments: map[string]interface{}{"product_id": "V1"}}
	pending := rules.Evaluate(call, nil, "", "en", now).Pending

	tests := []struct {
		name    string
		call    Call
		pending bool
		text    string
	}{
		{name: "affirmation without pending", call: call, text: "yes"},
		{name: "different arguments", call: Call{ToolName: "cart_add_item", Arguments: map[string]interface{}{"product_id": "V2"}}, pending: true, text: "yes"},
		{name: "different tool", call: Call{ToolName: "cart_remove_item", Arguments: map[string]interface{}{"product_id": "V1"}}, pending: true, text: "yes"},
		{name: "matching pending but no affirmation", call: call, pending: true, text: "hmm, which one is cheaper?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := pending
			if !tt.pending {
				p = nil
			}
			d := rules.Evaluate(tt.call, p, tt.text, "en", now)
			assert.Equal(t, Ask, d.Action)
			require.NotNil(t, d.Pending)
			assert.Equal(t, tt.call.ToolName, d.Pending.ToolName)
		})
	}
}

func TestCanonical(t *testing.T) {
	a := Canonical(map[string]interface{}{"quantity": 1, "product_id": "v1"})
	b := Canonical(map[string]interface{}{"product_id": "v1", "quantity": 1})
	assert.Equal(t, a, b)
	assert.Equal(t, "{}", Canonical(nil))
}

func TestPrompt_Locales(t *testing.T) {
	rules := DefaultRules()
	call := Call{ToolName: "cart_remove_item", Arguments: map[string]interface{}{"line_id": "L7"}}

	assert.Equal(t, "Warenkorbposition L7 entfernen? Antworte mit Ja oder Nein.", rules.Prompt(call, "de-DE"))
	assert.Equal(t, "Retirer la ligne L7 du panier ? Répondez oui ou non.", rules.Prompt(call, "fr"))
	assert.Contains(t, rules.Prompt(call, "pt-BR"), "Remove cart line L7")
	assert.Contains(t, rules.Prompt(Call{ToolName: "cart_clear"}, "en"), "cart_clear")
}
