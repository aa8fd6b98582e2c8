package query

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimplify_RunningShoesScenario(t *testing.T) {
	s := DefaultRules().Simplify("running shoes in size 42 brown")

	assert.Equal(t, "running shoes", s.Query)
	assert.Equal(t, []string{"running", "shoes"}, s.Tokens)
	assert.Equal(t, []string{"in", "size", "42", "brown"}, s.Dropped)
	assert.True(t, s.Changed())

	broad, ok := s.Broaden()
	require.True(t, ok)
	assert.Equal(t, "running", broad)
}

func TestSimplify(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		top   string
	}{
		{name: "capital bonus wins ties", input: "Nike waterproof hiking boots for women", want: "Nike waterproof hiking", top: "waterproof"},
		{name: "brand kept when it outscores", input: "Salomon trail runners 44.5 black", want: "Salomon trail runners", top: "Salomon"},
		{name: "ranges and units", input: "desk 120x60 oak 75cm", want: "desk oak", top: "desk"},
		{name: "german qualifiers", input: "Laufschuhe für Herren Größe 42 schwarz", want: "Laufschuhe", top: "Laufschuhe"},
		{name: "punctuation", input: "lamp, (bedside)!", want: "lamp bedside", top: "bedside"},
		{name: "duplicates collapse", input: "chair chair Chair", want: "chair", top: "chair"},
		{name: "nothing left", input: "cheap black size 42", want: ""},
		{name: "empty", input: "   ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultRules().Simplify(tt.input)
			assert.Equal(t, tt.want, s.Query)
			assert.Equal(t, tt.top, s.Top)
		})
	}
}

func TestSimplify_Bounds(t *testing.T) {
	inputs := []string{
		"extraordinarilylongcompoundproductname anotherverylongdescriptiveword yetanotherlongtokenhere short",
		"a b c d e f g h i j k l m n o p",
		"Bosch cordless drill 18V with two batteries and charger case",
		"supercalifragilisticexpialidociousproductnamethatkeepsgoingandgoing",
	}

	for _, input := range inputs {
		s := DefaultRules().Simplify(input)
		assert.LessOrEqual(t, len(s.Tokens), 3, input)
		assert.LessOrEqual(t, len([]rune(s.Query)), 50, input)

		inputTokens := strings.Fields(input)
		for _, tok := range s.Tokens {
			assert.Contains(t, inputTokens, tok, input)
		}
	}
}

func TestBroaden_SingleToken(t *testing.T) {
	s := DefaultRules().Simplify("umbrella")
	_, ok := s.Broaden()
	assert.False(t, ok)
}

func TestRefinements(t *testing.T) {
	s := DefaultRules().Simplify("running shoes in size 42 brown")
	actions := Refinements(s, []string{"running shoes", "running"})

	require.Len(t, actions, 4)
	assert.Equal(t, ActionBroaden, actions[0].Type)
	assert.Equal(t, "shoes", actions[0].Payload["query"])
	assert.Equal(t, ActionRetryOriginal, actions[1].Type)
	assert.Equal(t, "running shoes in size 42 brown", actions[1].Payload["query"])
	assert.Equal(t, ActionRemoveConstraints, actions[2].Type)
	assert.Equal(t, []string{"in", "size", "42", "brown"}, actions[2].Payload["removed_constraints"])
	assert.Equal(t, ActionAskClarify, actions[3].Type)
}

func TestRefinements_NothingLeftToTry(t *testing.T) {
	s := DefaultRules().Simplify("umbrella")
	actions := Refinements(s, []string{"umbrella"})

	require.Len(t, actions, 1)
	assert.Equal(t, ActionAskClarify, actions[0].Type)
}
