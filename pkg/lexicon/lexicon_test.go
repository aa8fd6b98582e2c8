package lexicon

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrdinal(t *testing.T) {
	tests := []struct {
		token     string
		allowBare bool
		want      int
		wantOK    bool
	}{
		{token: "#2", want: 2, wantOK: true},
		{token: "2nd", want: 2, wantOK: true},
		{token: "3rd,", want: 3, wantOK: true},
		{token: "Second", want: 2, wantOK: true},
		{token: "zweite", want: 2, wantOK: true},
		{token: "troisième", want: 3, wantOK: true},
		{token: "1er", want: 1, wantOK: true},
		{token: "tweede", want: 2, wantOK: true},
		{token: "last", want: -1, wantOK: true},
		{token: "2"},
		{token: "2", allowBare: true, want: 2, wantOK: true},
		{token: "0", allowBare: true},
		{token: "#0"},
		{token: "shoes"},
		{token: ""},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, ok := Ordinal(tt.token, tt.allowBare)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTokensAndNormalize(t *testing.T) {
	assert.Equal(t, []string{"Running", "shoes", "#2"}, Tokens(" Running, shoes! #2 "))
	assert.Equal(t, "yes, please", Normalize("  Yes,   please! "))
}

func TestContainsWord(t *testing.T) {
	assert.True(t, ContainsWord("please compare them", "compare"))
	assert.True(t, ContainsWord("which is better", "which is better"))
	assert.False(t, ContainsWord("comparewise", "compare"))
	assert.False(t, ContainsWord("anything", ""))
}
