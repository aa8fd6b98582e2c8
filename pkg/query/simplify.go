package query

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/harun/shopagent/pkg/lexicon"
)

// Simplified is the outcome of simplifying a search query
type Simplified struct {
	Original string `json:"original"`
	// Query is empty when nothing in the original carried search intent.
	Query string `json:"query"`
	// Tokens are the kept tokens in input order.
	Tokens []string `json:"tokens"`
	// Top is the highest scoring kept token, used for the broadened retry.
	Top string `json:"top,omitempty"`
	// Dropped are the tokens removed as qualifiers.
	Dropped []string `json:"dropped,omitempty"`
}

// Changed reports whether the simplified query differs from the original text
func (s Simplified) Changed() bool {
	return s.Query != "" && s.Query != strings.TrimSpace(s.Original)
}

type scoredToken struct {
	text  string
	pos   int
	score int
}

// Simplify reduces a search text to at most MaxTokens content tokens no longer
// than MaxLength characters. Kept tokens appear in input order and are never cut.
func (r Rules) Simplify(text string) Simplified {
	out := Simplified{Original: text}

	var candidates []scoredToken
	seen := map[string]bool{}
	for i, tok := range lexicon.Tokens(text) {
		lower := strings.ToLower(tok)
		score := r.score(tok, lower)
		if score == 0 {
			out.Dropped = append(out.Dropped, tok)
			continue
		}
		if seen[lower] {
			continue
		}
		seen[lower] = true
		candidates = append(candidates, scoredToken{text: tok, pos: i, score: score})
	}

	ranked := append([]scoredToken(nil), candidates...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > r.MaxTokens {
		ranked = ranked[:r.MaxTokens]
	}
	if len(ranked) == 0 {
		return out
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].pos < ranked[j].pos })

	length := 0
	for _, tok := range ranked {
		n := utf8.RuneCountInString(tok.text)
		if length > 0 {
			n++
		}
		if length+n > r.MaxLength {
			continue
		}
		length += n
		out.Tokens = append(out.Tokens, tok.text)
	}
	out.Query = strings.Join(out.Tokens, " ")

	bestScore := 0
	for _, tok := range candidates {
		if tok.score > bestScore && contains(out.Tokens, tok.text) {
			bestScore = tok.score
			out.Top = tok.text
		}
	}
	return out
}

// Broaden returns the single-token retry query, or false when it would repeat
// the simplified query.
func (s Simplified) Broaden() (string, bool) {
	if s.Top == "" || strings.EqualFold(s.Top, s.Query) {
		return "", false
	}
	return s.Top, true
}

func (r Rules) score(token, lower string) int {
	if _, drop := r.DropWords[lower]; drop {
		return 0
	}
	for _, p := range r.DropPatterns {
		if p.MatchString(token) {
			return 0
		}
	}
	if _, isOrdinal := lexicon.Ordinal(lower, false); isOrdinal {
		return 0
	}

	score := utf8.RuneCountInString(token)
	if first, _ := utf8.DecodeRuneInString(token); unicode.IsUpper(first) {
		score += r.CapitalBonus
	}
	return score
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
