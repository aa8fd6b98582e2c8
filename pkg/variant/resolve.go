package variant

import (
	"strings"

	"github.com/harun/shopagent/pkg/lexicon"
	"github.com/harun/shopagent/pkg/session"
)

// maxOrdinalReplyWords bounds replies like "the second one please" that are read
// as a position.
const maxOrdinalReplyWords = 5

// Resolve maps a user reply onto a choice of set. Accepted forms are "2", "#2",
// "option 2", "2nd", ordinal words and the choice id or part number, matched
// case-insensitively.
func Resolve(text string, set *session.ChoiceSet) (session.Choice, bool) {
	if set == nil || len(set.Choices) == 0 {
		return session.Choice{}, false
	}
	norm := lexicon.Normalize(text)
	if norm == "" {
		return session.Choice{}, false
	}
	tokens := lexicon.Tokens(norm)

	if choice, ok := byIdentifier(norm, set.Choices); ok {
		return choice, true
	}

	if len(tokens) == 1 {
		if n, ok := lexicon.Ordinal(tokens[0], true); ok {
			return at(set.Choices, n)
		}
	}

	for i, tok := range tokens {
		if lexicon.OptionWords[tok] && i+1 < len(tokens) {
			if n, ok := lexicon.Ordinal(tokens[i+1], true); ok {
				return at(set.Choices, n)
			}
		}
	}

	if len(tokens) <= maxOrdinalReplyWords {
		found := 0
		var pos int
		for _, tok := range tokens {
			if n, ok := lexicon.Ordinal(tok, false); ok {
				found++
				pos = n
			}
		}
		if found == 1 {
			return at(set.Choices, pos)
		}
	}
	return session.Choice{}, false
}

func at(choices []session.Choice, n int) (session.Choice, bool) {
	if n == -1 {
		n = len(choices)
	}
	for _, c := range choices {
		if c.Index == n {
			return c, true
		}
	}
	return session.Choice{}, false
}

// byIdentifier matches a choice whose id or part number occurs in the reply.
// Ambiguous replies match nothing.
func byIdentifier(norm string, choices []session.Choice) (session.Choice, bool) {
	var match *session.Choice
	for i := range choices {
		c := &choices[i]
		if !mentions(norm, c.ID) && !mentions(norm, c.PartNo) && lexicon.Normalize(c.Label) != norm {
			continue
		}
		if match != nil && match.ID != c.ID {
			return session.Choice{}, false
		}
		match = c
	}
	if match == nil {
		return session.Choice{}, false
	}
	return *match, true
}

func mentions(norm, id string) bool {
	id = strings.ToLower(strings.TrimSpace(id))
	if len(id) < 2 {
		return false
	}
	return lexicon.ContainsWord(norm, id)
}
