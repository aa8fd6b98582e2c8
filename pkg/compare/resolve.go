package compare

import (
	"fmt"
	"strings"

	"github.com/harun/shopagent/pkg/lexicon"
	"github.com/harun/shopagent/pkg/session"
)

// Method tells how a candidate was resolved
type Method string

const (
	MethodOrdinal   Method = "ordinal"
	MethodID        Method = "id"
	MethodPartNo    Method = "part_no"
	MethodShortlist Method = "shortlist"
)

// Result is the resolved comparison. ProductIDs is empty or holds 2 to
// MaxCandidates ids.
type Result struct {
	ProductIDs []string          `json:"product_ids"`
	Methods    map[string]Method `json:"methods"`
}

// Empty reports whether no comparison was resolved
func (r Result) Empty() bool {
	return len(r.ProductIDs) == 0
}

type candidate struct {
	id     string
	method Method
}

// DetectIntent reports whether text asks to compare products
func (r Rules) DetectIntent(text string, mem session.WorkingMemory) bool {
	norm := lexicon.Normalize(text)
	if norm == "" {
		return false
	}
	if r.hasCompareWord(norm) {
		return true
	}
	if len(ordinalRefs(norm, false)) >= 2 && r.hasConnector(norm) {
		return true
	}
	if containsAny(norm, r.Phrases) && containsAny(norm, r.GroupPronouns) {
		return true
	}
	return len(identifierRefs(norm, mem)) >= 2
}

// SelectCandidates resolves the products text refers to. Ordinals index into
// LastResults, then explicit ids and part numbers, then the shortlist. A single
// candidate resolves to nothing.
func (r Rules) SelectCandidates(text string, mem session.WorkingMemory) Result {
	norm := lexicon.Normalize(text)
	var found []candidate

	allowBare := r.hasCompareWord(norm)
	for _, n := range ordinalRefs(norm, allowBare) {
		if n == -1 {
			n = len(mem.LastResults)
		}
		if n >= 1 && n <= len(mem.LastResults) {
			found = append(found, candidate{id: mem.LastResults[n-1].ProductID, method: MethodOrdinal})
		}
	}

	found = append(found, identifierRefs(norm, mem)...)

	if containsAny(norm, r.ShortlistWords) {
		source := mem.Shortlist
		if len(source) < 2 && len(mem.LastResults) >= 2 && len(mem.LastResults) <= r.MaxCandidates {
			source = mem.LastResults
		}
		for _, hit := range source {
			found = append(found, candidate{id: hit.ProductID, method: MethodShortlist})
		}
	}

	result := Result{Methods: map[string]Method{}}
	for _, c := range found {
		if c.id == "" {
			continue
		}
		if _, dup := result.Methods[c.id]; dup {
			continue
		}
		if len(result.ProductIDs) == r.MaxCandidates {
			break
		}
		result.ProductIDs = append(result.ProductIDs, c.id)
		result.Methods[c.id] = c.method
	}

	if len(result.ProductIDs) < 2 {
		return Result{}
	}
	return result
}

// Hint summarizes a resolution for the model so it fetches detail for each product
func Hint(result Result, mem session.WorkingMemory) string {
	if result.Empty() {
		return ""
	}
	parts := make([]string, 0, len(result.ProductIDs))
	for _, id := range result.ProductIDs {
		label := id
		for _, hit := range append(append([]session.SearchHit(nil), mem.LastResults...), mem.Shortlist...) {
			if hit.ProductID == id && hit.Name != "" {
				label = fmt.Sprintf("%s (%s)", id, hit.Name)
				break
			}
		}
		parts = append(parts, fmt.Sprintf("%s via %s", label, result.Methods[id]))
	}
	return fmt.Sprintf("The user wants to compare %d products: %s. Call product_get for each id before answering, then compare them attribute by attribute.",
		len(result.ProductIDs), strings.Join(parts, "; "))
}

func (r Rules) hasCompareWord(norm string) bool {
	return containsAny(norm, r.CompareWords)
}

func (r Rules) hasConnector(norm string) bool {
	for _, c := range r.Connectors {
		if len(c) == 1 && !isLetter(c[0]) {
			if strings.Contains(norm, c) {
				return true
			}
			continue
		}
		if lexicon.ContainsWord(norm, c) {
			return true
		}
	}
	return false
}

// ordinalRefs returns the positions mentioned in text, in order of appearance
func ordinalRefs(norm string, allowBare bool) []int {
	tokens := lexicon.Tokens(norm)
	var refs []int
	for i, tok := range tokens {
		if lexicon.OptionWords[tok] {
			continue
		}
		bare := allowBare || (i > 0 && lexicon.OptionWords[tokens[i-1]])
		if n, ok := lexicon.Ordinal(tok, bare); ok {
			refs = append(refs, n)
		}
	}
	return refs
}

// identifierRefs finds product ids and part numbers of known products in text,
// in order of appearance
func identifierRefs(norm string, mem session.WorkingMemory) []candidate {
	type ref struct {
		pos int
		candidate
	}
	var refs []ref
	seen := map[string]bool{}

	consider := func(productID, partNo string) {
		if productID == "" || seen[productID] {
			return
		}
		if pos := wordIndex(norm, productID); pos >= 0 {
			seen[productID] = true
			refs = append(refs, ref{pos: pos, candidate: candidate{id: productID, method: MethodID}})
			return
		}
		if pos := wordIndex(norm, partNo); pos >= 0 {
			seen[productID] = true
			refs = append(refs, ref{pos: pos, candidate: candidate{id: productID, method: MethodPartNo}})
		}
	}

	for _, hit := range mem.LastResults {
		consider(hit.ProductID, hit.PartNo)
	}
	for _, hit := range mem.Shortlist {
		consider(hit.ProductID, hit.PartNo)
	}
	for id, cached := range mem.Details {
		consider(id, cached.Product.PartNo)
	}

	for i := 1; i < len(refs); i++ {
		for j := i; j > 0 && refs[j].pos < refs[j-1].pos; j-- {
			refs[j], refs[j-1] = refs[j-1], refs[j]
		}
	}
	out := make([]candidate, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.candidate)
	}
	return out
}

// wordIndex finds id in norm on word boundaries. Identifiers shorter than three
// characters are ignored since they collide with ordinary words and numbers.
func wordIndex(norm, id string) int {
	id = strings.ToLower(strings.TrimSpace(id))
	if len(id) < 3 || !lexicon.ContainsWord(norm, id) {
		return -1
	}
	return strings.Index(norm, id)
}

func containsAny(norm string, phrases []string) bool {
	for _, p := range phrases {
		if lexicon.ContainsWord(norm, p) {
			return true
		}
	}
	return false
}

func isLetter(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}
