// Package lexicon holds the small multi-locale word lists shared by the
// guardrails (en, de, fr, es, nl) and the text normalization they use.
package lexicon

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Locales supported by the word lists
var Locales = []string{"en", "de", "fr", "es", "nl"}

var ordinalWords = map[string]int{
	// en
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
	"sixth": 6, "seventh": 7, "eighth": 8, "ninth": 9, "tenth": 10,
	"last": -1,
	// de
	"erste": 1, "ersten": 1, "erstes": 1, "zweite": 2, "zweiten": 2, "zweites": 2,
	"dritte": 3, "dritten": 3, "drittes": 3, "vierte": 4, "vierten": 4,
	"fünfte": 5, "fünften": 5, "sechste": 6, "sechsten": 6, "letzte": -1, "letzten": -1,
	// fr
	"premier": 1, "première": 1, "deuxième": 2, "seconde": 2, "troisième": 3,
	"quatrième": 4, "cinquième": 5, "sixième": 6, "dernier": -1, "dernière": -1,
	// es
	"primero": 1, "primera": 1, "segundo": 2, "segunda": 2, "tercero": 3, "tercera": 3,
	"cuarto": 4, "cuarta": 4, "quinto": 5, "quinta": 5, "sexto": 6, "sexta": 6,
	"último": -1, "última": -1,
	// nl
	"eerste": 1, "tweede": 2, "derde": 3, "vierde": 4, "vijfde": 5, "zesde": 6, "laatste": -1,
}

var (
	hashNumber   = regexp.MustCompile(`^#(\d{1,2})$`)
	bareNumber   = regexp.MustCompile(`^(\d{1,2})$`)
	suffixNumber = regexp.MustCompile(`^(\d{1,2})(st|nd|rd|th|e|er|re|ème|º|ª|de|ste)$`)
)

// Ordinal parses a single token as a 1-based position. "#2", "2nd", "2." and
// ordinal words in every locale are accepted; bare numbers only when allowBare.
// "last" style words return -1.
func Ordinal(token string, allowBare bool) (int, bool) {
	token = strings.ToLower(strings.TrimFunc(token, isEdgePunct))
	if token == "" {
		return 0, false
	}
	if n, ok := ordinalWords[token]; ok {
		return n, true
	}
	if m := hashNumber.FindStringSubmatch(token); m != nil {
		return atoiPositive(m[1])
	}
	if m := suffixNumber.FindStringSubmatch(token); m != nil {
		return atoiPositive(m[1])
	}
	if allowBare {
		if m := bareNumber.FindStringSubmatch(token); m != nil {
			return atoiPositive(m[1])
		}
	}
	return 0, false
}

// OptionWords introduce a number that refers to a listed option ("option 2")
var OptionWords = map[string]bool{
	"option": true, "number": true, "no": true, "nr": true, "item": true, "product": true, "choice": true,
	"nummer": true, "produkt": true, "artikel": true, "variante": true,
	"choix": true, "numéro": true, "produit": true,
	"opción": true, "opcion": true, "número": true, "producto": true,
	"optie": true,
}

// Normalize lowercases text, folds whitespace and strips edge punctuation
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimFunc(text, isEdgePunct))), " ")
}

// Tokens splits text on whitespace and trims edge punctuation from each token,
// dropping tokens that become empty. Case is preserved.
func Tokens(text string) []string {
	fields := strings.Fields(text)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if t := strings.TrimFunc(f, isEdgePunct); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// ContainsWord reports whether the normalized text contains phrase on word
// boundaries. phrase must already be lowercase.
func ContainsWord(normalized, phrase string) bool {
	if phrase == "" {
		return false
	}
	idx := 0
	for {
		i := strings.Index(normalized[idx:], phrase)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(phrase)
		if boundary(normalized, start-1) && boundary(normalized, end) {
			return true
		}
		idx = start + 1
		if idx >= len(normalized) {
			return false
		}
	}
}

func boundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	r := rune(s[i])
	return !(unicode.IsLetter(r) || unicode.IsDigit(r) || s[i] >= 0x80)
}

func isEdgePunct(r rune) bool {
	return unicode.IsPunct(r) && r != '#' || unicode.IsSymbol(r) && r != '€' && r != '$' && r != '£' || unicode.IsSpace(r)
}

func atoiPositive(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
