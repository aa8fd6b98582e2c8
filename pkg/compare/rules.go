package compare

// Rules holds the word lists the resolver matches against
type Rules struct {
	CompareWords    []string
	Connectors      []string
	Phrases         []string
	GroupPronouns   []string
	ShortlistWords  []string
	MaxCandidates   int
	MaxRows         int
	MaxHeaderLength int
}

// DefaultRules returns the en/de/fr/es/nl lists
func DefaultRules() Rules {
	return Rules{
		CompareWords: []string{
			"compare", "comparison", "versus",
			"vergleiche", "vergleichen", "vergleich",
			"comparer", "compare", "comparaison",
			"comparar", "compara", "comparación",
			"vergelijk", "vergelijken", "vergelijking",
		},
		Connectors: []string{
			"and", "or", "vs", "vs.", "versus", "with", "against", "to",
			"und", "oder", "mit", "gegen",
			"et", "ou", "avec", "contre",
			"y", "o", "con", "contra",
			"en", "of", "met", "tegen",
			",", "&", "/",
		},
		Phrases: []string{
			"difference", "differences", "different", "which is better", "which one is better", "better", "pros and cons",
			"unterschied", "unterschiede", "besser",
			"différence", "différences", "meilleur",
			"diferencia", "diferencias", "mejor",
			"verschil", "verschillen", "beter",
		},
		GroupPronouns: []string{
			"them", "these", "those", "both", "all three", "the two", "the three", "either",
			"sie", "diese", "beide", "beiden", "alle drei",
			"eux", "elles", "ces", "les deux", "les trois",
			"ellos", "ellas", "estos", "estas", "esos", "ambos", "los dos", "los tres",
			"deze", "die", "beide", "alle drie",
		},
		ShortlistWords: []string{
			"shortlist", "short list", "shortlisted", "saved", "favorites", "favourites", "my picks",
			"merkliste", "gemerkten", "favoriten",
			"favoris", "sélection",
			"favoritos", "guardados",
			"favorieten", "verlanglijst",
		},
		MaxCandidates:   3,
		MaxRows:         8,
		MaxHeaderLength: 24,
	}
}
