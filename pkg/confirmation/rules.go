package confirmation

import (
	"regexp"
	"strings"

	"github.com/harun/shopagent/pkg/lexicon"
)

// Rules holds the reply classifiers and prompt templates. Values are immutable
// once built.
type Rules struct {
	affirm    []*regexp.Regexp
	reject    []*regexp.Regexp
	templates map[string]map[string]string // locale -> tool -> template
}

// DefaultRules returns the en/de/fr/es/nl classifiers and templates
func DefaultRules() Rules {
	return Rules{
		affirm:    compile(affirmPatterns),
		reject:    compile(rejectPatterns),
		templates: defaultTemplates,
	}
}

var affirmPatterns = []string{
	// whole replies
	`^(yes|y|yeah|yep|yup|sure|ok|okay|k|confirm|confirmed|correct|right|do it|go ahead|go for it|please do|sounds good|absolutely|of course|definitely|add it|that's right)$`,
	`^(ja|jap|jawohl|klar|genau|gerne|bestätigen|bestätigt|mach das|passt|in ordnung|einverstanden)$`,
	`^(oui|ouais|d'accord|dac|bien sûr|vas-y|allez-y|confirmer|je confirme|parfait|c'est bon)$`,
	`^(sí|si|claro|vale|de acuerdo|confirmar|confirmo|por supuesto|adelante|perfecto)$`,
	`^(ja hoor|jazeker|prima|akkoord|bevestig|bevestigen|doe maar|graag|zeker)$`,
	// affirmation word followed by politeness or a short continuation
	`^(yes|yeah|yep|sure|ok|okay|ja|oui|sí|si|claro|vale|prima)[ ,!.]+(please|thanks|thank you|bitte|danke|gerne|merci|s'il te plaît|s'il vous plaît|por favor|gracias|graag|dank je|add it|do it|go ahead|mach das|vas-y|adelante|doe maar|confirm)([ ,!.]+.*)?$`,
}

var rejectPatterns = []string{
	`^(no|n|nope|nah|cancel|stop|don't|do not|never mind|nevermind|not now|abort|no thanks|no thank you)([ ,.!?]|$)`,
	`^(nein|ne|nee|nö|abbrechen|lieber nicht|doch nicht|stopp)([ ,.!?]|$)`,
	`^(non|annuler|annule|pas maintenant|laisse tomber|surtout pas)([ ,.!?]|$)`,
	`^(no|cancelar|cancela|mejor no|déjalo)([ ,.!?]|$)`,
	`^(nee|neen|annuleren|annuleer|liever niet|niet doen)([ ,.!?]|$)`,
}

// IsAffirmation reports whether text is an explicit consent reply. A reply that
// is also a rejection is never an affirmation.
func (r Rules) IsAffirmation(text string) bool {
	norm := lexicon.Normalize(text)
	if norm == "" || r.IsRejection(text) {
		return false
	}
	return matchAny(r.affirm, norm)
}

// IsRejection reports whether text declines the pending action
func (r Rules) IsRejection(text string) bool {
	norm := lexicon.Normalize(text)
	if norm == "" {
		return false
	}
	return matchAny(r.reject, norm)
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

func compile(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

// locale reduces "de-DE" to "de" and falls back to en
func (r Rules) locale(culture string) string {
	lang := strings.ToLower(culture)
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	if _, ok := r.templates[lang]; ok {
		return lang
	}
	return "en"
}
