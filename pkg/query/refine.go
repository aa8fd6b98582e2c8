package query

import (
	"strings"
)

// ActionType names a refinement the client can offer when a search found nothing
type ActionType string

const (
	ActionBroaden           ActionType = "broaden"
	ActionRetryOriginal     ActionType = "retry_original"
	ActionRemoveConstraints ActionType = "remove_constraints"
	ActionAskClarify        ActionType = "ask_clarify"
)

// MaxRefinements bounds the actions produced for one missing-results event
const MaxRefinements = 4

// Action is a machine-actionable refinement suggestion
type Action struct {
	Type    ActionType             `json:"type"`
	Label   string                 `json:"label"`
	Payload map[string]interface{} `json:"payload"`
}

// Refinements builds the suggestions offered after the simplified and broadened
// searches both came back empty. tried lists every query already sent.
func Refinements(s Simplified, tried []string) []Action {
	wasTried := func(q string) bool {
		for _, t := range tried {
			if strings.EqualFold(strings.TrimSpace(t), strings.TrimSpace(q)) {
				return true
			}
		}
		return false
	}

	var actions []Action

	for _, tok := range s.Tokens {
		if wasTried(tok) {
			continue
		}
		actions = append(actions, Action{
			Type:    ActionBroaden,
			Label:   "Search for " + tok,
			Payload: searchPayload(tok),
		})
		break
	}

	if original := strings.TrimSpace(s.Original); original != "" && !wasTried(original) {
		actions = append(actions, Action{
			Type:    ActionRetryOriginal,
			Label:   "Search for \"" + original + "\"",
			Payload: searchPayload(original),
		})
	}

	if len(s.Dropped) > 0 && s.Query != "" {
		payload := searchPayload(s.Query)
		payload["removed_constraints"] = append([]string(nil), s.Dropped...)
		actions = append(actions, Action{
			Type:    ActionRemoveConstraints,
			Label:   "Ignore " + strings.Join(s.Dropped, ", "),
			Payload: payload,
		})
	}

	actions = append(actions, Action{
		Type:  ActionAskClarify,
		Label: "Describe what you are looking for",
		Payload: map[string]interface{}{
			"action": "clarify",
			"query":  s.Original,
		},
	})

	if len(actions) > MaxRefinements {
		actions = actions[:MaxRefinements]
	}
	return actions
}

func searchPayload(q string) map[string]interface{} {
	return map[string]interface{}{
		"action": "search",
		"tool":   "product_search",
		"query":  q,
	}
}
