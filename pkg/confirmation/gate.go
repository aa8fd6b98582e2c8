package confirmation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/harun/shopagent/pkg/session"
)

// Action is what the caller does with a mutating tool call
type Action string

const (
	// Execute runs the call; the pending confirmation is consumed.
	Execute Action = "execute"
	// Ask stores Pending and ends the turn with its prompt.
	Ask Action = "ask"
	// Cancel drops the call and clears the pending confirmation.
	Cancel Action = "cancel"
)

// Call is a mutating tool call under evaluation
type Call struct {
	ToolName  string
	Arguments map[string]interface{}
	// ItemLabel names the cart item in the prompt, e.g. the product name.
	ItemLabel string
}

// Decision is the gate outcome for one call
type Decision struct {
	Action  Action                       `json:"action"`
	Pending *session.PendingConfirmation `json:"pending,omitempty"`
}

// Resolution classifies the user's message against a pending confirmation at
// the start of a turn
type Resolution string

const (
	NoPending  Resolution = "none"
	Confirmed  Resolution = "confirmed"
	Rejected   Resolution = "rejected"
	Superseded Resolution = "superseded"
)

// Canonical renders arguments in a stable form for comparing calls
func Canonical(args map[string]interface{}) string {
	if len(args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Matches reports whether pending was recorded for exactly this call
func Matches(pending *session.PendingConfirmation, toolName string, args map[string]interface{}) bool {
	return pending != nil && pending.ToolName == toolName && pending.CanonicalArgs == Canonical(args)
}

// Resolve classifies userText against pending
func (r Rules) Resolve(pending *session.PendingConfirmation, userText string) Resolution {
	switch {
	case pending == nil:
		return NoPending
	case r.IsRejection(userText):
		return Rejected
	case r.IsAffirmation(userText):
		return Confirmed
	}
	return Superseded
}

// Evaluate gates a mutating call. It executes only when pending matches the call
// and userText is an affirmation; otherwise a fresh confirmation is requested.
func (r Rules) Evaluate(call Call, pending *session.PendingConfirmation, userText, culture string, now time.Time) Decision {
	if Matches(pending, call.ToolName, call.Arguments) {
		switch {
		case r.IsAffirmation(userText):
			return Decision{Action: Execute}
		case r.IsRejection(userText):
			return Decision{Action: Cancel}
		}
	}

	return Decision{
		Action: Ask,
		Pending: &session.PendingConfirmation{
			ToolName:      call.ToolName,
			Arguments:     copyArgs(call.Arguments),
			CanonicalArgs: Canonical(call.Arguments),
			Prompt:        r.Prompt(call, culture),
			CreatedAt:     now.UnixMilli(),
		},
	}
}

// Prompt builds the confirmation question from the locale template for the tool
func (r Rules) Prompt(call Call, culture string) string {
	byTool := r.templates[r.locale(culture)]
	tmpl, ok := byTool[call.ToolName]
	if !ok {
		tmpl = byTool[defaultTemplate]
	}

	item := call.ItemLabel
	if item == "" {
		item = stringArg(call.Arguments, "product_id")
	}
	quantity := stringArg(call.Arguments, "quantity")
	if quantity == "" {
		quantity = "1"
	}

	return strings.NewReplacer(
		"{tool}", call.ToolName,
		"{item}", item,
		"{quantity}", quantity,
		"{line}", stringArg(call.Arguments, "line_id"),
	).Replace(tmpl)
}

func stringArg(args map[string]interface{}, key string) string {
	switch v := args[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func copyArgs(args map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
