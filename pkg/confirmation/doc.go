// Package confirmation gates cart mutations behind an explicit user consent.
//
// A mutating tool call executes only when a pending confirmation recorded for the
// same tool and canonical arguments exists and the current user message is an
// affirmation. The first request records the pending confirmation and ends the
// turn with a template-built question; no model call is needed to phrase it.
//
// Usage:
//
//	rules := confirmation.DefaultRules()
//	d := rules.Evaluate(confirmation.Call{ToolName: name, Arguments: args}, mem.PendingConfirmation, userText, culture, now)
//	switch d.Action {
//	case confirmation.Execute: ...
//	case confirmation.Ask: mem.PendingConfirmation = d.Pending
//	case confirmation.Cancel: mem.PendingConfirmation = nil
//	}
package confirmation
