// Package agent runs chat turns for the shopping assistant: the model and tool
// loop plus the guardrails around it.
//
// Invariants:
//   - Turns for one session key run one at a time in the session's commandqueue lane.
//   - Session state is loaded at the start of a turn and saved once, only when the
//     turn resolves; a failed or cancelled turn persists nothing.
//   - A cart mutation executes only after the customer affirmed a pending
//     confirmation for exactly that call.
//   - Every tool call the model makes gets a tool message back.
//   - Awaiting a confirmation or a variant choice is a normal outcome, not an error.
//
// Usage:
//
//	runner, _ := agent.NewRunner(agent.Config{Sessions: sessions, Tools: tools, Queue: queue, LLM: client})
//	reply, err := runner.Run(ctx, agent.Request{TenantID: "acme", SessionID: "s1", Message: "red sneakers"}, nil)
package agent
