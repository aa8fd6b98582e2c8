// Package toolexecutor registers the tools offered to the model and executes them.
//
// Invariants:
// - Tool names are unique.
// - Arguments are schema-validated before execution.
// - Model-supplied "context" arguments are stripped and never honored; tenant
//   data always comes from the caller's ToolContext.
//
// Usage:
//
//	exec := toolexecutor.New(toolexecutor.Config{Logger: logger})
//	_ = exec.RegisterTool(searchTool)
//	args, err := toolexecutor.ParseArguments(call.Name, call.Arguments)
//	args, preview := toolexecutor.StripContext(args, redactor)
//	result, err := exec.Execute(ctx, call.Name, args, &state.MCP, toolCtx, tenantID)
package toolexecutor
