// Package commerce is the commerce backend client and the catalog and cart tools
// built on it.
//
// The client speaks JSON-RPC 2.0 over HTTP POST (initialize, tools/call). Request
// ids and the backend session header are kept in session.MCPState so they survive
// across turns. Calls are retried under retry.Policy with
// apperror.IsRetryableCommerce: network failures and 502/503/504 only.
//
// Upstream payloads are decoded with a fixed field-priority list (DecodeProduct,
// DecodeSearch); unrecognized payloads are passed to the model unchanged.
//
// Usage:
//
//	client, err := commerce.NewClient(commerce.Config{Endpoint: url, OAuth: &oauthCfg})
//	for _, tool := range commerce.Tools(client) {
//		_ = executor.RegisterTool(tool)
//	}
package commerce
