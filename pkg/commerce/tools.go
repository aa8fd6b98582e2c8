package commerce

import (
	"context"
	"encoding/json"

	"github.com/harun/shopagent/pkg/session"
	"github.com/harun/shopagent/pkg/toolexecutor"
	"github.com/tidwall/gjson"
)

// Tool names offered to the model
const (
	ToolProductSearch  = "product_search"
	ToolProductGet     = "product_get"
	ToolCartGet        = "cart_get"
	ToolCartAddItem    = "cart_add_item"
	ToolCartUpdateItem = "cart_update_item"
	ToolCartRemoveItem = "cart_remove_item"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 20
)

// Caller invokes a backend tool and returns its text payload
type Caller interface {
	CallTool(ctx context.Context, mcp *session.MCPState, tenantID, name string, args map[string]interface{}) (string, error)
}

// Tools returns every catalog and cart tool backed by caller
func Tools(caller Caller) []toolexecutor.Tool {
	return []toolexecutor.Tool{
		&searchTool{caller: caller},
		&productTool{caller: caller},
		&cartTool{caller: caller, name: ToolCartGet, description: "Show the current cart with its lines and totals.",
			params: objectSchema(nil, nil)},
		&cartTool{caller: caller, name: ToolCartAddItem, mutation: true,
			description: "Add a product variant to the cart. Requires the customer's confirmation.",
			params: objectSchema(map[string]interface{}{
				"product_id": stringProp("Product or variant id to add"),
				"quantity":   map[string]interface{}{"type": "integer", "minimum": 1, "description": "Quantity, defaults to 1"},
			}, []string{"product_id"})},
		&cartTool{caller: caller, name: ToolCartUpdateItem, mutation: true,
			description: "Change the quantity of a cart line. Requires the customer's confirmation.",
			params: objectSchema(map[string]interface{}{
				"line_id":  stringProp("Cart line id"),
				"quantity": map[string]interface{}{"type": "integer", "minimum": 0, "description": "New quantity, 0 removes the line"},
			}, []string{"line_id", "quantity"})},
		&cartTool{caller: caller, name: ToolCartRemoveItem, mutation: true,
			description: "Remove a line from the cart. Requires the customer's confirmation.",
			params: objectSchema(map[string]interface{}{
				"line_id": stringProp("Cart line id"),
			}, []string{"line_id"})},
	}
}

type searchTool struct {
	caller Caller
}

func (t *searchTool) Name() string   { return ToolProductSearch }
func (t *searchTool) Mutation() bool { return false }

func (t *searchTool) Description() string {
	return "Search the catalog. Use short keyword queries such as a product type and brand."
}

func (t *searchTool) Parameters() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"query": map[string]interface{}{"type": "string", "minLength": 1, "description": "Search keywords"},
		"limit": map[string]interface{}{"type": "integer", "minimum": 1, "maximum": maxSearchLimit},
	}, []string{"query"})
}

func (t *searchTool) Execute(ctx context.Context, args map[string]interface{}, mcp *session.MCPState, tc toolexecutor.ToolContext, tenantID string) (*toolexecutor.Result, error) {
	limit := defaultSearchLimit
	if v, ok := args["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}

	payload, err := t.caller.CallTool(ctx, mcp, tenantID, ToolProductSearch, withContext(map[string]interface{}{
		"query": args["query"],
		"limit": limit,
	}, tc))
	if err != nil {
		return nil, err
	}

	products, ok := DecodeSearch(payload)
	if !ok {
		return &toolexecutor.Result{Output: rawOutput(payload)}, nil
	}
	if len(products) > limit {
		products = products[:limit]
	}

	hits := make([]session.SearchHit, 0, len(products))
	for i, p := range products {
		hit := SearchHit(p)
		hit.Index = i + 1
		hits = append(hits, hit)
	}
	return &toolexecutor.Result{
		Output: map[string]interface{}{"query": args["query"], "count": len(hits), "results": hits},
		Hits:   hits,
	}, nil
}

type productTool struct {
	caller Caller
}

func (t *productTool) Name() string   { return ToolProductGet }
func (t *productTool) Mutation() bool { return false }

func (t *productTool) Description() string {
	return "Get product detail including variants, attributes and availability."
}

func (t *productTool) Parameters() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"product_id": stringProp("Product id or part number"),
	}, []string{"product_id"})
}

func (t *productTool) Execute(ctx context.Context, args map[string]interface{}, mcp *session.MCPState, tc toolexecutor.ToolContext, tenantID string) (*toolexecutor.Result, error) {
	payload, err := t.caller.CallTool(ctx, mcp, tenantID, ToolProductGet, withContext(map[string]interface{}{
		"product_id": args["product_id"],
	}, tc))
	if err != nil {
		return nil, err
	}

	p, ok := DecodeProduct(payload)
	if !ok {
		return &toolexecutor.Result{Output: rawOutput(payload)}, nil
	}
	return &toolexecutor.Result{Output: p, Product: &p}, nil
}

// cartTool forwards cart reads and mutations unchanged
type cartTool struct {
	caller      Caller
	name        string
	description string
	mutation    bool
	params      map[string]interface{}
}

func (t *cartTool) Name() string                       { return t.name }
func (t *cartTool) Description() string                { return t.description }
func (t *cartTool) Mutation() bool                     { return t.mutation }
func (t *cartTool) Parameters() map[string]interface{} { return t.params }

func (t *cartTool) Execute(ctx context.Context, args map[string]interface{}, mcp *session.MCPState, tc toolexecutor.ToolContext, tenantID string) (*toolexecutor.Result, error) {
	callArgs := make(map[string]interface{}, len(args)+1)
	for k, v := range args {
		callArgs[k] = v
	}
	if t.name == ToolCartAddItem {
		if _, ok := callArgs["quantity"]; !ok {
			callArgs["quantity"] = 1
		}
	}

	payload, err := t.caller.CallTool(ctx, mcp, tenantID, t.name, withContext(callArgs, tc))
	if err != nil {
		return nil, err
	}
	return &toolexecutor.Result{
		Output:   rawOutput(payload),
		Metadata: map[string]interface{}{"mutation": t.mutation},
	}, nil
}

// withContext attaches the caller-owned tool context to backend arguments
func withContext(args map[string]interface{}, tc toolexecutor.ToolContext) map[string]interface{} {
	args[toolexecutor.ContextKey] = tc
	return args
}

func rawOutput(payload string) interface{} {
	if gjson.Valid(payload) {
		return json.RawMessage(payload)
	}
	return payload
}

func objectSchema(properties map[string]interface{}, required []string) map[string]interface{} {
	if properties == nil {
		properties = map[string]interface{}{}
	}
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "minLength": 1, "description": description}
}
