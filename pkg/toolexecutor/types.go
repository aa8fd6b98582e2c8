package toolexecutor

import (
	"context"

	"github.com/harun/shopagent/pkg/product"
	"github.com/harun/shopagent/pkg/session"
)

// ToolContext is tenant data owned by the caller. It is never read from model
// output.
type ToolContext struct {
	Culture    string   `json:"culture,omitempty"`
	Currency   string   `json:"currency,omitempty"`
	PriceLists []string `json:"price_lists,omitempty"`
	CustomerID string   `json:"customer_id,omitempty"`
	CompanyID  string   `json:"company_id,omitempty"`
}

// Tool is one capability offered to the model
type Tool interface {
	Name() string
	Description() string
	// Parameters is the JSON schema of the arguments, without tenant context.
	Parameters() map[string]interface{}
	// Mutation reports whether the tool changes the cart and must be confirmed.
	Mutation() bool
	Execute(ctx context.Context, args map[string]interface{}, mcp *session.MCPState, tc ToolContext, tenantID string) (*Result, error)
}

// Result is a normalized tool result. Output is what the model sees; the typed
// fields feed working memory.
type Result struct {
	Output   interface{}            `json:"output"`
	Hits     []session.SearchHit    `json:"hits,omitempty"`
	Product  *product.Product       `json:"product,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
