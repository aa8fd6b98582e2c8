package agent

import (
	"github.com/harun/shopagent/pkg/commerce"
	"github.com/harun/shopagent/pkg/compare"
	"github.com/harun/shopagent/pkg/product"
	"github.com/harun/shopagent/pkg/query"
	"github.com/harun/shopagent/pkg/session"
	"github.com/harun/shopagent/pkg/toolexecutor"
)

// Outcome is the state a turn ended in
type Outcome string

const (
	OutcomeDone                 Outcome = "done"
	OutcomeTruncated            Outcome = "truncated"
	OutcomeAwaitingConfirmation Outcome = "awaiting_confirmation"
	OutcomeAwaitingChoice       Outcome = "awaiting_choice"
	OutcomeError                Outcome = "error"
)

// Finish reasons set by the runner rather than the model
const (
	FinishTruncated            = "truncated"
	FinishConfirmationRequired = "confirmation_required"
	FinishChoiceRequired       = "choice_required"
)

// Request is one inbound chat message
type Request struct {
	TenantID  string
	SessionID string
	Message   string
	Context   toolexecutor.ToolContext
	// RequestID makes retried submissions of the same message idempotent.
	RequestID string
}

// Reply is the structured result of a turn
type Reply struct {
	RunID        string         `json:"run_id"`
	SessionKey   string         `json:"session_key"`
	Text         string         `json:"text"`
	Products     []ProductCard  `json:"products,omitempty"`
	Comparison   *Comparison    `json:"comparison,omitempty"`
	Choices      *Choices       `json:"choices,omitempty"`
	Confirmation *Confirmation  `json:"confirmation,omitempty"`
	Refinements  []query.Action `json:"refinements,omitempty"`
	FinishReason string         `json:"finish_reason"`
	Outcome      Outcome        `json:"outcome"`
	Rounds       int            `json:"rounds"`
}

// ProductCard is a compact product for the client widget
type ProductCard struct {
	ID              string   `json:"id"`
	PartNo          string   `json:"part_no,omitempty"`
	Name            string   `json:"name"`
	Brand           string   `json:"brand,omitempty"`
	Color           string   `json:"color,omitempty"`
	Price           *float64 `json:"price,omitempty"`
	Currency        string   `json:"currency,omitempty"`
	Availability    string   `json:"availability,omitempty"`
	BuyableVariants *int     `json:"buyable_variants,omitempty"`
	InStockVariants *int     `json:"in_stock_variants,omitempty"`
}

// Comparison is the comparison block of a reply
type Comparison struct {
	ProductIDs []string                  `json:"product_ids"`
	Methods    map[string]compare.Method `json:"methods"`
	Table      compare.Table             `json:"table"`
	Highlights *compare.Highlights       `json:"highlights,omitempty"`
}

// Choices asks the user to pick one option
type Choices struct {
	Kind    string           `json:"kind"`
	Prompt  string           `json:"prompt"`
	Options []session.Choice `json:"options"`
}

// Confirmation asks the user to approve a cart change
type Confirmation struct {
	ToolName  string                 `json:"tool_name"`
	Arguments map[string]interface{} `json:"arguments"`
	Prompt    string                 `json:"prompt"`
}

func cardFromHit(h session.SearchHit) ProductCard {
	return ProductCard{
		ID:              h.ProductID,
		PartNo:          h.PartNo,
		Name:            h.Name,
		Brand:           h.Brand,
		Color:           h.Color,
		Price:           h.Price,
		Currency:        h.Currency,
		BuyableVariants: h.BuyableVariants,
		InStockVariants: h.InStockVariants,
	}
}

func cardFromProduct(p product.Product) ProductCard {
	card := cardFromHit(commerce.SearchHit(p))
	card.Availability = p.Availability.Label()
	return card
}
