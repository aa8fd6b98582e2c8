package agent

import (
	"context"

	"github.com/harun/shopagent/pkg/session"
	"github.com/harun/shopagent/pkg/toolexecutor"
)

// ToolShortlistAdd pins products the customer wants to keep in view. Pinned
// products back "compare my saved ones" style requests.
const ToolShortlistAdd = "shortlist_add"

const maxShortlist = 10

type shortlistTool struct{}

// ShortlistTool returns the session shortlist tool. NewRunner registers it when
// the executor does not already offer one.
func ShortlistTool() toolexecutor.Tool {
	return shortlistTool{}
}

func (shortlistTool) Name() string   { return ToolShortlistAdd }
func (shortlistTool) Mutation() bool { return false }

func (shortlistTool) Description() string {
	return "Save products to the customer's shortlist when they ask to keep, save or remember them."
}

func (shortlistTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"product_ids": map[string]interface{}{
				"type":        "array",
				"minItems":    1,
				"maxItems":    maxShortlist,
				"items":       map[string]interface{}{"type": "string", "minLength": 1},
				"description": "Product ids or part numbers to save",
			},
		},
		"required": []string{"product_ids"},
	}
}

// Execute only echoes the ids as hits; the turn resolves them against working
// memory and pins them.
func (shortlistTool) Execute(_ context.Context, args map[string]interface{}, _ *session.MCPState, _ toolexecutor.ToolContext, _ string) (*toolexecutor.Result, error) {
	raw, _ := args["product_ids"].([]interface{})
	hits := make([]session.SearchHit, 0, len(raw))
	for _, v := range raw {
		if id, ok := v.(string); ok && id != "" {
			hits = append(hits, session.SearchHit{ProductID: id})
		}
	}
	return &toolexecutor.Result{Hits: hits}, nil
}

// pin resolves requested ids against the last results and the detail cache and
// adds them to the shortlist. Unknown ids are pinned by id alone.
func (t *turn) pin(requested []session.SearchHit) string {
	mem := &t.state.Memory
	pinned := make([]string, 0, len(requested))
	for _, req := range requested {
		hit := t.lookupHit(req.ProductID)
		if len(mem.Shortlist) >= maxShortlist && !shortlisted(mem.Shortlist, hit.ProductID) {
			break
		}
		mem.AddToShortlist(hit)
		pinned = append(pinned, hit.ProductID)
	}

	ids := make([]string, 0, len(mem.Shortlist))
	for _, h := range mem.Shortlist {
		ids = append(ids, h.ProductID)
	}
	t.emit.DevStatus("shortlist", map[string]interface{}{"pinned": pinned, "size": len(ids)})

	out, _ := toolexecutor.FormatOutput(&toolexecutor.Result{Output: map[string]interface{}{
		"status":    "saved",
		"pinned":    pinned,
		"shortlist": ids,
	}})
	return out
}

func (t *turn) lookupHit(id string) session.SearchHit {
	mem := t.state.Memory
	for _, h := range mem.LastResults {
		if h.ProductID == id || (h.PartNo != "" && h.PartNo == id) {
			return h
		}
	}
	if p, ok := mem.Detail(id); ok {
		return session.SearchHit{ProductID: p.ID, PartNo: p.PartNo, Name: p.Name, Brand: p.Brand}
	}
	return session.SearchHit{ProductID: id}
}

func shortlisted(list []session.SearchHit, id string) bool {
	for _, h := range list {
		if h.ProductID == id {
			return true
		}
	}
	return false
}
