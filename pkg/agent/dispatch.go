package agent

import (
	"context"
	"errors"
	"time"

	"github.com/harun/shopagent/internal/observability"
	"github.com/harun/shopagent/pkg/apperror"
	"github.com/harun/shopagent/pkg/commerce"
	"github.com/harun/shopagent/pkg/confirmation"
	"github.com/harun/shopagent/pkg/diagnostics"
	"github.com/harun/shopagent/pkg/enrichment"
	"github.com/harun/shopagent/pkg/llm"
	"github.com/harun/shopagent/pkg/product"
	"github.com/harun/shopagent/pkg/query"
	"github.com/harun/shopagent/pkg/session"
	"github.com/harun/shopagent/pkg/stream"
	"github.com/harun/shopagent/pkg/toolexecutor"
	"github.com/harun/shopagent/pkg/variant"
)

// mcpIDBlock is the request id range reserved for each concurrent fetch
const mcpIDBlock = 16

// dispatch runs one model tool call through the guardrails. It returns the tool
// message content and whether the turn pauses for the customer. Only
// cancellation is returned as an error; tool failures become content.
func (t *turn) dispatch(ctx context.Context, call llm.ToolCall) (string, bool, error) {
	start := time.Now()
	trace := diagnostics.ToolTrace{CallID: call.ID, Tool: call.Name}
	t.emit.ToolStart(call.ID, call.Name)
	t.emit.Status(t.r.catalog.ToolKey(call.Name))

	content, paused, err := t.dispatchCall(ctx, call, &trace)
	t.endTool(call, &trace, start)
	return content, paused, err
}

func (t *turn) endTool(call llm.ToolCall, trace *diagnostics.ToolTrace, start time.Time) {
	d := time.Since(start)
	trace.DurationMs = d.Milliseconds()
	t.emit.ToolEnd(call.ID, call.Name, trace.OK, trace.Code, d)
	t.record.Tools = append(t.record.Tools, *trace)
}

func (t *turn) dispatchCall(ctx context.Context, call llm.ToolCall, trace *diagnostics.ToolTrace) (string, bool, error) {
	args, err := toolexecutor.ParseArguments(call.Name, call.Arguments)
	if err != nil {
		trace.Code = apperror.CodeOf(err)
		t.logger.Warn().Str("tool", call.Name).Err(err).Msg("Malformed tool arguments")
		return toolexecutor.FormatError(err), false, nil
	}

	args, preview := toolexecutor.StripContext(args, t.r.redactor)
	if preview != "" {
		t.record.ContextPreview = preview
		t.logger.Warn().Str("tool", call.Name).Str("context", preview).Msg("Dropped model-supplied context")
		t.emit.DevStatus("context stripped", map[string]interface{}{"tool": call.Name})
	}
	trace.Arguments = t.r.preview(args)

	if call.Name == commerce.ToolCartAddItem {
		pf, err := t.preflight(ctx, call, args, trace)
		if err != nil {
			return "", false, err
		}
		if pf.stop {
			return pf.content, pf.paused, nil
		}
		args = pf.args
	}

	if t.r.tools.IsMutation(call.Name) {
		return t.gate(ctx, call, args, trace)
	}
	if call.Name == commerce.ToolProductSearch {
		content, err := t.search(ctx, args, trace)
		return content, false, err
	}
	if call.Name == ToolShortlistAdd {
		result, content, err := t.execute(ctx, call.Name, args, trace)
		if err != nil || result == nil {
			return content, false, err
		}
		return t.pin(result.Hits), false, nil
	}

	_, content, err := t.execute(ctx, call.Name, args, trace)
	return content, false, err
}

type preflightResult struct {
	args    map[string]interface{}
	content string
	stop    bool // the call must not go on to the cart
	paused  bool
}

// preflight checks a cart_add_item target against cached product detail
func (t *turn) preflight(ctx context.Context, call llm.ToolCall, args map[string]interface{}, trace *diagnostics.ToolTrace) (preflightResult, error) {
	id, _ := args["product_id"].(string)
	if id == "" {
		return preflightResult{args: args}, nil
	}

	decision := variant.Preflight(id, t.cachedDetail(id))
	if decision.Outcome == variant.NeedsFetch {
		p, err := t.fetchDetail(ctx, id)
		if err != nil && isCancel(ctx, err) {
			return preflightResult{}, err
		}
		if p == nil {
			// detail unavailable; the cart backend has the final word
			trace.Decision = string(variant.NeedsFetch)
			observability.RecordGuardrail("variant_preflight", string(variant.NeedsFetch))
			return preflightResult{args: args}, nil
		}
		decision = variant.Preflight(id, p)
	}
	trace.Decision = string(decision.Outcome)
	observability.RecordGuardrail("variant_preflight", string(decision.Outcome))

	switch decision.Outcome {
	case variant.Proceed:
		if !decision.Rewritten {
			return preflightResult{args: args}, nil
		}
		rewritten := copyArgs(args)
		rewritten["product_id"] = decision.ID
		t.emit.DevStatus("variant rewritten", map[string]interface{}{"from": id, "to": decision.ID})
		return preflightResult{args: rewritten}, nil

	case variant.Disambiguate:
		prompt := t.r.catalog.Text(t.req.Context.Culture, stream.StatusChooseOption)
		t.state.Memory.ActiveChoiceSet = &session.ChoiceSet{
			Kind:      "variant",
			Prompt:    prompt,
			Choices:   decision.Choices,
			ToolName:  call.Name,
			Arguments: copyArgs(args),
			ArgKey:    "product_id",
			CreatedAt: t.r.now().UnixMilli(),
		}
		t.reply.Choices = &Choices{Kind: "variant", Prompt: prompt, Options: decision.Choices}
		t.pause(OutcomeAwaitingChoice, FinishChoiceRequired, prompt)
		trace.OK = true
		return preflightResult{
			content: statusContent(map[string]interface{}{
				"status":  "choice_required",
				"choices": decision.Choices,
			}),
			stop:   true,
			paused: true,
		}, nil
	}

	return preflightResult{
		content: statusContent(map[string]interface{}{
			"status":     "not_buyable",
			"reason":     decision.Reason,
			"product_id": id,
		}),
		stop: true,
	}, nil
}

// gate lets a cart mutation through only on a matching pending confirmation and
// an affirmative message; otherwise it stores a new pending confirmation.
func (t *turn) gate(ctx context.Context, call llm.ToolCall, args map[string]interface{}, trace *diagnostics.ToolTrace) (string, bool, error) {
	mem := &t.state.Memory
	decision := t.r.rules.Confirmation.Evaluate(confirmation.Call{
		ToolName:  call.Name,
		Arguments: args,
		ItemLabel: t.itemLabel(args),
	}, mem.PendingConfirmation, t.text, t.req.Context.Culture, t.r.now())
	trace.Decision = string(decision.Action)
	observability.RecordGuardrail("confirmation", string(decision.Action))

	switch decision.Action {
	case confirmation.Execute:
		mem.PendingConfirmation = nil
		_, content, err := t.execute(ctx, call.Name, args, trace)
		if err != nil {
			return "", false, err
		}
		t.auditResult(ctx, call.Name, trace)
		return content, false, nil

	case confirmation.Cancel:
		mem.PendingConfirmation = nil
		trace.OK = true
		observability.RecordCartAudit(ctx, call.Name, t.key, t.req.TenantID, "rejected", nil)
		return statusContent(map[string]interface{}{"status": "cancelled"}), false, nil
	}

	pending := decision.Pending
	mem.PendingConfirmation = pending
	t.reply.Confirmation = &Confirmation{
		ToolName:  pending.ToolName,
		Arguments: pending.Arguments,
		Prompt:    pending.Prompt,
	}
	t.pause(OutcomeAwaitingConfirmation, FinishConfirmationRequired, pending.Prompt)
	trace.OK = true
	observability.RecordCartAudit(ctx, call.Name, t.key, t.req.TenantID, "pending", map[string]interface{}{
		"arguments": trace.Arguments,
	})
	return statusContent(map[string]interface{}{
		"status": "confirmation_required",
		"prompt": pending.Prompt,
	}), true, nil
}

// search simplifies the query, broadens once on zero results and offers
// refinements when both attempts come back empty.
func (t *turn) search(ctx context.Context, args map[string]interface{}, trace *diagnostics.ToolTrace) (string, error) {
	raw, _ := args["query"].(string)
	simplified := t.r.rules.Query.Simplify(raw)
	q := raw
	if simplified.Changed() {
		q = simplified.Query
		args = copyArgs(args)
		args["query"] = q
		observability.RecordGuardrail("query_simplifier", "simplified")
		t.emit.DevStatus("query simplified", map[string]interface{}{"original": raw, "query": q})
	}
	t.tried = append(t.tried, q)

	result, content, err := t.execute(ctx, commerce.ToolProductSearch, args, trace)
	if err != nil || result == nil {
		return content, err
	}

	if noResults(result) && !t.broadened {
		if broad, ok := simplified.Broaden(); ok && !t.wasTried(broad) {
			t.broadened = true
			t.emit.Status(stream.StatusBroadening)
			observability.RecordGuardrail("broaden", "retry")

			broadArgs := copyArgs(args)
			broadArgs["query"] = broad
			t.tried = append(t.tried, broad)
			retried, retriedContent, err := t.execute(ctx, commerce.ToolProductSearch, broadArgs, trace)
			if err != nil {
				return "", err
			}
			if retried != nil {
				result, content, q = retried, retriedContent, broad
			}
		}
	}

	if noResults(result) {
		if !t.refined {
			t.refined = true
			t.reply.Refinements = query.Refinements(simplified, t.tried)
			observability.RecordGuardrail("refinements", "offered")
		}
		return content, nil
	}
	if len(result.Hits) == 0 {
		return content, nil
	}

	t.state.Memory.SetResults(q, result.Hits)
	cards := make([]ProductCard, 0, len(result.Hits))
	for _, h := range result.Hits {
		cards = append(cards, cardFromHit(h))
	}
	t.reply.Products = cards

	return t.enrich(ctx, result, content), nil
}

// enrich attaches product detail to search results when the customer asks about
// stock, sizes or buying, or when the results carry no availability at all.
func (t *turn) enrich(ctx context.Context, result *toolexecutor.Result, content string) string {
	if !t.r.rules.Enrichment.ShouldEnrich(t.text, result.Hits) {
		return content
	}
	ids := enrichment.PickIDs(result.Hits, t.state.Memory)
	if len(ids) == 0 {
		return content
	}
	t.emit.Status(stream.StatusAvailability)

	details := t.fetchDetails(ctx, ids)
	if len(details) == 0 {
		return content
	}
	observability.RecordGuardrail("enrichment", "fetched")

	for _, p := range details {
		for i := range t.reply.Products {
			if p.Matches(t.reply.Products[i].ID) {
				t.reply.Products[i].Availability = p.Availability.Label()
			}
		}
	}

	enriched, truncated := toolexecutor.FormatOutput(&toolexecutor.Result{Output: map[string]interface{}{
		"results": result.Output,
		"details": details,
	}})
	if truncated {
		t.logger.Debug().Msg("Enriched search output truncated")
	}
	return enriched
}

// execute runs a tool and records the outcome on trace. Failures other than
// cancellation come back as error content for the model.
func (t *turn) execute(ctx context.Context, name string, args map[string]interface{}, trace *diagnostics.ToolTrace) (*toolexecutor.Result, string, error) {
	result, err := t.r.tools.Execute(ctx, name, args, &t.state.MCP, t.req.Context, t.req.TenantID)
	if err != nil {
		if isCancel(ctx, err) {
			return nil, "", err
		}
		trace.OK = false
		trace.Code = apperror.CodeOf(err)
		return nil, toolexecutor.FormatError(err), nil
	}

	trace.OK = true
	trace.Code = ""
	if result.Product != nil {
		t.state.Memory.CacheDetail(*result.Product, t.r.now())
		if name == commerce.ToolProductGet {
			t.addCard(cardFromProduct(*result.Product))
		}
	}

	content, truncated := toolexecutor.FormatOutput(result)
	trace.Truncated = trace.Truncated || truncated
	return result, content, nil
}

// fetchDetail loads one product for the guardrails. A nil product means the
// backend answered with something that is not a product.
func (t *turn) fetchDetail(ctx context.Context, id string) (*product.Product, error) {
	result, err := t.r.tools.Execute(ctx, commerce.ToolProductGet, map[string]interface{}{"product_id": id},
		&t.state.MCP, t.req.Context, t.req.TenantID)
	if err != nil {
		t.logger.Debug().Str("product_id", id).Err(err).Msg("Detail fetch failed")
		return nil, err
	}
	if result.Product == nil {
		return nil, nil
	}
	t.state.Memory.CacheDetail(*result.Product, t.r.now())
	return result.Product, nil
}

// fetchDetails loads several products concurrently. Each fetch gets its own copy
// of the protocol state with a disjoint request id block. A backend session that
// has not started yet is opened by a single fetch before the fan-out, so every
// copy carries the negotiated session.
func (t *turn) fetchDetails(ctx context.Context, ids []string) []product.Product {
	var first []product.Product
	if !t.state.MCP.Started() && len(ids) > 0 {
		p, err := t.fetchDetail(ctx, ids[0])
		if err == nil && p != nil {
			first = append(first, *p)
		}
		ids = ids[1:]
		if len(ids) == 0 || ctx.Err() != nil {
			return first
		}
	}

	base := t.state.MCP
	states := make(map[string]*session.MCPState, len(ids))
	for i, id := range ids {
		st := base
		st.NextRequestID = base.NextRequestID + int64(i)*mcpIDBlock
		states[id] = &st
	}

	products := enrichment.Fetch(ctx, ids, t.r.opts.EnrichConcurrency, func(ctx context.Context, id string) (*product.Product, error) {
		result, err := t.r.tools.Execute(ctx, commerce.ToolProductGet, map[string]interface{}{"product_id": id},
			states[id], t.req.Context, t.req.TenantID)
		if err != nil {
			return nil, err
		}
		return result.Product, nil
	})

	t.state.MCP.NextRequestID = base.NextRequestID + int64(len(ids))*mcpIDBlock
	if t.state.MCP.SessionID == "" {
		for _, id := range ids {
			if sid := states[id].SessionID; sid != "" {
				t.state.MCP.SessionID = sid
				break
			}
		}
	}

	now := t.r.now()
	for _, p := range products {
		t.state.Memory.CacheDetail(p, now)
	}
	return append(first, products...)
}

func (t *turn) cachedDetail(id string) *product.Product {
	p, ok := t.state.Memory.Detail(id)
	if !ok {
		return nil
	}
	return &p
}

func (t *turn) itemLabel(args map[string]interface{}) string {
	id, _ := args["product_id"].(string)
	if id == "" {
		return ""
	}
	if p, ok := t.state.Memory.Detail(id); ok {
		if v, ok := p.Variant(id); ok && v.Name != "" {
			return v.Name
		}
		return p.Name
	}
	for _, h := range t.state.Memory.LastResults {
		if h.ProductID == id || h.PartNo == id {
			return h.Name
		}
	}
	return ""
}

func (t *turn) auditResult(ctx context.Context, tool string, trace *diagnostics.ToolTrace) {
	status := "executed"
	if !trace.OK {
		status = "failed"
	}
	observability.RecordCartAudit(ctx, tool, t.key, t.req.TenantID, status, map[string]interface{}{
		"code": trace.Code,
	})
}

func (t *turn) addCard(card ProductCard) {
	for i, c := range t.reply.Products {
		if c.ID == card.ID {
			t.reply.Products[i] = card
			return
		}
	}
	t.reply.Products = append(t.reply.Products, card)
}

func (t *turn) wasTried(q string) bool {
	for _, tried := range t.tried {
		if tried == q {
			return true
		}
	}
	return false
}

// noResults is true only for a decoded, empty search. Undecodable output has
// nil Hits and is passed through as-is.
func noResults(result *toolexecutor.Result) bool {
	return result.Hits != nil && len(result.Hits) == 0
}

func isCancel(ctx context.Context, err error) bool {
	return errors.Is(err, context.Canceled) || ctx.Err() != nil
}

func copyArgs(args map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}

func statusContent(body map[string]interface{}) string {
	content, _ := toolexecutor.FormatOutput(&toolexecutor.Result{Output: body})
	return content
}
