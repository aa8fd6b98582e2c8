package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/harun/shopagent/internal/observability"
	"github.com/harun/shopagent/pkg/apperror"
	"github.com/harun/shopagent/pkg/compare"
	"github.com/harun/shopagent/pkg/confirmation"
	"github.com/harun/shopagent/pkg/diagnostics"
	"github.com/harun/shopagent/pkg/llm"
	"github.com/harun/shopagent/pkg/product"
	"github.com/harun/shopagent/pkg/session"
	"github.com/harun/shopagent/pkg/stream"
	"github.com/harun/shopagent/pkg/variant"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

const truncatedFallback = "I need a bit more information to finish this. Could you narrow down what you are looking for?"

// turn is the mutable state of one Run. It is confined to the session lane.
type turn struct {
	r         *Runner
	req       Request
	key       string
	text      string
	state     *session.State
	emit      *stream.Emitter
	streaming bool
	logger    zerolog.Logger
	record    *diagnostics.RunRecord
	reply     *Reply

	// notes are per-turn system messages; they are not persisted.
	notes       []string
	tried       []string
	broadened   bool
	refined     bool
	lastContent string
}

func (t *turn) run(ctx context.Context) (*Reply, error) {
	t.state.Conversation = append(t.state.Conversation, llm.Message{Role: llm.RoleUser, Content: t.text})

	if err := t.resolvePending(ctx); err != nil {
		return nil, err
	}
	paused, err := t.resolveChoice(ctx)
	if err != nil {
		return nil, err
	}
	if paused {
		return t.pauseReply(), nil
	}
	if err := t.detectCompare(ctx); err != nil {
		return nil, err
	}
	return t.loop(ctx)
}

// resolvePending settles a confirmation left by the previous turn. A confirmed
// call runs here directly with its stored arguments.
func (t *turn) resolvePending(ctx context.Context) error {
	mem := &t.state.Memory
	pending := mem.PendingConfirmation
	resolution := t.r.rules.Confirmation.Resolve(pending, t.text)
	if resolution == confirmation.NoPending {
		return nil
	}
	mem.PendingConfirmation = nil
	observability.RecordGuardrail("confirmation", string(resolution))

	switch resolution {
	case confirmation.Confirmed:
		observability.RecordCartAudit(ctx, pending.ToolName, t.key, t.req.TenantID, "confirmed", nil)
		call := t.syntheticCall(pending.ToolName, pending.Arguments)
		trace := diagnostics.ToolTrace{CallID: call.ID, Tool: call.Name, Decision: string(confirmation.Execute)}
		start := time.Now()
		t.emit.ToolStart(call.ID, call.Name)
		t.emit.Status(t.r.catalog.ToolKey(call.Name))
		trace.Arguments = t.r.preview(pending.Arguments)

		_, content, err := t.execute(ctx, call.Name, pending.Arguments, &trace)
		t.endTool(call, &trace, start)
		if err != nil {
			return err
		}
		t.auditResult(ctx, call.Name, &trace)
		t.appendToolExchange(call, content)

	case confirmation.Rejected:
		observability.RecordCartAudit(ctx, pending.ToolName, t.key, t.req.TenantID, "rejected", nil)
		t.notes = append(t.notes, fmt.Sprintf(
			"The customer declined the pending %s request. It was not executed; do not retry it unless asked again.",
			pending.ToolName))

	case confirmation.Superseded:
		observability.RecordCartAudit(ctx, pending.ToolName, t.key, t.req.TenantID, "superseded", nil)
	}
	return nil
}

// resolveChoice consumes the active choice set. A resolved variant choice
// resumes the tool call that asked for it.
func (t *turn) resolveChoice(ctx context.Context) (bool, error) {
	mem := &t.state.Memory
	set := mem.ActiveChoiceSet
	if set == nil {
		return false, nil
	}
	mem.ActiveChoiceSet = nil

	choice, ok := variant.Resolve(t.text, set)
	if !ok {
		observability.RecordGuardrail("choice", "superseded")
		return false, nil
	}
	observability.RecordGuardrail("choice", "resolved")

	if set.ToolName == "" {
		t.notes = append(t.notes, fmt.Sprintf("The customer picked option %d: %s (id %s).", choice.Index, choice.Label, choice.ID))
		return false, nil
	}

	args := make(map[string]interface{}, len(set.Arguments)+1)
	for k, v := range set.Arguments {
		args[k] = v
	}
	args[set.ArgKey] = choice.ID

	call := t.syntheticCall(set.ToolName, args)
	content, paused, err := t.dispatch(ctx, call)
	if err != nil {
		return false, err
	}
	t.appendToolExchange(call, content)
	return paused, nil
}

// detectCompare pins 2 or 3 products for comparison and builds the table from
// their cached detail, fetching what is missing.
func (t *turn) detectCompare(ctx context.Context) error {
	rules := t.r.rules.Compare
	mem := &t.state.Memory
	if !rules.DetectIntent(t.text, *mem) {
		return nil
	}
	result := rules.SelectCandidates(t.text, *mem)
	if result.Empty() {
		observability.RecordGuardrail("compare", "none")
		return nil
	}
	observability.RecordGuardrail("compare", "selected")
	t.emit.Status(stream.StatusComparing)
	t.notes = append(t.notes, compare.Hint(result, *mem))

	var missing []string
	for _, id := range result.ProductIDs {
		if _, ok := mem.Detail(id); !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		t.fetchDetails(ctx, missing)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	products := make([]product.Product, 0, len(result.ProductIDs))
	for _, id := range result.ProductIDs {
		if p, ok := mem.Detail(id); ok {
			products = append(products, p)
		}
	}
	comparison := &Comparison{ProductIDs: result.ProductIDs, Methods: result.Methods}
	if len(products) >= 2 {
		comparison.Table = rules.BuildTable(products)
		if t.r.opts.Highlights {
			comparison.Highlights = compare.GenerateHighlights(ctx, t.r.llm, t.r.opts.Model, comparison.Table)
		}
	}
	t.reply.Comparison = comparison
	return nil
}

func (t *turn) loop(ctx context.Context) (*Reply, error) {
	maxCalls := t.r.opts.MaxToolCallsPerRound

	for round := 1; round <= t.r.opts.MaxRounds; round++ {
		if round == 1 {
			t.emit.Status(stream.StatusThinking)
		}
		resp, err := t.callLLM(ctx, round)
		if err != nil {
			return nil, err
		}
		t.reply.Rounds = round

		if len(resp.ToolCalls) == 0 {
			t.state.Conversation = append(t.state.Conversation, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})
			return t.finish(resp.Content, resp.FinishReason, OutcomeDone), nil
		}
		if resp.Content != "" {
			t.lastContent = resp.Content
		}

		t.state.Conversation = append(t.state.Conversation, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		paused := false
		for i, call := range resp.ToolCalls {
			if paused || i >= maxCalls {
				t.skipCall(call, paused)
				continue
			}
			content, p, err := t.dispatch(ctx, call)
			if err != nil {
				return nil, err
			}
			t.appendToolResult(call, content)
			paused = p
		}
		if paused {
			return t.pauseReply(), nil
		}
	}

	text := t.lastContent
	if text == "" {
		text = truncatedFallback
	}
	t.state.Conversation = append(t.state.Conversation, llm.Message{Role: llm.RoleAssistant, Content: text})
	t.logger.Warn().Int("max_rounds", t.r.opts.MaxRounds).Msg("Turn truncated")
	return t.finish(text, FinishTruncated, OutcomeTruncated), nil
}

func (t *turn) callLLM(ctx context.Context, round int) (*llm.Response, error) {
	messages := t.messages()
	tools := t.r.tools.Definitions()

	start := time.Now()
	var resp *llm.Response
	var err error
	if t.streaming {
		resp, err = t.r.llm.StreamWithTools(ctx, messages, tools, t.r.opts.Model, t.emit.Delta)
	} else {
		resp, err = t.r.llm.RunWithTools(ctx, messages, tools, t.r.opts.Model)
	}

	trace := diagnostics.LLMTrace{Round: round, DurationMs: time.Since(start).Milliseconds()}
	if err != nil {
		trace.Code = apperror.CodeOf(err)
		t.record.LLM = append(t.record.LLM, trace)
		return nil, err
	}
	trace.Provider = resp.Provider
	trace.Model = resp.Model
	trace.FinishReason = resp.FinishReason
	trace.ToolCalls = len(resp.ToolCalls)
	trace.InputTokens = resp.Usage.InputTokens
	trace.OutputTokens = resp.Usage.OutputTokens
	t.record.LLM = append(t.record.LLM, trace)

	t.emit.DevStatus("llm round", map[string]interface{}{
		"round":      round,
		"provider":   resp.Provider,
		"tool_calls": len(resp.ToolCalls),
	})
	return resp, nil
}

func (t *turn) messages() []llm.Message {
	out := make([]llm.Message, 0, len(t.state.Conversation)+len(t.notes)+1)
	out = append(out, llm.Message{Role: llm.RoleSystem, Content: t.r.opts.SystemPrompt})
	for _, note := range t.notes {
		out = append(out, llm.Message{Role: llm.RoleSystem, Content: note})
	}
	return append(out, t.state.Conversation...)
}

func (t *turn) finish(text, finishReason string, outcome Outcome) *Reply {
	if finishReason == "" {
		finishReason = llm.FinishStop
	}
	t.reply.Text = text
	t.reply.FinishReason = finishReason
	t.reply.Outcome = outcome
	return t.reply
}

// pause ends the turn on a guardrail prompt without another model call
func (t *turn) pause(outcome Outcome, finishReason, prompt string) {
	t.reply.Outcome = outcome
	t.reply.FinishReason = finishReason
	t.reply.Text = prompt
}

func (t *turn) pauseReply() *Reply {
	t.state.Conversation = append(t.state.Conversation, llm.Message{Role: llm.RoleAssistant, Content: t.reply.Text})
	return t.reply
}

func (t *turn) skipCall(call llm.ToolCall, paused bool) {
	reason := "limit"
	content := fmt.Sprintf(`{"status":"not_executed","reason":"at most %d tool calls run per round"}`, t.r.opts.MaxToolCallsPerRound)
	if paused {
		reason = "paused"
		content = `{"status":"not_executed","reason":"waiting for the customer"}`
	}
	t.record.Tools = append(t.record.Tools, diagnostics.ToolTrace{CallID: call.ID, Tool: call.Name, Decision: "skipped_" + reason})
	t.appendToolResult(call, content)
}

func (t *turn) appendToolResult(call llm.ToolCall, content string) {
	t.state.Conversation = append(t.state.Conversation, llm.Message{
		Role:       llm.RoleTool,
		Content:    content,
		ToolCallID: call.ID,
		Name:       call.Name,
	})
}

// appendToolExchange records a call the runner made on the model's behalf as an
// assistant tool call followed by its result.
func (t *turn) appendToolExchange(call llm.ToolCall, content string) {
	t.state.Conversation = append(t.state.Conversation, llm.Message{
		Role:      llm.RoleAssistant,
		ToolCalls: []llm.ToolCall{call},
	})
	t.appendToolResult(call, content)
}

func (t *turn) syntheticCall(name string, args map[string]interface{}) llm.ToolCall {
	data, err := json.Marshal(args)
	if err != nil {
		data = []byte("{}")
	}
	return llm.ToolCall{
		ID:        "call_" + gonanoid.Must(12),
		Name:      name,
		Arguments: string(data),
	}
}
