package diagnostics

import "time"

// ToolTrace is one dispatched tool call
type ToolTrace struct {
	CallID     string `json:"call_id"`
	Tool       string `json:"tool"`
	Arguments  string `json:"arguments,omitempty"` // redacted preview
	Decision   string `json:"decision,omitempty"`  // guardrail outcome when not executed
	OK         bool   `json:"ok"`
	Code       string `json:"code,omitempty"`
	Truncated  bool   `json:"truncated,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// LLMTrace is one model round
type LLMTrace struct {
	Round        int    `json:"round"`
	Provider     string `json:"provider,omitempty"`
	Model        string `json:"model,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
	ToolCalls    int    `json:"tool_calls"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	DurationMs   int64  `json:"duration_ms"`
	Code         string `json:"code,omitempty"`
}

// RunRecord is an immutable snapshot of one turn
type RunRecord struct {
	RunID          string      `json:"run_id"`
	TraceID        string      `json:"trace_id,omitempty"`
	TenantID       string      `json:"tenant_id"`
	SessionKey     string      `json:"session_key"`
	Message        string      `json:"message"`
	ContextPreview string      `json:"context_preview,omitempty"`
	Outcome        string      `json:"outcome"`
	FinishReason   string      `json:"finish_reason,omitempty"`
	Code           string      `json:"code,omitempty"`
	Rounds         int         `json:"rounds"`
	Tools          []ToolTrace `json:"tools,omitempty"`
	LLM            []LLMTrace  `json:"llm,omitempty"`
	StartedAt      time.Time   `json:"started_at"`
	DurationMs     int64       `json:"duration_ms"`
}

// Summary is the list view of a record
type Summary struct {
	RunID      string    `json:"run_id"`
	SessionKey string    `json:"session_key"`
	Outcome    string    `json:"outcome"`
	Rounds     int       `json:"rounds"`
	ToolCalls  int       `json:"tool_calls"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
}

func (r *RunRecord) summary() Summary {
	return Summary{
		RunID:      r.RunID,
		SessionKey: r.SessionKey,
		Outcome:    r.Outcome,
		Rounds:     r.Rounds,
		ToolCalls:  len(r.Tools),
		StartedAt:  r.StartedAt,
		DurationMs: r.DurationMs,
	}
}

func (r *RunRecord) clone() *RunRecord {
	c := *r
	c.Tools = append([]ToolTrace(nil), r.Tools...)
	c.LLM = append([]LLMTrace(nil), r.LLM...)
	return &c
}
