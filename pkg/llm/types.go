package llm

import "context"

// Role tags a conversation message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Finish reasons reported by Response.FinishReason
const (
	FinishStop      = "stop"
	FinishToolCalls = "tool_calls"
	FinishLength    = "length"
)

// Message is one provider-neutral conversation entry
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a tool invocation requested by the model. Arguments is the raw
// JSON string the model produced and may fail to parse.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDef describes a tool to the model
type ToolDef struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Usage tracks token consumption
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is the result of one model call
type Response struct {
	Content      string     `json:"content"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	FinishReason string     `json:"finish_reason"`
	Usage        Usage      `json:"usage"`
	Provider     string     `json:"provider,omitempty"`
	Model        string     `json:"model,omitempty"`
}

// DeltaFunc receives streamed text as it arrives
type DeltaFunc func(text string)

// Client is the narrow model contract the agent loop depends on. An empty model
// selects the client's default.
type Client interface {
	RunWithTools(ctx context.Context, messages []Message, tools []ToolDef, model string) (*Response, error)
	StreamWithTools(ctx context.Context, messages []Message, tools []ToolDef, model string, onDelta DeltaFunc) (*Response, error)
}

// Provider is a Client bound to one vendor credential
type Provider interface {
	Client
	Name() string
}

// Options are generation settings shared by all providers
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
}
