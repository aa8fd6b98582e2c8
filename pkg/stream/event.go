package stream

// Type names a stream event
type Type string

const (
	TypeStatus    Type = "status"
	TypeDevStatus Type = "dev_status"
	TypeToolStart Type = "tool_start"
	TypeToolEnd   Type = "tool_end"
	TypeDelta     Type = "delta"
	TypeFinal     Type = "final"
	TypeError     Type = "error"
)

// Terminal reports whether t closes the stream
func (t Type) Terminal() bool {
	return t == TypeFinal || t == TypeError
}

// Event is one ordered stream frame
type Event struct {
	Type      Type        `json:"type"`
	Seq       int64       `json:"seq"`
	Timestamp int64       `json:"timestamp"`
	RunID     string      `json:"run_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// StatusData is user-facing progress copy
type StatusData struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// DevStatusData carries developer diagnostics
type DevStatusData struct {
	Message string                 `json:"message"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
}

// ToolStartData announces a tool call
type ToolStartData struct {
	CallID string `json:"call_id"`
	Tool   string `json:"tool"`
}

// ToolEndData closes a ToolStartData with the same CallID
type ToolEndData struct {
	CallID     string `json:"call_id"`
	Tool       string `json:"tool"`
	OK         bool   `json:"ok"`
	Code       string `json:"code,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// DeltaData is a chunk of assistant text
type DeltaData struct {
	Text string `json:"text"`
}

// ErrorData is the terminal failure payload
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
