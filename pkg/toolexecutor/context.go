package toolexecutor

import (
	"encoding/json"
	"strings"

	"github.com/harun/shopagent/pkg/apperror"
)

// ContextKey is the argument name models use when they try to supply tenant context
const ContextKey = "context"

const contextPreviewLimit = 200

// Previewer renders a redacted, bounded preview of a value
type Previewer interface {
	Preview(v interface{}, max int) string
}

// ParseArguments decodes the raw argument string of a tool call. An empty string
// is an empty object; anything else that is not a JSON object is malformed.
func ParseArguments(toolName, raw string) (map[string]interface{}, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]interface{}{}, nil
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, apperror.MalformedToolArguments(toolName, err)
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return args, nil
}

// StripContext removes any model-supplied context from args. The returned preview
// is redacted and only meant for diagnostics. args is not modified.
func StripContext(args map[string]interface{}, redactor Previewer) (map[string]interface{}, string) {
	supplied, ok := args[ContextKey]
	if !ok {
		return args, ""
	}

	stripped := make(map[string]interface{}, len(args)-1)
	for k, v := range args {
		if k != ContextKey {
			stripped[k] = v
		}
	}

	preview := ""
	if redactor != nil {
		preview = redactor.Preview(supplied, contextPreviewLimit)
	}
	return stripped, preview
}
