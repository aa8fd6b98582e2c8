package toolexecutor

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/harun/shopagent/pkg/apperror"
)

// MaxOutputSize bounds tool output handed back to the model
const MaxOutputSize = 10 * 1024

const truncationMarker = "\n... [output truncated]"

// FormatOutput renders a result as the tool message content. Output past
// MaxOutputSize is cut and marked.
func FormatOutput(result *Result) (string, bool) {
	if result == nil {
		return "{}", false
	}

	var content string
	switch out := result.Output.(type) {
	case nil:
		content = "{}"
	case string:
		content = out
	default:
		data, err := json.Marshal(out)
		if err != nil {
			content = fmt.Sprintf("%v", out)
		} else {
			content = string(data)
		}
	}

	if len(content) <= MaxOutputSize {
		return content, false
	}
	cut := MaxOutputSize
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + truncationMarker, true
}

// FormatError renders a tool failure for the model. Only the code, the safe
// message and validation problems are exposed.
func FormatError(err error) string {
	appErr := apperror.Normalize(err)
	body := map[string]interface{}{
		"code":    appErr.Code,
		"message": appErr.Message,
	}
	switch appErr.Code {
	case apperror.CodeValidation:
		if problems, ok := appErr.Details["errors"]; ok {
			body["details"] = problems
		}
	case apperror.CodeMalformedToolArguments:
		if appErr.Err != nil {
			body["details"] = appErr.Err.Error()
		}
	}
	data, _ := json.Marshal(map[string]interface{}{"error": body})
	return string(data)
}
