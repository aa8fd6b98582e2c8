package compare

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/harun/shopagent/pkg/llm"
	"github.com/tidwall/gjson"
)

const highlightsPrompt = `You summarize product comparisons for a shop assistant.
Reply with a single JSON object and nothing else:
{"summary": "<one or two sentences>", "highlights": ["<short point>", ...]}
Use at most 4 highlights. Only use facts present in the table.`

const maxHighlights = 4

// Highlights is an optional narrative layer over a Table
type Highlights struct {
	Summary    string   `json:"summary"`
	Highlights []string `json:"highlights,omitempty"`
}

// GenerateHighlights asks the model to summarize table. Any failure yields nil;
// the table stands on its own.
func GenerateHighlights(ctx context.Context, client llm.Client, model string, table Table) *Highlights {
	if client == nil || len(table.Rows) == 0 {
		return nil
	}
	data, err := json.Marshal(table)
	if err != nil {
		return nil
	}

	resp, err := client.RunWithTools(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: highlightsPrompt},
		{Role: llm.RoleUser, Content: string(data)},
	}, nil, model)
	if err != nil || resp == nil {
		return nil
	}
	return parseHighlights(resp.Content)
}

// parseHighlights accepts the JSON object optionally wrapped in prose or a code fence
func parseHighlights(content string) *Highlights {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil
	}
	raw := content[start : end+1]
	if !gjson.Valid(raw) {
		return nil
	}

	parsed := gjson.Parse(raw)
	h := &Highlights{Summary: strings.TrimSpace(parsed.Get("summary").String())}
	for _, item := range parsed.Get("highlights").Array() {
		if s := strings.TrimSpace(item.String()); s != "" && len(h.Highlights) < maxHighlights {
			h.Highlights = append(h.Highlights, s)
		}
	}
	if h.Summary == "" && len(h.Highlights) == 0 {
		return nil
	}
	return h
}
