package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIConfig configures an OpenAI-compatible chat completions client
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Options
}

// OpenAIClient implements Provider on the chat completions API
type OpenAIClient struct {
	client openai.Client
	opts   Options
}

// NewOpenAIClient creates a new OpenAI provider
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	requestOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		client: openai.NewClient(requestOpts...),
		opts:   cfg.Options,
	}, nil
}

func (c *OpenAIClient) Name() string {
	return "openai"
}

// RunWithTools makes a single chat completion call
func (c *OpenAIClient) RunWithTools(ctx context.Context, messages []Message, tools []ToolDef, model string) (*Response, error) {
	params := c.buildParams(messages, tools, model)

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classifyError(err)
	}
	if len(completion.Choices) == 0 {
		return nil, classifyError(fmt.Errorf("no response choices returned"))
	}

	choice := completion.Choices[0]
	resp := openAIResponse(choice.Message, choice.FinishReason)
	resp.Usage = Usage{
		InputTokens:  int(completion.Usage.PromptTokens),
		OutputTokens: int(completion.Usage.CompletionTokens),
	}
	resp.Model = completion.Model
	return resp, nil
}

// StreamWithTools streams text deltas to onDelta and returns the accumulated response
func (c *OpenAIClient) StreamWithTools(ctx context.Context, messages []Message, tools []ToolDef, model string, onDelta DeltaFunc) (*Response, error) {
	params := c.buildParams(messages, tools, model)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" && onDelta != nil {
			onDelta(chunk.Choices[0].Delta.Content)
		}
	}
	if err := stream.Err(); err != nil {
		return nil, classifyError(err)
	}
	if len(acc.Choices) == 0 {
		return nil, classifyError(fmt.Errorf("stream ended without choices"))
	}

	choice := acc.Choices[0]
	resp := openAIResponse(choice.Message, choice.FinishReason)
	resp.Usage = Usage{
		InputTokens:  int(acc.Usage.PromptTokens),
		OutputTokens: int(acc.Usage.CompletionTokens),
	}
	resp.Model = acc.Model
	return resp, nil
}

func openAIResponse(msg openai.ChatCompletionMessage, finishReason string) *Response {
	resp := &Response{
		Content:      msg.Content,
		FinishReason: normalizeFinishReason(finishReason),
		Provider:     "openai",
	}
	for _, tc := range msg.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	if len(resp.ToolCalls) > 0 {
		resp.FinishReason = FinishToolCalls
	}
	return resp
}

func normalizeFinishReason(reason string) string {
	switch reason {
	case "tool_calls", "function_call", "tool_use":
		return FinishToolCalls
	case "length", "max_tokens":
		return FinishLength
	case "", "stop", "end_turn", "stop_sequence":
		return FinishStop
	}
	return reason
}

func (c *OpenAIClient) buildParams(messages []Message, tools []ToolDef, model string) openai.ChatCompletionNewParams {
	if model == "" {
		model = c.opts.Model
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: toOpenAIMessages(messages),
	}
	if c.opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.opts.MaxTokens))
	}
	if c.opts.Temperature > 0 {
		params.Temperature = openai.Float(c.opts.Temperature)
	}

	for _, tool := range tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters:  openai.FunctionParameters(tool.Parameters),
			},
		})
	}
	return params
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case RoleUser:
			out = append(out, openai.UserMessage(msg.Content))
		case RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(msg.Content))
				continue
			}
			toolCalls := make([]openai.ChatCompletionMessageToolCall, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunction{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			assistant := openai.ChatCompletionMessage{
				Role:      "assistant",
				Content:   msg.Content,
				ToolCalls: toolCalls,
			}
			out = append(out, assistant.ToParam())
		case RoleTool:
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))
		}
	}
	return out
}
