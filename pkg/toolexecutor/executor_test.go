package toolexecutor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/harun/shopagent/pkg/apperror"
	"github.com/harun/shopagent/pkg/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTool struct {
	name     string
	mutation bool
	params   map[string]interface{}
	run      func(ctx context.Context, args map[string]interface{}, tc ToolContext) (*Result, error)
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "fake " + f.name }
func (f *fakeTool) Mutation() bool      { return f.mutation }

func (f *fakeTool) Parameters() map[string]interface{} {
	if f.params != nil {
		return f.params
	}
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{"type": "string"},
		},
		"required": []string{"query"},
	}
}

func (f *fakeTool) Execute(ctx context.Context, args map[string]interface{}, _ *session.MCPState, tc ToolContext, _ string) (*Result, error) {
	if f.run == nil {
		return &Result{Output: args}, nil
	}
	return f.run(ctx, args, tc)
}

func newExecutor(t *testing.T, tools ...Tool) *ToolExecutor {
	t.Helper()
	te := New(Config{Logger: zerolog.Nop(), Timeout: time.Second})
	for _, tool := range tools {
		require.NoError(t, te.RegisterTool(tool))
	}
	return te
}

func TestToolExecutor_RegisterTool(t *testing.T) {
	te := newExecutor(t, &fakeTool{name: "product_search"}, &fakeTool{name: "cart_add_item", mutation: true})

	tool, ok := te.GetTool("product_search")
	require.True(t, ok)
	assert.Equal(t, "product_search", tool.Name())

	assert.True(t, te.IsMutation("cart_add_item"))
	assert.False(t, te.IsMutation("product_search"))
	assert.False(t, te.IsMutation("missing"))

	defs := te.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "product_search", defs[0].Name)
	assert.Equal(t, "cart_add_item", defs[1].Name)
}

func TestToolExecutor_RegisterTool_Invalid(t *testing.T) {
	tests := []struct {
		name string
		tool Tool
	}{
		{name: "nil tool", tool: nil},
		{name: "empty name", tool: &fakeTool{}},
		{name: "bad schema", tool: &fakeTool{name: "bad", params: map[string]interface{}{"type": 42}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			te := newExecutor(t)
			assert.Error(t, te.RegisterTool(tt.tool))
		})
	}

	t.Run("duplicate", func(t *testing.T) {
		te := newExecutor(t, &fakeTool{name: "dup"})
		assert.Error(t, te.RegisterTool(&fakeTool{name: "dup"}))
	})
}

func TestToolExecutor_Execute(t *testing.T) {
	te := newExecutor(t, &fakeTool{
		name: "product_search",
		run: func(_ context.Context, args map[string]interface{}, tc ToolContext) (*Result, error) {
			return &Result{Output: map[string]interface{}{"query": args["query"], "culture": tc.Culture}}, nil
		},
	})

	result, err := te.Execute(t.Context(), "product_search", map[string]interface{}{"query": "shoes"}, &session.MCPState{}, ToolContext{Culture: "en-US"}, "acme")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"query": "shoes", "culture": "en-US"}, result.Output)
}

func TestToolExecutor_Execute_Errors(t *testing.T) {
	te := New(Config{Logger: zerolog.Nop(), Timeout: 20 * time.Millisecond})
	require.NoError(t, te.RegisterTool(&fakeTool{name: "product_search"}))
	require.NoError(t, te.RegisterTool(&fakeTool{
		name:   "slow",
		params: map[string]interface{}{"type": "object"},
		run: func(ctx context.Context, _ map[string]interface{}, _ ToolContext) (*Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}))
	require.NoError(t, te.RegisterTool(&fakeTool{
		name:   "failing",
		params: map[string]interface{}{"type": "object"},
		run: func(context.Context, map[string]interface{}, ToolContext) (*Result, error) {
			return nil, apperror.Tool("failing", errors.New("out of stock"))
		},
	}))

	tests := []struct {
		name     string
		tool     string
		args     map[string]interface{}
		wantCode string
	}{
		{name: "unknown tool", tool: "nope", args: nil, wantCode: apperror.CodeValidation},
		{name: "missing required", tool: "product_search", args: map[string]interface{}{}, wantCode: apperror.CodeValidation},
		{name: "wrong type", tool: "product_search", args: map[string]interface{}{"query": 3}, wantCode: apperror.CodeValidation},
		{name: "timeout", tool: "slow", args: map[string]interface{}{}, wantCode: apperror.CodeTimeout},
		{name: "tool error passes through", tool: "failing", args: map[string]interface{}{}, wantCode: apperror.CodeMCPTool},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := te.Execute(t.Context(), tt.tool, tt.args, &session.MCPState{}, ToolContext{}, "acme")
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, apperror.CodeOf(err))
		})
	}
}

func TestToolExecutor_Execute_Cancelled(t *testing.T) {
	te := newExecutor(t, &fakeTool{
		name:   "slow",
		params: map[string]interface{}{"type": "object"},
		run: func(ctx context.Context, _ map[string]interface{}, _ ToolContext) (*Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := te.Execute(ctx, "slow", map[string]interface{}{}, &session.MCPState{}, ToolContext{}, "acme")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFormatOutput(t *testing.T) {
	out, truncated := FormatOutput(&Result{Output: map[string]interface{}{"ok": true}})
	assert.Equal(t, `{"ok":true}`, out)
	assert.False(t, truncated)

	out, truncated = FormatOutput(&Result{Output: string(make([]byte, MaxOutputSize+10))})
	assert.True(t, truncated)
	assert.Len(t, out, MaxOutputSize+len(truncationMarker))

	out, _ = FormatOutput(nil)
	assert.Equal(t, "{}", out)
}

func TestFormatOutput_KeepsRunesWhole(t *testing.T) {
	// "é" is two bytes; the leading "a" puts a continuation byte at the cut.
	content := "a" + strings.Repeat("é", MaxOutputSize)
	out, truncated := FormatOutput(&Result{Output: content})
	require.True(t, truncated)
	assert.True(t, utf8.ValidString(out))
	assert.True(t, strings.HasSuffix(out, truncationMarker))
	assert.Len(t, out, MaxOutputSize-1+len(truncationMarker))
}

func TestFormatError(t *testing.T) {
	out := FormatError(apperror.Transport(503, errors.New("secret upstream body")))
	assert.Contains(t, out, apperror.CodeMCPTransport)
	assert.NotContains(t, out, "secret upstream body")

	out = FormatError(apperror.Validation("tool arguments are invalid", map[string]interface{}{"errors": []string{"query is required"}}))
	assert.Contains(t, out, "query is required")
}
