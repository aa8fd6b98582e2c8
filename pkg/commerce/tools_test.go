package commerce

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/harun/shopagent/pkg/apperror"
	"github.com/harun/shopagent/pkg/session"
	"github.com/harun/shopagent/pkg/toolexecutor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	tenantID string
	name     string
	args     map[string]interface{}
}

type fakeCaller struct {
	replies map[string]string
	err     error
	calls   []recordedCall
}

func (f *fakeCaller) CallTool(_ context.Context, _ *session.MCPState, tenantID, name string, args map[string]interface{}) (string, error) {
	f.calls = append(f.calls, recordedCall{tenantID: tenantID, name: name, args: args})
	if f.err != nil {
		return "", f.err
	}
	return f.replies[name], nil
}

func toolByName(t *testing.T, caller Caller, name string) toolexecutor.Tool {
	t.Helper()
	for _, tool := range Tools(caller) {
		if tool.Name() == name {
			return tool
		}
	}
	t.Fatalf("tool %s not found", name)
	return nil
}

func TestTools_Registration(t *testing.T) {
	exec := toolexecutor.New(toolexecutor.Config{})
	for _, tool := range Tools(&fakeCaller{}) {
		require.NoError(t, exec.RegisterTool(tool))
	}

	assert.Len(t, exec.Definitions(), 6)
	assert.False(t, exec.IsMutation(ToolProductSearch))
	assert.False(t, exec.IsMutation(ToolProductGet))
	assert.False(t, exec.IsMutation(ToolCartGet))
	assert.True(t, exec.IsMutation(ToolCartAddItem))
	assert.True(t, exec.IsMutation(ToolCartUpdateItem))
	assert.True(t, exec.IsMutation(ToolCartRemoveItem))

	for _, def := range exec.Definitions() {
		props := def.Parameters["properties"].(map[string]interface{})
		assert.NotContains(t, props, toolexecutor.ContextKey, def.Name)
	}
}

func TestSearchTool(t *testing.T) {
	caller := &fakeCaller{replies: map[string]string{
		ToolProductSearch: `{"products":[{"id":"A","name":"Runner","brand":"Acme"},{"id":"B","name":"Trail"}]}`,
	}}
	tc := toolexecutor.ToolContext{Culture: "de-DE", CustomerID: "c-1"}

	result, err := toolByName(t, caller, ToolProductSearch).Execute(t.Context(), map[string]interface{}{"query": "running shoes"}, &session.MCPState{}, tc, "acme")
	require.NoError(t, err)

	require.Len(t, result.Hits, 2)
	assert.Equal(t, 1, result.Hits[0].Index)
	assert.Equal(t, "A", result.Hits[0].ProductID)
	assert.Equal(t, 2, result.Hits[1].Index)

	require.Len(t, caller.calls, 1)
	call := caller.calls[0]
	assert.Equal(t, "acme", call.tenantID)
	assert.Equal(t, "running shoes", call.args["query"])
	assert.Equal(t, defaultSearchLimit, call.args["limit"])
	assert.Equal(t, tc, call.args[toolexecutor.ContextKey])
}

func TestSearchTool_UnrecognizedPayload(t *testing.T) {
	caller := &fakeCaller{replies: map[string]string{ToolProductSearch: `no results`}}

	result, err := toolByName(t, caller, ToolProductSearch).Execute(t.Context(), map[string]interface{}{"query": "x"}, &session.MCPState{}, toolexecutor.ToolContext{}, "acme")
	require.NoError(t, err)
	assert.Empty(t, result.Hits)
	assert.Equal(t, "no results", result.Output)
}

func TestProductTool(t *testing.T) {
	caller := &fakeCaller{replies: map[string]string{
		ToolProductGet: `{"id":"A","name":"Runner","variants":[{"id":"v1","partNo":"R-1"}]}`,
	}}

	result, err := toolByName(t, caller, ToolProductGet).Execute(t.Context(), map[string]interface{}{"product_id": "A"}, &session.MCPState{}, toolexecutor.ToolContext{}, "acme")
	require.NoError(t, err)
	require.NotNil(t, result.Product)
	assert.Equal(t, "A", result.Product.ID)
	require.Len(t, result.Product.Variants, 1)
	assert.Equal(t, "R-1", result.Product.Variants[0].PartNo)
}

func TestCartTools(t *testing.T) {
	caller := &fakeCaller{replies: map[string]string{
		ToolCartAddItem: `{"lines":[{"id":"L1","quantity":1}]}`,
	}}

	args := map[string]interface{}{"product_id": "v1"}
	result, err := toolByName(t, caller, ToolCartAddItem).Execute(t.Context(), args, &session.MCPState{}, toolexecutor.ToolContext{}, "acme")
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`{"lines":[{"id":"L1","quantity":1}]}`), result.Output)

	require.Len(t, caller.calls, 1)
	assert.Equal(t, 1, caller.calls[0].args["quantity"])
	assert.NotContains(t, args, "quantity")
}

func TestCartTools_Error(t *testing.T) {
	caller := &fakeCaller{err: apperror.Tool(ToolCartRemoveItem, errors.New("line not found"))}

	_, err := toolByName(t, caller, ToolCartRemoveItem).Execute(t.Context(), map[string]interface{}{"line_id": "L9"}, &session.MCPState{}, toolexecutor.ToolContext{}, "acme")
	require.Error(t, err)
	assert.Equal(t, apperror.CodeMCPTool, apperror.CodeOf(err))
}
