package toolexecutor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harun/shopagent/internal/observability"
	"github.com/harun/shopagent/internal/tracing"
	"github.com/harun/shopagent/pkg/apperror"
	"github.com/harun/shopagent/pkg/llm"
	"github.com/harun/shopagent/pkg/session"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const defaultTimeout = 30 * time.Second

// Config holds executor configuration
type Config struct {
	Logger zerolog.Logger
	// Timeout bounds a single tool execution.
	Timeout time.Duration
}

// ToolExecutor registers tools, validates their arguments and runs them
type ToolExecutor struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*gojsonschema.Schema
	order   []string

	timeout time.Duration
	logger  zerolog.Logger
}

// New creates a new ToolExecutor
func New(cfg Config) *ToolExecutor {
	observability.EnsureRegistered()

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &ToolExecutor{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*gojsonschema.Schema),
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}
}

// RegisterTool compiles the tool schema and adds the tool
func (te *ToolExecutor) RegisterTool(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("tool cannot be nil")
	}
	if tool.Name() == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if tool.Description() == "" {
		return fmt.Errorf("tool description cannot be empty for %s", tool.Name())
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(tool.Parameters()))
	if err != nil {
		return fmt.Errorf("invalid schema for tool %s: %w", tool.Name(), err)
	}

	te.mu.Lock()
	defer te.mu.Unlock()

	if _, exists := te.tools[tool.Name()]; exists {
		return fmt.Errorf("tool already registered: %s", tool.Name())
	}
	te.tools[tool.Name()] = tool
	te.schemas[tool.Name()] = schema
	te.order = append(te.order, tool.Name())

	te.logger.Debug().Str("tool", tool.Name()).Bool("mutation", tool.Mutation()).Msg("Tool registered")
	return nil
}

// GetTool returns a tool by name
func (te *ToolExecutor) GetTool(name string) (Tool, bool) {
	te.mu.RLock()
	defer te.mu.RUnlock()
	tool, ok := te.tools[name]
	return tool, ok
}

// IsMutation reports whether name is a registered cart mutation
func (te *ToolExecutor) IsMutation(name string) bool {
	tool, ok := te.GetTool(name)
	return ok && tool.Mutation()
}

// Definitions returns the tool schemas for the model, in registration order
func (te *ToolExecutor) Definitions() []llm.ToolDef {
	te.mu.RLock()
	defer te.mu.RUnlock()

	defs := make([]llm.ToolDef, 0, len(te.order))
	for _, name := range te.order {
		tool := te.tools[name]
		defs = append(defs, llm.ToolDef{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Parameters(),
		})
	}
	return defs
}

// Execute validates args and runs the tool under the executor timeout. Errors are
// normalized into the apperror taxonomy.
func (te *ToolExecutor) Execute(ctx context.Context, name string, args map[string]interface{}, mcp *session.MCPState, tc ToolContext, tenantID string) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "shopagent.toolexecutor", "tool.execute",
		attribute.String("tool", name),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, te.logger).With().Str("tool", name).Logger()

	te.mu.RLock()
	tool := te.tools[name]
	schema := te.schemas[name]
	te.mu.RUnlock()

	if tool == nil {
		err := apperror.Validation(fmt.Sprintf("unknown tool: %s", name), map[string]interface{}{"tool": name})
		observability.RecordToolError(name, err.Code)
		span.SetStatus(codes.Error, err.Code)
		return nil, err
	}

	if err := validateParameters(schema, args); err != nil {
		observability.RecordToolError(name, apperror.CodeValidation)
		span.SetStatus(codes.Error, apperror.CodeValidation)
		logger.Debug().Err(err).Msg("Parameter validation failed")
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, te.timeout)
	defer cancel()

	start := time.Now()
	result, err := tool.Execute(timeoutCtx, args, mcp, tc, tenantID)
	duration := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = apperror.Timeout(fmt.Errorf("tool %s timed out after %v: %w", name, te.timeout, err))
		}
		if !errors.Is(err, context.Canceled) {
			err = apperror.Normalize(err)
		}
		observability.RecordToolExecution(name, duration, false)
		observability.RecordToolError(name, apperror.CodeOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, apperror.CodeOf(err))
		logger.Warn().Dur("duration", duration).Str("code", apperror.CodeOf(err)).Err(err).Msg("Tool execution failed")
		return nil, err
	}
	if result == nil {
		result = &Result{}
	}

	observability.RecordToolExecution(name, duration, true)
	logger.Debug().Dur("duration", duration).Msg("Tool execution completed")
	return result, nil
}

// validateParameters validates args against a compiled JSON schema
func validateParameters(schema *gojsonschema.Schema, args map[string]interface{}) error {
	if schema == nil {
		return nil
	}
	if args == nil {
		args = map[string]interface{}{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return apperror.Validation("tool arguments could not be validated", map[string]interface{}{"error": err.Error()})
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return apperror.Validation("tool arguments are invalid", map[string]interface{}{"errors": problems})
}
