package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/harun/shopagent/internal/tracing"
	"github.com/harun/shopagent/pkg/apperror"
	"github.com/harun/shopagent/pkg/retry"
	"github.com/harun/shopagent/pkg/session"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
)

const (
	// SessionHeader carries backend session affinity
	SessionHeader = "Mcp-Session-Id"
	// TenantHeader names the tenant a call is made for
	TenantHeader = "X-Tenant-Id"

	protocolVersion  = "2024-11-05"
	methodNotFound   = -32601
	maxResponseBytes = 10 << 20
	defaultTimeout   = 15 * time.Second
)

// Config holds commerce client configuration
type Config struct {
	Endpoint      string
	Timeout       time.Duration
	Retry         retry.Policy
	OAuth         *OAuthConfig
	HTTPClient    *http.Client
	ClientName    string
	ClientVersion string
	Logger        zerolog.Logger
}

// Client speaks JSON-RPC over HTTP POST to the commerce backend. Request ids and
// session affinity live in the caller's session.MCPState, so a Client is shared
// by all sessions.
type Client struct {
	endpoint   string
	timeout    time.Duration
	retry      retry.Policy
	httpClient *http.Client
	tokens     *tokenSource
	clientInfo map[string]string
	logger     zerolog.Logger
}

// NewClient creates a new commerce backend client
func NewClient(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("commerce endpoint is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.ClientName == "" {
		cfg.ClientName = "shopagent"
	}
	if cfg.ClientVersion == "" {
		cfg.ClientVersion = "dev"
	}

	policy := cfg.Retry
	if policy.Attempts <= 0 {
		policy = retry.DefaultPolicy(nil)
	}
	if policy.ShouldRetry == nil {
		policy.ShouldRetry = apperror.IsRetryableCommerce
	}
	if policy.Scope == "" {
		policy.Scope = "commerce"
	}

	c := &Client{
		endpoint:   cfg.Endpoint,
		timeout:    cfg.Timeout,
		retry:      policy,
		httpClient: cfg.HTTPClient,
		clientInfo: map[string]string{"name": cfg.ClientName, "version": cfg.ClientVersion},
		logger:     cfg.Logger,
	}

	if cfg.OAuth != nil {
		tokens, err := newTokenSource(*cfg.OAuth, cfg.HTTPClient)
		if err != nil {
			return nil, err
		}
		c.tokens = tokens
	}
	return c, nil
}

// CallTool invokes a backend tool and returns its text payload. The first call
// of a session performs the initialize handshake.
func (c *Client) CallTool(ctx context.Context, mcp *session.MCPState, tenantID, name string, args map[string]interface{}) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "shopagent.commerce", "commerce.call_tool",
		tracing.CommerceAttributes(name, tenantID)...,
	)
	defer span.End()

	if mcp == nil {
		mcp = &session.MCPState{}
	}
	if args == nil {
		args = map[string]interface{}{}
	}

	initialized := mcp.Started()
	text, err := retry.DoValue(ctx, c.retry, func(ctx context.Context) (string, error) {
		if !initialized {
			if err := c.initialize(ctx, mcp, tenantID); err != nil {
				return "", err
			}
			initialized = true
		}
		return c.callTool(ctx, mcp, tenantID, name, args)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperror.CodeOf(err))
		return "", err
	}
	return text, nil
}

func (c *Client) initialize(ctx context.Context, mcp *session.MCPState, tenantID string) error {
	params := map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]interface{}{},
		"clientInfo":      c.clientInfo,
	}
	_, err := c.call(ctx, mcp, tenantID, "initialize", params)
	if appErr, ok := apperror.As(err); ok && appErr.Code == apperror.CodeMCPProtocol && appErr.Details["rpc_code"] == methodNotFound {
		err = nil
	}
	if err != nil {
		return err
	}

	logger := tracing.LoggerFromContext(ctx, c.logger)
	logger.Debug().
		Bool("session_affinity", mcp.SessionID != "").
		Msg("Commerce session initialized")
	return nil
}

func (c *Client) callTool(ctx context.Context, mcp *session.MCPState, tenantID, name string, args map[string]interface{}) (string, error) {
	raw, err := c.call(ctx, mcp, tenantID, "tools/call", callToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", err
	}

	var result callToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", apperror.Protocol(0, fmt.Errorf("decode tools/call result: %w", err))
	}

	text := result.text()
	if text == "" && len(result.StructuredContent) > 0 {
		text = string(result.StructuredContent)
	}
	if result.IsError {
		return "", apperror.Tool(name, errors.New(truncate(text, 500)))
	}
	return text, nil
}

// call performs one JSON-RPC exchange. It consumes a request id and records the
// session header the backend returns.
func (c *Client) call(ctx context.Context, mcp *session.MCPState, tenantID, method string, params interface{}) (json.RawMessage, error) {
	id := mcp.NextID()
	body, err := json.Marshal(rpcRequest{
		JSONRPC: jsonrpcVersion,
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, apperror.Internal(fmt.Errorf("marshal %s request: %w", method, err))
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, apperror.Internal(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if tenantID != "" {
		req.Header.Set(TenantHeader, tenantID)
	}
	if mcp.SessionID != "" {
		req.Header.Set(SessionHeader, mcp.SessionID)
	}
	if traceID := tracing.GetTraceID(ctx); traceID != "" {
		req.Header.Set("X-Trace-Id", traceID)
	}
	if c.tokens != nil {
		if err := c.tokens.authorize(req); err != nil {
			return nil, err
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			return nil, apperror.Timeout(fmt.Errorf("%s after %v: %w", method, c.timeout, err))
		}
		return nil, apperror.Transport(0, fmt.Errorf("%s: %w", method, err))
	}
	defer resp.Body.Close()

	if sid := resp.Header.Get(SessionHeader); sid != "" {
		mcp.SessionID = sid
	}

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, apperror.Transport(resp.StatusCode, fmt.Errorf("%s: unexpected status %d", method, resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, apperror.Timeout(fmt.Errorf("%s: read response: %w", method, err))
		}
		return nil, apperror.Transport(0, fmt.Errorf("%s: read response: %w", method, err))
	}
	if len(data) > maxResponseBytes {
		return nil, apperror.Protocol(0, fmt.Errorf("%s: response exceeds %d bytes", method, maxResponseBytes))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return nil, apperror.Protocol(0, fmt.Errorf("%s: decode response: %w", method, err))
	}
	if rpcResp.Error != nil {
		return nil, apperror.Protocol(rpcResp.Error.Code, fmt.Errorf("%s: %w", method, rpcResp.Error))
	}
	if rpcResp.ID == nil || *rpcResp.ID != id {
		return nil, apperror.Protocol(0, fmt.Errorf("%s: response id does not match request id %d", method, id))
	}
	return rpcResp.Result, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
