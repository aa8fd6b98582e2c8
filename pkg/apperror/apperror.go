// Package apperror normalizes every failure of a turn into one category with an
// HTTP status, a machine code, a safe user-facing message and non-sensitive details.
//
// Invariants:
// - Message never carries upstream bodies, secrets or stack traces.
// - Guardrail pauses (confirmation pending, disambiguation) are not errors.
//
// Usage:
//
//	err := apperror.Transport(503, cause)
//	if apperror.IsRetryableCommerce(err) { ... }
package apperror

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Category groups error codes by the layer that produced them
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryTransport  Category = "transport"
	CategoryProtocol   Category = "protocol"
	CategoryTool       Category = "tool"
	CategoryOAuth      Category = "oauth"
	CategoryTimeout    Category = "timeout"
	CategoryRateLimit  Category = "rate_limit"
	CategoryInternal   Category = "internal"
)

// Machine codes
const (
	CodeValidation             = "VALIDATION"
	CodeMCPTransport           = "MCP_TRANSPORT"
	CodeMCPProtocol            = "MCP_PROTOCOL"
	CodeMCPTool                = "MCP_TOOL"
	CodeOAuthToken             = "OAUTH_TOKEN"
	CodeOAuthConfig            = "OAUTH_CONFIG"
	CodeOpenAI                 = "OPENAI"
	CodeOpenAIRateLimit        = "OPENAI_RATE_LIMIT"
	CodeOpenAITimeout          = "OPENAI_TIMEOUT"
	CodeOpenAIToolSchema       = "OPENAI_TOOL_SCHEMA"
	CodeTimeout                = "TIMEOUT"
	CodeInternal               = "INTERNAL"
	CodeMalformedToolArguments = "MALFORMED_TOOL_ARGUMENTS"
)

// Error is the normalized error carried through the agent loop
type Error struct {
	Category Category               `json:"category"`
	Status   int                    `json:"status"`
	Code     string                 `json:"code"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`
	Err      error                  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail returns a copy of e with an additional detail entry
func (e *Error) WithDetail(key string, value interface{}) *Error {
	cp := *e
	cp.Details = make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// Validation reports bad caller input
func Validation(message string, details map[string]interface{}) *Error {
	return &Error{
		Category: CategoryValidation,
		Status:   http.StatusBadRequest,
		Code:     CodeValidation,
		Message:  message,
		Details:  details,
	}
}

// Transport reports a commerce backend transport failure; status is the upstream
// HTTP status, or 0 for network failures.
func Transport(status int, err error) *Error {
	return &Error{
		Category: CategoryTransport,
		Status:   http.StatusBadGateway,
		Code:     CodeMCPTransport,
		Message:  "The store is temporarily unreachable. Please try again.",
		Details:  map[string]interface{}{"upstream_status": status},
		Err:      err,
	}
}

// Protocol reports a malformed or error JSON-RPC exchange with the commerce backend
func Protocol(rpcCode int, err error) *Error {
	return &Error{
		Category: CategoryProtocol,
		Status:   http.StatusBadGateway,
		Code:     CodeMCPProtocol,
		Message:  "The store returned an unexpected response.",
		Details:  map[string]interface{}{"rpc_code": rpcCode},
		Err:      err,
	}
}

// Tool reports a tool-level failure returned by the commerce backend
func Tool(toolName string, err error) *Error {
	return &Error{
		Category: CategoryTool,
		Status:   http.StatusUnprocessableEntity,
		Code:     CodeMCPTool,
		Message:  "The store could not complete that action.",
		Details:  map[string]interface{}{"tool": toolName},
		Err:      err,
	}
}

// OAuth reports a credential acquisition failure
func OAuth(code string, err error) *Error {
	return &Error{
		Category: CategoryOAuth,
		Status:   http.StatusInternalServerError,
		Code:     code,
		Message:  "Authentication with the store failed.",
		Err:      err,
	}
}

// LLM reports a provider failure with one of the OPENAI* codes
func LLM(code string, status int, err error) *Error {
	category := CategoryInternal
	httpStatus := http.StatusBadGateway
	message := "The assistant is temporarily unavailable. Please try again."
	switch code {
	case CodeOpenAIRateLimit:
		category = CategoryRateLimit
		httpStatus = http.StatusTooManyRequests
		message = "The assistant is busy right now. Please try again in a moment."
	case CodeOpenAITimeout:
		category = CategoryTimeout
		httpStatus = http.StatusGatewayTimeout
	case CodeOpenAIToolSchema:
		category = CategoryValidation
		httpStatus = http.StatusInternalServerError
	}
	return &Error{
		Category: category,
		Status:   httpStatus,
		Code:     code,
		Message:  message,
		Details:  map[string]interface{}{"upstream_status": status},
		Err:      err,
	}
}

// Timeout reports a generic deadline failure
func Timeout(err error) *Error {
	return &Error{
		Category: CategoryTimeout,
		Status:   http.StatusGatewayTimeout,
		Code:     CodeTimeout,
		Message:  "The request took too long. Please try again.",
		Err:      err,
	}
}

// Internal reports an unexpected failure with a generic safe message
func Internal(err error) *Error {
	return &Error{
		Category: CategoryInternal,
		Status:   http.StatusInternalServerError,
		Code:     CodeInternal,
		Message:  "Something went wrong. Please try again.",
		Err:      err,
	}
}

// MalformedToolArguments reports tool arguments the model produced that do not parse
func MalformedToolArguments(toolName string, err error) *Error {
	return &Error{
		Category: CategoryValidation,
		Status:   http.StatusUnprocessableEntity,
		Code:     CodeMalformedToolArguments,
		Message:  "Tool arguments are not valid JSON.",
		Details:  map[string]interface{}{"tool": toolName},
		Err:      err,
	}
}

// As extracts an *Error from err
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Normalize maps any error into the taxonomy. Already-normalized errors pass through.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}
	if appErr, ok := As(err); ok {
		return appErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout(err)
	}
	return Internal(err)
}

// CodeOf returns the machine code of err, or INTERNAL
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	return Normalize(err).Code
}
