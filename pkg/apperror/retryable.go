package apperror

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
)

// IsRetryableCommerce reports whether a commerce backend failure may be retried.
// Only network failures and 502/503/504 transport responses qualify.
func IsRetryableCommerce(err error) bool {
	if err == nil {
		return false
	}
	appErr, ok := As(err)
	if !ok {
		return isNetworkError(err)
	}
	switch appErr.Category {
	case CategoryTransport:
		status, _ := appErr.Details["upstream_status"].(int)
		switch status {
		case 0:
			return true
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	case CategoryTimeout:
		return appErr.Code == CodeTimeout
	}
	return false
}

// IsRetryableLLM reports whether an LLM provider failure may be retried:
// rate limits, timeouts, 5xx and connection failures.
func IsRetryableLLM(err error) bool {
	if err == nil {
		return false
	}
	appErr, ok := As(err)
	if !ok {
		return isNetworkError(err)
	}
	switch appErr.Code {
	case CodeOpenAIRateLimit, CodeOpenAITimeout, CodeTimeout:
		return true
	case CodeOpenAI:
		status, _ := appErr.Details["upstream_status"].(int)
		return status == 0 || status >= 500
	}
	return false
}

// IsRetryable reports whether err belongs to a category that is ever retried.
// Validation, protocol, tool and credential errors never are.
func IsRetryable(err error) bool {
	return IsRetryableCommerce(err) || IsRetryableLLM(err)
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "econnreset") ||
		strings.Contains(msg, "etimedout")
}
