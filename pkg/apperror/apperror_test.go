package apperror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Run("passes through normalized errors", func(t *testing.T) {
		orig := Validation("bad input", nil)
		wrapped := fmt.Errorf("handler: %w", orig)

		got := Normalize(wrapped)
		assert.Same(t, orig, got)
	})

	t.Run("deadline becomes timeout", func(t *testing.T) {
		got := Normalize(fmt.Errorf("call: %w", context.DeadlineExceeded))
		assert.Equal(t, CodeTimeout, got.Code)
		assert.Equal(t, http.StatusGatewayTimeout, got.Status)
	})

	t.Run("unknown becomes internal with safe message", func(t *testing.T) {
		got := Normalize(errors.New("secret=abc123 leaked body"))
		assert.Equal(t, CodeInternal, got.Code)
		assert.NotContains(t, got.Message, "secret")
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, Normalize(nil))
	})
}

func TestIsRetryableCommerce(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"network failure", Transport(0, errors.New("dial tcp: connection refused")), true},
		{"bad gateway", Transport(http.StatusBadGateway, nil), true},
		{"service unavailable", Transport(http.StatusServiceUnavailable, nil), true},
		{"gateway timeout", Transport(http.StatusGatewayTimeout, nil), true},
		{"internal server error", Transport(http.StatusInternalServerError, nil), false},
		{"not found", Transport(http.StatusNotFound, nil), false},
		{"protocol", Protocol(-32600, nil), false},
		{"tool", Tool("cart_add_item", nil), false},
		{"validation", Validation("x", nil), false},
		{"oauth", OAuth(CodeOAuthToken, nil), false},
		{"generic timeout", Timeout(nil), true},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableCommerce(tt.err))
		})
	}
}

func TestIsRetryableLLM(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit", LLM(CodeOpenAIRateLimit, 429, nil), true},
		{"timeout", LLM(CodeOpenAITimeout, 0, nil), true},
		{"server error", LLM(CodeOpenAI, 500, nil), true},
		{"connection failure", LLM(CodeOpenAI, 0, nil), true},
		{"bad request", LLM(CodeOpenAI, 400, nil), false},
		{"tool schema", LLM(CodeOpenAIToolSchema, 400, nil), false},
		{"oauth", OAuth(CodeOAuthConfig, nil), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableLLM(tt.err))
		})
	}
}

func TestWithDetailCopies(t *testing.T) {
	base := Tool("cart_get", nil)
	withCart := base.WithDetail("cart_id", "c-1")

	require.NotNil(t, withCart.Details)
	assert.Equal(t, "c-1", withCart.Details["cart_id"])
	_, leaked := base.Details["cart_id"]
	assert.False(t, leaked)
}

func TestMalformedToolArguments(t *testing.T) {
	err := MalformedToolArguments("product_search", errors.New("unexpected end of JSON input"))
	assert.Equal(t, CodeMalformedToolArguments, err.Code)
	assert.Equal(t, CategoryValidation, err.Category)
	assert.False(t, IsRetryable(err))
}
